// Package template expands stored code templates into mapping code.
package template

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/flosch/pongo2/v6"
	"github.com/golang/groupcache/lru"
	"github.com/google/uuid"

	"github.com/sophialabs/mapforge/internal/infrastructure/ports"
)

const defaultCacheSize = 64

var _ ports.TemplateRenderer = (*CodeTemplateRenderer)(nil)

// Tags that would let a template read files from the host.
var bannedTags = []string{"include", "extends", "import", "ssi"}

// CodeTemplateRenderer renders code templates with pongo2 (Django/Jinja2-style).
// Output is not HTML-escaped. Compiled templates are kept in a small LRU keyed by source.
type CodeTemplateRenderer struct {
	clock ports.Clock
	set   *pongo2.TemplateSet

	mu    sync.Mutex
	cache *lru.Cache
}

// NewCodeTemplateRenderer creates a renderer. clock supplies "now".
func NewCodeTemplateRenderer(clock ports.Clock) *CodeTemplateRenderer {
	set := pongo2.NewSet("code-templates", pongo2.MustNewLocalFileSystemLoader(""))
	for _, tag := range bannedTags {
		_ = set.BanTag(tag)
	}
	return &CodeTemplateRenderer{clock: clock, set: set, cache: lru.New(defaultCacheSize)}
}

// Render executes source with vars plus the helper functions.
// Variables override helpers of the same name.
func (r *CodeTemplateRenderer) Render(source string, vars map[string]any) (string, error) {
	tpl, err := r.compile(source)
	if err != nil {
		return "", err
	}

	ctx := pongo2.Context{
		"now":      r.clock.Now().UTC().Format(time.RFC3339Nano),
		"uuid":     func() string { return uuid.NewString() },
		"toJSON":   toJSON,
		"jsString": jsString,
		"upper":    strings.ToUpper,
		"lower":    strings.ToLower,
	}
	for k, v := range vars {
		ctx[k] = v
	}

	out, err := tpl.Execute(ctx)
	if err != nil {
		return "", fmt.Errorf("code template render failed: %w", err)
	}
	return out, nil
}

func (r *CodeTemplateRenderer) compile(source string) (*pongo2.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.cache.Get(source); ok {
		return v.(*pongo2.Template), nil
	}
	tpl, err := r.set.FromString("{% autoescape off %}" + source + "{% endautoescape %}")
	if err != nil {
		return nil, fmt.Errorf("failed to compile code template: %w", err)
	}
	r.cache.Add(source, tpl)
	return tpl, nil
}

func toJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
