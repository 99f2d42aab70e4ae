package filesystem

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	includeTag      = "!include"
	maxIncludeDepth = 10
)

// IncludeResolver inlines files referenced by !include tags in mapping and
// code template documents. YAML files are spliced in as structure. JSON
// files must be valid JSON and become string scalars, which is the form
// targetTemplate and sourceTemplate expect. Other files (program sources)
// become string scalars as they are.
//
//	targetTemplate: !include templates/measurement.json
//	code: !include @root/code-templates/skeleton.js
type IncludeResolver struct {
	rootDir string
}

// NewIncludeResolver creates a resolver bound to rootDir. References may not
// leave rootDir.
func NewIncludeResolver(rootDir string) *IncludeResolver {
	return &IncludeResolver{rootDir: rootDir}
}

// ResolveIncludes rewrites every !include below node in place. Relative
// references are taken from currentDir.
func (r *IncludeResolver) ResolveIncludes(node *yaml.Node, currentDir string) error {
	return r.expand(node, currentDir, nil)
}

// expand walks node. chain lists the files being expanded, outermost first.
func (r *IncludeResolver) expand(node *yaml.Node, dir string, chain []string) error {
	if node == nil {
		return nil
	}
	if node.Tag != includeTag {
		for _, child := range node.Content {
			if err := r.expand(child, dir, chain); err != nil {
				return err
			}
		}
		return nil
	}

	ref := strings.TrimSpace(node.Value)
	if ref == "" {
		return fmt.Errorf("line %d: %s without a file", node.Line, includeTag)
	}
	file, err := r.locate(ref, dir)
	if err != nil {
		return fmt.Errorf("line %d: %s %q: %w", node.Line, includeTag, ref, err)
	}
	if slices.Contains(chain, file) {
		return fmt.Errorf("%s cycle: %s", includeTag, strings.Join(append(chain, file), " -> "))
	}
	if len(chain) >= maxIncludeDepth {
		return fmt.Errorf("%s nesting exceeds %d files", includeTag, maxIncludeDepth)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read included file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(file)) {
	case ".yaml", ".yml":
		return r.splice(node, data, file, chain)
	case ".json":
		if !json.Valid(data) {
			return fmt.Errorf("included template %s is not valid JSON", file)
		}
	}
	*node = yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Style: yaml.LiteralStyle, Value: string(data)}
	return nil
}

func (r *IncludeResolver) splice(node *yaml.Node, data []byte, file string, chain []string) error {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse included YAML %s: %w", file, err)
	}
	if err := r.expand(&doc, filepath.Dir(file), append(chain, file)); err != nil {
		return err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		*node = yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
		return nil
	}
	*node = *doc.Content[0]
	return nil
}

// locate turns a reference into a cleaned path inside the root. "@root/" is
// relative to the store root, "@here/" and bare paths to dir.
func (r *IncludeResolver) locate(ref, dir string) (string, error) {
	var path string
	switch {
	case strings.HasPrefix(ref, "@root/"):
		path = filepath.Join(r.rootDir, strings.TrimPrefix(ref, "@root/"))
	case strings.HasPrefix(ref, "@here/"):
		path = filepath.Join(dir, strings.TrimPrefix(ref, "@here/"))
	case filepath.IsAbs(ref):
		return "", errors.New("absolute paths are not allowed")
	default:
		path = filepath.Join(dir, ref)
	}

	root := realPath(r.rootDir)
	if p := realPath(path); p != root && !strings.HasPrefix(p, root+string(filepath.Separator)) {
		return "", errors.New("path escapes the store root")
	}
	return path, nil
}

// realPath resolves symlinks where the path exists.
func realPath(p string) string {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	return p
}
