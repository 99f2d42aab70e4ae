package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sophialabs/mapforge/internal/domain/mapping"
)

// Store layout below the root directory.
const (
	MappingsDir       = "mappings"
	CodeTemplatesFile = "code-templates.yaml"
	ServiceFile       = "service.yaml"
)

var _ mapping.Repository = (*YAMLStore)(nil)

// YAMLStore keeps mappings, code templates and the service configuration in
// YAML files below a root directory.
type YAMLStore struct {
	rootDir  string
	resolver *IncludeResolver

	// mu serialises writes and guards the template cache.
	mu        sync.Mutex
	templates map[string]mapping.CodeTemplate
	stamp     fileStamp
}

type fileStamp struct {
	modTime time.Time
	size    int64
}

// NewYAMLStore creates a store rooted at rootDir.
func NewYAMLStore(rootDir string) (*YAMLStore, error) {
	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root directory: %w", err)
	}
	return &YAMLStore{
		rootDir:  absRoot,
		resolver: NewIncludeResolver(absRoot),
	}, nil
}

// RootDir returns the absolute root directory.
func (r *YAMLStore) RootDir() string { return r.rootDir }

// LoadAll walks the mappings directory for .yaml files. A missing directory
// yields no mappings.
func (r *YAMLStore) LoadAll(_ context.Context) ([]*mapping.Mapping, error) {
	if _, err := os.Stat(r.rootDir); err != nil {
		return nil, fmt.Errorf("failed to open root directory: %w", err)
	}
	dir := filepath.Join(r.rootDir, MappingsDir)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	var mappings []*mapping.Mapping
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isYAMLFile(path) || strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		loaded, err := r.loadFile(path)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
		mappings = append(mappings, loaded...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk mappings directory: %w", err)
	}

	return mappings, nil
}

func (r *YAMLStore) loadFile(path string) ([]*mapping.Mapping, error) {
	content, err := r.readResolved(path)
	if err != nil {
		return nil, err
	}

	// A file holds either one mapping or a list of mappings.
	if content.Kind == yaml.SequenceNode {
		mappings := make([]*mapping.Mapping, 0, len(content.Content))
		for i, item := range content.Content {
			m, err := decodeMappingNode(item)
			if err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
			m.SourceFile = path
			m.SourceIndex = i
			mappings = append(mappings, m)
		}
		return mappings, nil
	}

	m, err := decodeMappingNode(content)
	if err != nil {
		return nil, err
	}
	m.SourceFile = path
	m.SourceIndex = -1
	return []*mapping.Mapping{m}, nil
}

// readResolved parses a YAML file and resolves its !include tags.
func (r *YAMLStore) readResolved(path string) (*yaml.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var rootNode yaml.Node
	if err := yaml.Unmarshal(data, &rootNode); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := r.resolver.ResolveIncludes(&rootNode, filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("failed to resolve includes: %w", err)
	}
	if rootNode.Kind != yaml.DocumentNode || len(rootNode.Content) == 0 {
		return nil, fmt.Errorf("unexpected YAML structure in %s", path)
	}
	return rootNode.Content[0], nil
}

// LoadByID loads a single mapping by its id.
func (r *YAMLStore) LoadByID(ctx context.Context, id string) (*mapping.Mapping, error) {
	all, err := r.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load mappings: %w", err)
	}
	for _, m := range all {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, mapping.ErrNotFound
}

// Save writes m back to where it was loaded from. Mappings without a source
// location get their own file in the mappings directory.
func (r *YAMLStore) Save(_ context.Context, m *mapping.Mapping) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ym := fromMapping(m)

	if m.SourceFile == "" {
		if err := validateFileID(m.ID); err != nil {
			return err
		}
		dir := filepath.Join(r.rootDir, MappingsDir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create mappings directory: %w", err)
		}
		target := filepath.Join(dir, m.ID+".yaml")
		if err := r.validatePathWithinRoot(target); err != nil {
			return err
		}
		if _, err := os.Stat(target); err == nil {
			return fmt.Errorf("mapping file %s already exists", filepath.Base(target))
		}

		out, err := yaml.Marshal(ym)
		if err != nil {
			return fmt.Errorf("failed to marshal mapping: %w", err)
		}
		return atomicWriteFile(target, out)
	}

	if err := r.validatePathWithinRoot(m.SourceFile); err != nil {
		return err
	}

	if m.SourceIndex < 0 {
		out, err := yaml.Marshal(ym)
		if err != nil {
			return fmt.Errorf("failed to marshal mapping: %w", err)
		}
		return atomicWriteFile(m.SourceFile, out)
	}

	var node yaml.Node
	if err := node.Encode(ym); err != nil {
		return fmt.Errorf("failed to encode mapping: %w", err)
	}
	return r.replaceInSequence(m.SourceFile, m.SourceIndex, &node)
}

// Delete removes the mapping with id from its source file.
func (r *YAMLStore) Delete(ctx context.Context, id string) error {
	m, err := r.LoadByID(ctx, id)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.validatePathWithinRoot(m.SourceFile); err != nil {
		return err
	}
	if m.SourceIndex < 0 {
		if err := os.Remove(m.SourceFile); err != nil {
			return fmt.Errorf("failed to delete mapping file: %w", err)
		}
		return nil
	}
	return r.removeFromSequence(m.SourceFile, m.SourceIndex)
}

// CodeTemplates returns the templates keyed by id with their code decoded.
// Decoded templates are cached until code-templates.yaml changes on disk.
func (r *YAMLStore) CodeTemplates(_ context.Context) (map[string]mapping.CodeTemplate, error) {
	path := filepath.Join(r.rootDir, CodeTemplatesFile)

	r.mu.Lock()
	defer r.mu.Unlock()

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		r.templates, r.stamp = nil, fileStamp{}
		return map[string]mapping.CodeTemplate{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat code templates: %w", err)
	}

	stamp := fileStamp{modTime: info.ModTime(), size: info.Size()}
	if r.templates != nil && stamp == r.stamp {
		return copyTemplates(r.templates), nil
	}

	content, err := r.readResolved(path)
	if err != nil {
		return nil, fmt.Errorf("code templates: %w", err)
	}
	var yt yamlCodeTemplates
	if err := content.Decode(&yt); err != nil {
		return nil, fmt.Errorf("failed to decode code templates: %w", err)
	}

	templates := make(map[string]mapping.CodeTemplate, len(yt.Templates))
	for i := range yt.Templates {
		t := toCodeTemplate(&yt.Templates[i])
		if t.ID == "" {
			return nil, fmt.Errorf("code template %d: id is required", i)
		}
		if _, dup := templates[t.ID]; dup {
			return nil, fmt.Errorf("duplicate code template id %q", t.ID)
		}
		templates[t.ID] = t
	}

	r.templates, r.stamp = templates, stamp
	return copyTemplates(templates), nil
}

// Invalidate drops cached templates so the next read goes to disk.
func (r *YAMLStore) Invalidate() {
	r.mu.Lock()
	r.templates, r.stamp = nil, fileStamp{}
	r.mu.Unlock()
}

func copyTemplates(in map[string]mapping.CodeTemplate) map[string]mapping.CodeTemplate {
	out := make(map[string]mapping.CodeTemplate, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// ServiceConfiguration reads service.yaml over the defaults.
func (r *YAMLStore) ServiceConfiguration(_ context.Context) (mapping.ServiceConfiguration, error) {
	cfg := mapping.DefaultServiceConfiguration()
	data, err := os.ReadFile(filepath.Join(r.rootDir, ServiceFile))
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read service configuration: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return mapping.DefaultServiceConfiguration(), fmt.Errorf("failed to parse service configuration: %w", err)
	}
	return cfg, nil
}

func validateFileID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return fmt.Errorf("mapping id %q cannot be used as a file name", id)
	}
	return nil
}

// validatePathWithinRoot ensures a path resolves within the root directory.
func (r *YAMLStore) validatePathWithinRoot(path string) error {
	root := r.rootDir
	if real, err := filepath.EvalSymlinks(root); err == nil {
		root = real
	}

	resolved, err := filepath.EvalSymlinks(filepath.Dir(path))
	if err != nil {
		// The directory does not exist yet; check the cleaned absolute path.
		abs, absErr := filepath.Abs(path)
		if absErr != nil {
			return fmt.Errorf("failed to resolve path: %w", err)
		}
		resolved = filepath.Dir(abs)
		root = r.rootDir
	}
	if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		return fmt.Errorf("path traversal denied: %s is outside root %s", path, r.rootDir)
	}
	return nil
}

// atomicWriteFile writes content to a temp file then renames it to the target path.
func atomicWriteFile(target string, content []byte) error {
	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, ".mapforge-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

func readSequence(filePath string, index int) (*yaml.Node, *yaml.Node, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read file: %w", err)
	}

	var rootNode yaml.Node
	if err := yaml.Unmarshal(data, &rootNode); err != nil {
		return nil, nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if rootNode.Kind != yaml.DocumentNode || len(rootNode.Content) == 0 {
		return nil, nil, fmt.Errorf("unexpected YAML structure")
	}
	seq := rootNode.Content[0]
	if seq.Kind != yaml.SequenceNode {
		return nil, nil, fmt.Errorf("file is not a YAML sequence")
	}
	if index >= len(seq.Content) {
		return nil, nil, fmt.Errorf("index %d out of range (file has %d entries)", index, len(seq.Content))
	}
	return &rootNode, seq, nil
}

// replaceInSequence replaces the entry at index in a YAML sequence file.
func (r *YAMLStore) replaceInSequence(filePath string, index int, node *yaml.Node) error {
	rootNode, seq, err := readSequence(filePath, index)
	if err != nil {
		return err
	}
	seq.Content[index] = node

	out, err := yaml.Marshal(rootNode)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return atomicWriteFile(filePath, out)
}

// removeFromSequence removes the entry at index. The file goes away with its last entry.
func (r *YAMLStore) removeFromSequence(filePath string, index int) error {
	rootNode, seq, err := readSequence(filePath, index)
	if err != nil {
		return err
	}
	seq.Content = append(seq.Content[:index], seq.Content[index+1:]...)

	if len(seq.Content) == 0 {
		return os.Remove(filePath)
	}

	out, err := yaml.Marshal(rootNode)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return atomicWriteFile(filePath, out)
}
