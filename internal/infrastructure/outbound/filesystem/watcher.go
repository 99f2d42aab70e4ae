package filesystem

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sophialabs/mapforge/internal/infrastructure/ports"
)

// Area names the part of the store a changed file belongs to.
type Area string

const (
	AreaMappings      Area = "mappings"
	AreaCodeTemplates Area = "code-templates"
	AreaService       Area = "service"
	// AreaResource covers included files outside the mappings directory.
	AreaResource Area = "resource"
)

// StoreChange summarises the files touched during one debounce window.
type StoreChange struct {
	Files []string
	Areas []Area
}

// Has reports whether any file of the area changed.
func (c StoreChange) Has(a Area) bool { return slices.Contains(c.Areas, a) }

var resourceExts = map[string]bool{
	".yaml": true,
	".yml":  true,
	".json": true,
	".expr": true,
	".js":   true,
}

// Watcher follows the store directory tree and calls onChange once the
// directory has been quiet for the debounce interval.
type Watcher struct {
	root     string
	debounce time.Duration
	logger   ports.Logger
	fsw      *fsnotify.Watcher
	onChange func(StoreChange)

	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWatcher registers every directory below rootDir.
func NewWatcher(rootDir string, debounce time.Duration, logger ports.Logger, onChange func(StoreChange)) (*Watcher, error) {
	root, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		root:     root,
		debounce: debounce,
		logger:   logger,
		fsw:      fsw,
		onChange: onChange,
		quit:     make(chan struct{}),
	}
	if err := w.watchTree(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Start runs the event loop in the background.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run()
	}()
}

// Stop ends the event loop and waits for it. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.quit)
		_ = w.fsw.Close()
	})
	w.wg.Wait()
}

func (w *Watcher) run() {
	pending := make(map[string]Area)
	quiet := time.NewTimer(w.debounce)
	quiet.Stop()
	defer quiet.Stop()

	for {
		select {
		case <-w.quit:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = w.watchTree(ev.Name)
					continue
				}
			}
			area, relevant := w.classify(ev.Name)
			if !relevant {
				continue
			}
			w.logger.Debug("store file changed", "file", ev.Name, "op", ev.Op.String(), "area", string(area))
			pending[ev.Name] = area
			quiet.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("store watcher error", "error", err)

		case <-quiet.C:
			if len(pending) == 0 {
				continue
			}
			change := summarise(pending)
			clear(pending)
			w.logger.Info("store changed on disk", "files", len(change.Files), "areas", change.Areas)
			w.onChange(change)
		}
	}
}

// classify maps a path to its store area. Dot files are the temp files of
// atomic saves and never count.
func (w *Watcher) classify(path string) (Area, bool) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || !resourceExts[strings.ToLower(filepath.Ext(base))] {
		return "", false
	}
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return AreaResource, true
	}
	switch {
	case rel == ServiceFile:
		return AreaService, true
	case rel == CodeTemplatesFile:
		return AreaCodeTemplates, true
	case strings.HasPrefix(rel, MappingsDir+string(filepath.Separator)) && isYAMLFile(rel):
		return AreaMappings, true
	}
	return AreaResource, true
}

func summarise(pending map[string]Area) StoreChange {
	var c StoreChange
	for file, area := range pending {
		c.Files = append(c.Files, file)
		if !slices.Contains(c.Areas, area) {
			c.Areas = append(c.Areas, area)
		}
	}
	slices.Sort(c.Files)
	slices.Sort(c.Areas)
	return c
}

func (w *Watcher) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return w.fsw.Add(path)
	})
}

func isYAMLFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
