// Package filesystem discovers collection source files on local disk.
package filesystem

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/gnosis/internal/core/domain"
	"github.com/custodia-labs/gnosis/internal/core/ports/driven"
	"github.com/custodia-labs/gnosis/internal/logger"
)

// Ensure Discovery implements the interface.
var _ driven.Discovery = (*Discovery)(nil)

// Config bounds what the walker picks up.
type Config struct {
	// IncludeHidden also walks dot-prefixed files and directories.
	IncludeHidden bool

	// MaxFileSize skips files larger than this many bytes; zero means
	// unlimited.
	MaxFileSize int64
}

// Discovery walks collection roots and watches them for changes.
type Discovery struct {
	cfg Config
}

// New creates a filesystem discovery source.
func New(cfg Config) *Discovery {
	return &Discovery{cfg: cfg}
}

// List walks the collection root and returns every candidate file,
// ordered by relative path. Symlinks and hidden entries are skipped
// unless configured otherwise.
func (d *Discovery) List(ctx context.Context, c domain.Collection) ([]domain.DiscoveredFile, error) {
	root, err := filepath.Abs(c.RootPath)
	if err != nil {
		return nil, domain.WrapError(domain.KindValidation, "collection root "+c.RootPath, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, pathError("stat collection root", root, err)
	}
	if !info.IsDir() {
		return nil, domain.NewError(domain.KindValidation, "collection root is not a directory: "+root)
	}

	var files []domain.DiscoveredFile
	walkErr := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			// Unreadable subtree: log and move on, the rest of the
			// collection is still usable.
			logger.Warn("Skipping %s: %v", path, err)
			if entry != nil && entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		name := entry.Name()
		if path != root && !d.cfg.IncludeHidden && strings.HasPrefix(name, ".") {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.IsDir() {
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}

		fi, err := entry.Info()
		if err != nil {
			logger.Warn("Skipping %s: %v", path, err)
			return nil
		}
		if d.cfg.MaxFileSize > 0 && fi.Size() > d.cfg.MaxFileSize {
			logger.Debug("Skipping oversized file %s (%d bytes)", path, fi.Size())
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, domain.DiscoveredFile{
			Collection: c.Name,
			RelPath:    filepath.ToSlash(rel),
			AbsPath:    path,
			Size:       fi.Size(),
			MTime:      fi.ModTime(),
		})
		return nil
	})
	if walkErr != nil {
		if ctx.Err() != nil {
			return nil, walkErr
		}
		return nil, domain.WrapError(domain.KindIO, "walking "+root, walkErr)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

// Read loads the raw bytes of a discovered file.
func (d *Discovery) Read(ctx context.Context, f domain.DiscoveredFile) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.cfg.MaxFileSize > 0 {
		if fi, err := os.Stat(f.AbsPath); err == nil && fi.Size() > d.cfg.MaxFileSize {
			return nil, domain.NewError(domain.KindTooLarge, "file exceeds size limit: "+f.RelPath)
		}
	}

	content, err := os.ReadFile(f.AbsPath)
	if err != nil {
		return nil, pathError("reading "+f.RelPath, f.AbsPath, err)
	}
	return content, nil
}

// Watch emits a file tuple for every create or modify under the
// collection root until the context ends. New directories are added to
// the watch as they appear.
func (d *Discovery) Watch(ctx context.Context, c domain.Collection, events chan<- domain.DiscoveredFile) error {
	root, err := filepath.Abs(c.RootPath)
	if err != nil {
		return domain.WrapError(domain.KindValidation, "collection root "+c.RootPath, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return domain.WrapError(domain.KindIO, "creating watcher", err)
	}
	defer watcher.Close()

	if err := addRecursive(watcher, root); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			name := filepath.Base(ev.Name)
			if !d.cfg.IncludeHidden && strings.HasPrefix(name, ".") {
				continue
			}

			fi, err := os.Stat(ev.Name)
			if err != nil {
				continue
			}
			if fi.IsDir() {
				if ev.Has(fsnotify.Create) {
					if err := addRecursive(watcher, ev.Name); err != nil {
						logger.Warn("Watching %s failed: %v", ev.Name, err)
					}
				}
				continue
			}
			if !fi.Mode().IsRegular() {
				continue
			}
			if d.cfg.MaxFileSize > 0 && fi.Size() > d.cfg.MaxFileSize {
				continue
			}

			rel, err := filepath.Rel(root, ev.Name)
			if err != nil || strings.HasPrefix(rel, "..") {
				continue
			}

			f := domain.DiscoveredFile{
				Collection: c.Name,
				RelPath:    filepath.ToSlash(rel),
				AbsPath:    ev.Name,
				Size:       fi.Size(),
				MTime:      fi.ModTime(),
			}
			select {
			case events <- f:
			case <-ctx.Done():
				return ctx.Err()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error: %v", err)
		}
	}
}

// addRecursive watches a directory and every subdirectory beneath it.
func addRecursive(watcher *fsnotify.Watcher, root string) error {
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(entry.Name(), ".") {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
	if err != nil {
		return domain.WrapError(domain.KindIO, "watching "+root, err)
	}
	return nil
}

// pathError maps an os error onto the domain taxonomy.
func pathError(msg, path string, err error) error {
	switch {
	case os.IsNotExist(err):
		return domain.WrapError(domain.KindNotFound, msg, err)
	case os.IsPermission(err):
		return domain.WrapError(domain.KindPermission, msg, err)
	default:
		return domain.WrapError(domain.KindIO, msg, err)
	}
}
