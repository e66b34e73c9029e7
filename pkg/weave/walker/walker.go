// Package walker discovers the files selected by a deploy path. A file path
// selects that file; a directory path selects every regular, non-empty,
// non-hidden file below it that no exclusion pattern matches.
package walker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"

	"github.com/jamesainslie/weave/pkg/weave/logging"
	"github.com/jamesainslie/weave/pkg/weave/types"
)

// ErrNoFiles is returned when a deploy path selects nothing to upload.
var ErrNoFiles = errors.New("no files to deploy")

// Options configures a walk.
type Options struct {
	// Root is the file or directory to deploy.
	Root string

	// Exclude contains glob patterns. A pattern matches a file or
	// directory by base name, by slash-separated path relative to Root,
	// or as a directory prefix of that path.
	Exclude []string

	// IncludeHidden keeps files and directories whose name starts with a dot.
	IncludeHidden bool
}

// Result is the outcome of a walk.
type Result struct {
	// Root is the absolute deploy root. For a single file it is the file's
	// directory.
	Root string

	// IsDir reports whether the deploy path was a directory.
	IsDir bool

	// Files are the selected files sorted by RelPath.
	Files []types.FileInfo

	// Empty lists the relative paths of zero-length files that were skipped.
	Empty []string

	// TotalSize is the sum of selected file sizes.
	TotalSize int64
}

// Walk resolves opts.Root and collects the files to deploy. Any error
// reading the tree aborts the walk.
func Walk(ctx context.Context, opts Options) (*Result, error) {
	root, info, err := resolveRoot(opts.Root)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		return walkFile(root, info)
	}

	w := &walk{opts: opts, root: root, logger: logging.Get("walker")}
	conf := fastwalk.Config{
		Follow: false,
	}
	walkErr := fastwalk.Walk(&conf, root, w.callback(ctx))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if walkErr != nil && !errors.Is(walkErr, fastwalk.ErrSkipFiles) {
		return nil, fmt.Errorf("walking %s: %w", root, walkErr)
	}
	if len(w.errs) > 0 {
		return nil, errors.Join(w.errs...)
	}

	slices.SortFunc(w.files, func(a, b types.FileInfo) int {
		return strings.Compare(a.RelPath, b.RelPath)
	})
	slices.Sort(w.empty)

	res := &Result{Root: root, IsDir: true, Files: w.files, Empty: w.empty}
	for _, f := range w.files {
		res.TotalSize += f.Size
	}
	w.logger.Debug("walk complete", "root", root, "files", len(res.Files), "empty", len(res.Empty))
	return res, nil
}

// resolveRoot resolves the deploy path to absolute and verifies it exists.
func resolveRoot(path string) (string, os.FileInfo, error) {
	if path == "" {
		return "", nil, errors.New("deploy path is empty")
	}
	root, err := filepath.Abs(path)
	if err != nil {
		return "", nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", nil, err
	}
	if !info.IsDir() && !info.Mode().IsRegular() {
		return "", nil, fmt.Errorf("%s is not a regular file or directory", root)
	}
	return root, info, nil
}

func walkFile(path string, info os.FileInfo) (*Result, error) {
	res := &Result{Root: filepath.Dir(path)}
	rel := filepath.Base(path)
	if info.Size() == 0 {
		res.Empty = []string{rel}
		return res, nil
	}
	res.Files = []types.FileInfo{{
		Path:    path,
		RelPath: rel,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}}
	res.TotalSize = info.Size()
	return res, nil
}

type walk struct {
	opts   Options
	root   string
	logger *logging.Logger

	mu    sync.Mutex
	files []types.FileInfo
	empty []string
	errs  []error
}

// callback returns the fastwalk callback. fastwalk invokes it from
// several goroutines.
func (w *walk) callback(ctx context.Context) fs.WalkDirFunc {
	return func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return fastwalk.ErrSkipFiles
		}
		if err != nil {
			w.addError(path, err)
			return nil
		}
		if path == w.root {
			return nil
		}

		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			w.addError(path, err)
			return nil
		}
		rel = filepath.ToSlash(rel)

		if w.skipped(rel, d.Name()) {
			if d.IsDir() {
				return fastwalk.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			w.addError(path, err)
			return nil
		}

		w.mu.Lock()
		defer w.mu.Unlock()
		if info.Size() == 0 {
			w.empty = append(w.empty, rel)
			return nil
		}
		w.files = append(w.files, types.FileInfo{
			Path:    path,
			RelPath: rel,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	}
}

func (w *walk) skipped(rel, name string) bool {
	if !w.opts.IncludeHidden && strings.HasPrefix(name, ".") {
		return true
	}
	for _, pattern := range w.opts.Exclude {
		if Match(pattern, rel) {
			return true
		}
	}
	return false
}

func (w *walk) addError(path string, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.errs = append(w.errs, fmt.Errorf("%s: %w", path, err))
}

// Match reports whether pattern excludes the slash-separated relative
// path rel.
func Match(pattern, rel string) bool {
	pattern = strings.TrimSuffix(filepath.ToSlash(pattern), "/")
	if pattern == "" {
		return false
	}
	if rel == pattern || strings.HasPrefix(rel, pattern+"/") {
		return true
	}
	if matched, err := filepath.Match(pattern, filepath.Base(rel)); err == nil && matched {
		return true
	}
	matched, err := filepath.Match(pattern, rel)
	return err == nil && matched
}
