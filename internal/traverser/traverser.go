package traverser

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

// ErrNotADirectory is returned when the walk root is missing or is not a directory.
var ErrNotADirectory = errors.New("not a directory")

// FileEntry describes a regular file found below a walk root.
type FileEntry struct {
	Path      string // Absolute path
	Rel       string // Path relative to the walk root
	Name      string // Base name, e.g. "report.txt"
	Extension string // Extension without the dot, e.g. "txt"; empty if none
}

// NewEntry builds the entry for path as seen from root.
func NewEntry(root, path string) (FileEntry, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return FileEntry{}, fmt.Errorf("could not relate %s to %s: %w", path, root, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return FileEntry{}, fmt.Errorf("%s is outside of %s", path, root)
	}

	name := filepath.Base(path)
	return FileEntry{
		Path:      path,
		Rel:       rel,
		Name:      name,
		Extension: extension(name),
	}, nil
}

// extension returns the part after the last dot. Dotfiles such as ".bashrc"
// have none.
func extension(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return ""
	}
	return name[i+1:]
}

// Root resolves dir to an absolute, symlink-free directory path.
func Root(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrNotADirectory, dir, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrNotADirectory, dir, err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrNotADirectory, dir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotADirectory, dir)
	}
	return resolved, nil
}

// Walk checks root and returns a lazy sequence of every regular file below it.
// Symbolic links are neither followed nor yielded, and directories listed in
// prune are not descended into. A directory that cannot be read yields an
// error and the walk goes on with its siblings.
func Walk(root string, prune ...string) (iter.Seq2[FileEntry, error], error) {
	absRoot, err := Root(root)
	if err != nil {
		return nil, err
	}

	pruned := make(map[string]struct{}, len(prune))
	for _, p := range prune {
		if p = Resolve(p); p != absRoot {
			pruned[p] = struct{}{}
		}
	}

	return func(yield func(FileEntry, error) bool) {
		_ = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if !yield(FileEntry{Path: path}, fmt.Errorf("could not read %s: %w", path, err)) {
					return fs.SkipAll
				}
				return nil
			}

			if d.IsDir() {
				if _, ok := pruned[path]; ok {
					log.Debugf("Not descending into %s", path)
					return fs.SkipDir
				}
				return nil
			}

			if !d.Type().IsRegular() {
				log.Debugf("Skipping non-regular file: %s", path)
				return nil
			}

			if !yield(NewEntry(absRoot, path)) {
				return fs.SkipAll
			}
			return nil
		})
	}, nil
}

// Resolve makes p absolute and resolves symlinks in the part of p that exists.
func Resolve(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	parent := filepath.Dir(abs)
	if parent == abs {
		return abs
	}
	return filepath.Join(Resolve(parent), filepath.Base(abs))
}
