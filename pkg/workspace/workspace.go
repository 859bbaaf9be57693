// Package workspace is the filesystem side of a session: directory listing,
// working directory changes and the files moved by pull and push.
package workspace

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// PushPrefix is prepended to the name of every file received from the peer
const PushPrefix = "new_"

// Errors
var (
	ErrEmptyPath    = errors.New("workspace: missing path")
	ErrNotDirectory = errors.New("workspace: not a directory")
	ErrIsDirectory  = errors.New("workspace: is a directory")
	ErrOutsideRoot  = errors.New("workspace: path escapes root")
	ErrInvalidName  = errors.New("workspace: invalid file name")
)

// File is an open file being sent to the peer
type File interface {
	io.ReadCloser
}

// Workspace abstracts the session's view of the filesystem. Paths are
// interpreted relative to the workspace's current directory.
type Workspace interface {
	// Dir returns the current working directory
	Dir() string

	// List returns the entry names of dir, "." and ".." first
	List(dir string) ([]string, error)

	// Chdir changes the current working directory
	Chdir(path string) error

	// Open opens a regular file for reading and reports its size
	Open(path string) (File, int64, error)

	// Create creates or truncates a file in the current directory
	Create(name string) (io.WriteCloser, error)
}

// OS is a Workspace on the local filesystem. The working directory is a
// field of the value, never the process working directory.
type OS struct {
	cwd  string
	root string
}

// NewOS creates a workspace starting in dir. When root is not empty every
// path must stay inside it.
func NewOS(dir, root string) (*OS, error) {
	if strings.TrimSpace(dir) == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	w := &OS{cwd: abs}
	if strings.TrimSpace(root) != "" {
		if w.root, err = filepath.Abs(root); err != nil {
			return nil, err
		}
		if !isWithin(abs, w.root) {
			return nil, fmt.Errorf("%w: %s", ErrOutsideRoot, abs)
		}
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, abs)
	}
	return w, nil
}

// Dir implements Workspace
func (w *OS) Dir() string {
	return w.cwd
}

// Root returns the confining root, empty when unconfined
func (w *OS) Root() string {
	return w.root
}

// resolvePath turns a session path into a clean absolute path
func (w *OS) resolvePath(pathArg string) (string, error) {
	p := strings.TrimSpace(pathArg)
	if p == "" {
		return "", ErrEmptyPath
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(w.cwd, p)
	}
	p = filepath.Clean(p)
	if w.root != "" && !isWithin(p, w.root) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, pathArg)
	}
	return p, nil
}

func isWithin(path string, root string) bool {
	p := filepath.Clean(path)
	r := filepath.Clean(root)
	if p == r {
		return true
	}
	return strings.HasPrefix(p, r+string(os.PathSeparator))
}

// List implements Workspace
func (w *OS) List(dir string) ([]string, error) {
	p, err := w.resolvePath(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(p)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries)+2)
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return append([]string{".", ".."}, names...), nil
}

// resolveDir validates that path names a directory and returns its clean absolute form
func (w *OS) resolveDir(path string) (string, error) {
	p, err := w.resolvePath(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(p)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotDirectory, path)
	}
	return p, nil
}

// Chdir implements Workspace
func (w *OS) Chdir(path string) error {
	p, err := w.resolveDir(path)
	if err != nil {
		return err
	}
	w.cwd = p
	return nil
}

// Open implements Workspace
func (w *OS) Open(path string) (File, int64, error) {
	p, err := w.resolvePath(path)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, fmt.Errorf("%w: %s", ErrIsDirectory, path)
	}
	return f, info.Size(), nil
}

// Create implements Workspace. The name must be a plain file name.
func (w *OS) Create(name string) (io.WriteCloser, error) {
	if name == "" || strings.ContainsRune(name, os.PathSeparator) || strings.ContainsRune(name, '/') || name == "." || name == ".." {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return os.Create(filepath.Join(w.cwd, name))
}

// PushName returns the name under which a pushed file named arg is stored
func PushName(arg string) string {
	return PushPrefix + arg
}
