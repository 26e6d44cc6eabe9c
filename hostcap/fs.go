package hostcap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/modra-dev/modra/sandbox"
)

// DefaultMaxFileSize bounds file reads and writes when the policy sets no
// explicit limit.
const DefaultMaxFileSize = 10 << 20 // 10MB

// ErrDenied reports a capability operation refused by the mount
// configuration.
var ErrDenied = errors.New("permission denied")

// FS provides filesystem access restricted to explicit mount points.
// Scripts see only virtual paths; every operation resolves through a mount
// and is rejected if it escapes the mount's host directory.
type FS struct {
	mounts  []sandbox.Mount
	maxSize int64
}

// NewFS returns a filesystem capability over the given mounts. Mount virtual
// paths are normalized; host paths are resolved to absolute paths, and
// mounts whose host path cannot be resolved are dropped.
func NewFS(mounts []sandbox.Mount, limits sandbox.Limits) *FS {
	maxSize := limits.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	normalized := make([]sandbox.Mount, 0, len(mounts))
	for _, m := range mounts {
		vp := "/" + strings.Trim(m.VirtualPath, "/")
		hp, err := filepath.Abs(m.HostPath)
		if err != nil {
			continue
		}
		normalized = append(normalized, sandbox.Mount{
			VirtualPath: vp,
			HostPath:    hp,
			Mode:        m.Mode,
		})
	}
	return &FS{mounts: normalized, maxSize: maxSize}
}

// resolve maps a virtual path onto a host path, enforcing mount permissions
// and rejecting traversal out of the mount.
func (f *FS) resolve(virtualPath string, needWrite bool) (string, sandbox.MountMode, error) {
	vp := filepath.Clean("/" + strings.TrimPrefix(virtualPath, "/"))
	for _, m := range f.mounts {
		if vp != m.VirtualPath && !strings.HasPrefix(vp, m.VirtualPath+"/") {
			continue
		}
		if needWrite && m.Mode == sandbox.MountReadOnly {
			return "", 0, fmt.Errorf("%w: read-only mount %s", ErrDenied, m.VirtualPath)
		}
		rel := strings.TrimPrefix(vp, m.VirtualPath)
		host := filepath.Join(m.HostPath, rel)
		abs, err := filepath.Abs(host)
		if err != nil || !strings.HasPrefix(abs, m.HostPath) {
			return "", 0, fmt.Errorf("%w: path escapes mount", ErrDenied)
		}
		return abs, m.Mode, nil
	}
	return "", 0, fmt.Errorf("%w: %s is not inside any mount", ErrDenied, virtualPath)
}

// ReadText returns the contents of a file as a string.
func (f *FS) ReadText(path string) (string, error) {
	host, _, err := f.resolve(path, false)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(host)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %s", path)
		}
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > f.maxSize {
		return "", fmt.Errorf("file %s exceeds read limit (%d bytes)", path, f.maxSize)
	}
	data, err := os.ReadFile(host)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// WriteText writes content to a file. Creating a new file requires a
// MountReadWriteCreate mount.
func (f *FS) WriteText(path, content string) error {
	host, mode, err := f.resolve(path, true)
	if err != nil {
		return err
	}
	if int64(len(content)) > f.maxSize {
		return fmt.Errorf("content exceeds write limit (%d bytes)", f.maxSize)
	}
	if _, statErr := os.Stat(host); os.IsNotExist(statErr) && mode != sandbox.MountReadWriteCreate {
		return fmt.Errorf("%w: mount does not allow creating files", ErrDenied)
	}
	if err := os.WriteFile(host, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// List returns the entries of a directory.
func (f *FS) List(path string) ([]Entry, error) {
	host, _, err := f.resolve(path, false)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(host)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("directory not found: %s", path)
		}
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		item := Entry{Name: e.Name(), IsDir: e.IsDir()}
		if info, err := e.Info(); err == nil {
			item.Size = info.Size()
		}
		out = append(out, item)
	}
	return out, nil
}

// Exists reports whether a path exists. Paths outside every mount read as
// absent rather than erroring; the sandbox does not reveal what it hides.
func (f *FS) Exists(path string) bool {
	host, _, err := f.resolve(path, false)
	if err != nil {
		return false
	}
	_, err = os.Stat(host)
	return err == nil
}

// Stat returns metadata for a file or directory.
func (f *FS) Stat(path string) (Stat, error) {
	host, _, err := f.resolve(path, false)
	if err != nil {
		return Stat{}, err
	}
	info, err := os.Stat(host)
	if err != nil {
		if os.IsNotExist(err) {
			return Stat{}, fmt.Errorf("file not found: %s", path)
		}
		return Stat{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return Stat{
		Name:    info.Name(),
		Size:    info.Size(),
		IsDir:   info.IsDir(),
		ModTime: info.ModTime().Unix(),
	}, nil
}

// Mkdir creates a directory (and any missing parents). Requires a
// MountReadWriteCreate mount.
func (f *FS) Mkdir(path string) error {
	host, mode, err := f.resolve(path, true)
	if err != nil {
		return err
	}
	if mode != sandbox.MountReadWriteCreate {
		return fmt.Errorf("%w: mount does not allow creating directories", ErrDenied)
	}
	if err := os.MkdirAll(host, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}

// Remove deletes a file or empty directory.
func (f *FS) Remove(path string) error {
	host, _, err := f.resolve(path, true)
	if err != nil {
		return err
	}
	if err := os.Remove(host); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file not found: %s", path)
		}
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
