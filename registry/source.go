package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Source describes where a module's text comes from: a file on the host
// filesystem, or inline text registered under a virtual name.
type Source struct {
	path   string
	name   string
	text   string
	inline bool
}

// File returns a source backed by a file on the host filesystem.
func File(p string) Source {
	return Source{path: p}
}

// Inline returns a source backed by the given text, registered under a
// virtual name. The virtual name is the module's identity for import
// resolution and must be unique within one execution context.
func Inline(name, text string) Source {
	return Source{name: name, text: text, inline: true}
}

// IsInline reports whether the source is inline text.
func (s Source) IsInline() bool { return s.inline }

// Identity returns the canonical module identity: the cleaned absolute path
// for file sources, or the cleaned virtual name for inline sources.
func (s Source) Identity() (string, error) {
	if s.inline {
		name := cleanVirtual(s.name)
		if name == "" || name == "." {
			return "", fmt.Errorf("%w: empty virtual name", ErrNotFound)
		}
		return name, nil
	}
	abs, err := filepath.Abs(s.path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrNotFound, s.path, err)
	}
	return filepath.Clean(abs), nil
}

// Dir returns the origin directory used to resolve this module's relative
// imports.
func (s Source) Dir() (string, error) {
	id, err := s.Identity()
	if err != nil {
		return "", err
	}
	if s.inline {
		return path.Dir(id), nil
	}
	return filepath.Dir(id), nil
}

// Read returns the module text. Missing files fail with ErrNotFound.
func (s Source) Read() (string, error) {
	if s.inline {
		return s.text, nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, s.path)
		}
		return "", fmt.Errorf("read %s: %w", s.path, err)
	}
	return string(data), nil
}

// Digest returns a content digest for inline sources, used to distinguish
// an idempotent reload of identical text from a second source claiming the
// same virtual name.
func (s Source) Digest() string {
	if !s.inline {
		return ""
	}
	sum := sha256.Sum256([]byte(s.text))
	return hex.EncodeToString(sum[:])
}

func cleanVirtual(name string) string {
	name = strings.TrimPrefix(name, "./")
	return path.Clean("/" + name)[1:]
}

// ResolveSpecifier resolves an import specifier relative to the importing
// module's origin. Only relative specifiers ("./x", "../y") are accepted:
// a sandboxed loader has no ambient package namespace to resolve bare names
// against. Extensionless specifiers later try ".js" and ".ts" candidates;
// see Candidates.
func ResolveSpecifier(fromDir string, fromInline bool, spec string) (string, error) {
	if !strings.HasPrefix(spec, "./") && !strings.HasPrefix(spec, "../") {
		return "", fmt.Errorf("%w: specifier %q is not relative", ErrNotFound, spec)
	}
	if fromInline {
		resolved := path.Join(fromDir, spec)
		if resolved == "" || strings.HasPrefix(resolved, "..") {
			return "", fmt.Errorf("%w: specifier %q escapes the virtual namespace", ErrNotFound, spec)
		}
		return resolved, nil
	}
	return filepath.Clean(filepath.Join(fromDir, spec)), nil
}

// Candidates lists the identities to try for a resolved specifier, in order:
// the exact name, then with ".js" and ".ts" appended when the name has no
// extension.
func Candidates(resolved string, inline bool) []string {
	ext := path.Ext(resolved)
	if !inline {
		ext = filepath.Ext(resolved)
	}
	if ext != "" {
		return []string{resolved}
	}
	return []string{resolved, resolved + ".js", resolved + ".ts"}
}
