package hostcap

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/modra-dev/modra/sandbox"
)

func newTestFS(t *testing.T, mode sandbox.MountMode) (*FS, string) {
	t.Helper()
	dir := t.TempDir()
	fs := NewFS([]sandbox.Mount{{
		VirtualPath: "/data",
		HostPath:    dir,
		Mode:        mode,
	}}, sandbox.Limits{})
	return fs, dir
}

func TestFSReadOnly(t *testing.T) {
	fs, dir := newTestFS(t, sandbox.MountReadOnly)
	os.WriteFile(filepath.Join(dir, "test.txt"), []byte("hello world"), 0644)

	content, err := fs.ReadText("/data/test.txt")
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if content != "hello world" {
		t.Errorf("expected 'hello world', got %q", content)
	}

	// Should NOT be able to write
	err = fs.WriteText("/data/test.txt", "modified")
	if !errors.Is(err, ErrDenied) {
		t.Errorf("write on read-only mount: err = %v, want ErrDenied", err)
	}
}

func TestFSReadWrite(t *testing.T) {
	fs, dir := newTestFS(t, sandbox.MountReadWrite)
	testFile := filepath.Join(dir, "test.txt")
	os.WriteFile(testFile, []byte("original"), 0644)

	if err := fs.WriteText("/data/test.txt", "modified"); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	content, _ := os.ReadFile(testFile)
	if string(content) != "modified" {
		t.Errorf("expected 'modified', got %q", content)
	}

	// Should NOT be able to create new file
	err := fs.WriteText("/data/new.txt", "new")
	if !errors.Is(err, ErrDenied) {
		t.Errorf("create on rw mount: err = %v, want ErrDenied", err)
	}
}

func TestFSReadWriteCreate(t *testing.T) {
	fs, dir := newTestFS(t, sandbox.MountReadWriteCreate)

	if err := fs.WriteText("/data/new.txt", "created"); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	content, _ := os.ReadFile(filepath.Join(dir, "new.txt"))
	if string(content) != "created" {
		t.Errorf("expected 'created', got %q", content)
	}

	if err := fs.Mkdir("/data/subdir"); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	info, err := os.Stat(filepath.Join(dir, "subdir"))
	if err != nil || !info.IsDir() {
		t.Error("expected directory to be created")
	}
}

func TestFSTraversalBlocked(t *testing.T) {
	fs, dir := newTestFS(t, sandbox.MountReadOnly)
	// Plant a file just outside the mount.
	outside := filepath.Join(filepath.Dir(dir), "secret.txt")
	os.WriteFile(outside, []byte("secret"), 0644)
	defer os.Remove(outside)

	_, err := fs.ReadText("/data/../secret.txt")
	if err == nil {
		t.Fatal("path traversal out of the mount must fail")
	}
}

func TestFSOutsideMount(t *testing.T) {
	fs, _ := newTestFS(t, sandbox.MountReadOnly)

	_, err := fs.ReadText("/elsewhere/file.txt")
	if !errors.Is(err, ErrDenied) {
		t.Errorf("read outside mount: err = %v, want ErrDenied", err)
	}
	// Exists does not reveal paths outside mounts.
	if fs.Exists("/etc/passwd") {
		t.Error("Exists must report false outside every mount")
	}
}

func TestFSList(t *testing.T) {
	fs, dir := newTestFS(t, sandbox.MountReadOnly)
	os.WriteFile(filepath.Join(dir, "file1.txt"), []byte("1"), 0644)
	os.WriteFile(filepath.Join(dir, "file2.txt"), []byte("22"), 0644)
	os.Mkdir(filepath.Join(dir, "subdir"), 0755)

	entries, err := fs.List("/data")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	var dirs int
	for _, e := range entries {
		if e.IsDir {
			dirs++
		}
	}
	if dirs != 1 {
		t.Errorf("expected 1 directory, got %d", dirs)
	}
}

func TestFSStat(t *testing.T) {
	fs, dir := newTestFS(t, sandbox.MountReadOnly)
	os.WriteFile(filepath.Join(dir, "f.txt"), []byte("abc"), 0644)

	st, err := fs.Stat("/data/f.txt")
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if st.Name != "f.txt" || st.Size != 3 || st.IsDir {
		t.Errorf("stat = %+v", st)
	}
}

func TestFSMaxFileSize(t *testing.T) {
	dir := t.TempDir()
	fs := NewFS([]sandbox.Mount{{
		VirtualPath: "/data",
		HostPath:    dir,
		Mode:        sandbox.MountReadWriteCreate,
	}}, sandbox.Limits{MaxFileSize: 4})

	os.WriteFile(filepath.Join(dir, "big.txt"), []byte("too large"), 0644)
	if _, err := fs.ReadText("/data/big.txt"); err == nil {
		t.Error("read over the size limit should fail")
	}
	if err := fs.WriteText("/data/out.txt", "too large"); err == nil {
		t.Error("write over the size limit should fail")
	}
}

func TestFSRemove(t *testing.T) {
	fs, dir := newTestFS(t, sandbox.MountReadWrite)
	os.WriteFile(filepath.Join(dir, "gone.txt"), []byte("x"), 0644)

	if err := fs.Remove("/data/gone.txt"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "gone.txt")); !os.IsNotExist(err) {
		t.Error("file should be removed")
	}
}
