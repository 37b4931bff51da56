package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func tempRoot(t *testing.T) (string, *FS) {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return dir, fs
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestListIncludesEveryFileRecursively(t *testing.T) {
	dir, s := tempRoot(t)
	writeFile(t, dir, "b.md", "b")
	writeFile(t, dir, "a/c.md", "c")
	writeFile(t, dir, "readme.txt", "not md")

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("len = %d, want 3", len(items))
	}
	want := []string{"a/c.md", "b.md", "readme.txt"}
	for i, w := range want {
		if items[i].Path != w {
			t.Errorf("items[%d].Path = %q, want %q", i, items[i].Path, w)
		}
	}
	if items[1].Size != 1 || items[1].ModTime.IsZero() {
		t.Errorf("unexpected meta for b.md: %+v", items[1])
	}
}

func TestListKeepsUnreadableEntries(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}
	dir, s := tempRoot(t)
	writeFile(t, dir, "a.md", "a")
	writeFile(t, dir, "b.md", "b")
	writeFile(t, dir, "locked/c.md", "c")
	writeFile(t, dir, "z.md", "z")
	if err := os.Chmod(filepath.Join(dir, "b.md"), 0); err != nil {
		t.Fatal(err)
	}
	locked := filepath.Join(dir, "locked")
	if err := os.Chmod(locked, 0); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var got []string
	for _, it := range items {
		got = append(got, it.Path)
	}
	want := []string{"a.md", "b.md", "locked", "z.md"}
	if len(got) != len(want) {
		t.Fatalf("paths = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("paths = %v, want %v", got, want)
		}
	}

	if _, err := s.Load("b.md"); err == nil {
		t.Error("expected an error loading an unreadable file")
	}
	if _, err := s.Load("locked"); err == nil {
		t.Error("expected an error loading an unreadable directory")
	}
}

func TestListMissingDir(t *testing.T) {
	_, s := tempRoot(t)
	if _, err := s.List("nope"); err == nil {
		t.Error("expected an error listing a missing directory")
	}
}

func TestReadAndLoad(t *testing.T) {
	dir, s := tempRoot(t)
	writeFile(t, dir, "sub/post.md", "# Hello\n")

	got, err := s.Read("sub/post.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "# Hello\n" {
		t.Errorf("content = %q", got)
	}

	doc, err := s.Load("sub/post.md")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Path != "sub/post.md" || doc.Checksum != Checksum(got) || doc.ModTime.IsZero() {
		t.Errorf("unexpected document: %+v", doc)
	}
}

func TestTraversalBlocked(t *testing.T) {
	_, s := tempRoot(t)
	for _, p := range []string{"../../etc/passwd", "../outside.md", "/etc/shadow"} {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if _, err := s.List(p); err == nil {
			t.Errorf("expected error listing %q", p)
		}
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	if _, err := NewFS("/tmp/halosync-does-not-exist-" + t.Name()); err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "halosync-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	if _, err := NewFS(f.Name()); err == nil {
		t.Error("expected error when root is a file")
	}
}
