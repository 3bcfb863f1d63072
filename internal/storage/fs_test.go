package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func tempBundle(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempBundle(t)
	content := []byte("<html></html>\n")
	if err := s.Write("index.html", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("index.html")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	s := tempBundle(t)
	if err := s.Write("archive/game.arcd", []byte("deep")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("archive/game.arcd")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "deep" {
		t.Errorf("content = %q", got)
	}
}

func TestReadMissingIsNotExist(t *testing.T) {
	s := tempBundle(t)
	_, err := s.Read("nope.js")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !IsNotExist(err) {
		t.Errorf("IsNotExist(%v) = false, want true", err)
	}
}

func TestExists(t *testing.T) {
	s := tempBundle(t)
	_ = s.Write("a.js", []byte("a"))
	_ = os.Mkdir(filepath.Join(s.Root(), "dir"), 0o755)

	cases := map[string]bool{
		"a.js":    true,
		"b.js":    false,
		"dir":     false,
		"dir/x.j": false,
	}
	for p, want := range cases {
		got, err := s.Exists(p)
		if err != nil {
			t.Fatalf("Exists(%q): %v", p, err)
		}
		if got != want {
			t.Errorf("Exists(%q) = %v, want %v", p, got, want)
		}
	}
}

func TestGlobSortedFilesOnly(t *testing.T) {
	s := tempBundle(t)
	_ = s.Write("archive/b.arcd", []byte("b"))
	_ = s.Write("archive/a.arci", []byte("a"))
	_ = s.Write("archive/nested/c.dmanifest", []byte("c"))

	got, err := s.Glob("archive/*")
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	want := []string{"archive/a.arci", "archive/b.arcd"}
	if len(got) != len(want) {
		t.Fatalf("Glob = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Glob[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempBundle(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.js",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
		if _, err := s.Glob(p); err == nil {
			t.Errorf("expected error for glob %q", p)
		}
	}
}

func TestAtomicWriteNoLeftovers(t *testing.T) {
	s := tempBundle(t)
	_ = s.Write("game.html", []byte("original content"))

	updated := []byte("updated content")
	if err := s.Write("game.html", updated); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("game.html")
	if string(got) != string(updated) {
		t.Errorf("expected updated content, got %q", got)
	}

	matches, _ := filepath.Glob(filepath.Join(s.root, ".playpack-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "does-not-exist"))
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "playpack-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}
