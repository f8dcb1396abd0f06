package assets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"data\\model\\Tank.RSM", "data/model/tank.rsm"},
		{"/objects/tree.gltf", "objects/tree.gltf"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtension(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"data/model/tank.RSM", "rsm"},
		{"objects\\crate.glb", "glb"},
		{"archive.tar.gz", "gz"},
		{"noext", ""},
		{"dir.v2/noext", ""},
	}
	for _, tt := range tests {
		if got := Extension(tt.in); got != tt.want {
			t.Errorf("Extension(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestManager_DirPriority(t *testing.T) {
	base := t.TempDir()
	patch := t.TempDir()
	writeFile(t, base, "model/a.rsm", "base-a")
	writeFile(t, base, "model/b.rsm", "base-b")
	writeFile(t, patch, "model/a.rsm", "patch-a")

	m := NewManager()
	defer m.Close()
	if err := m.AddDir(base); err != nil {
		t.Fatal(err)
	}
	if err := m.AddDir(patch); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		want string
	}{
		{"model/a.rsm", "patch-a"},
		{"MODEL\\B.RSM", "base-b"},
	}
	for _, tt := range tests {
		got, err := m.Load(tt.name)
		if err != nil {
			t.Fatalf("Load(%q): %v", tt.name, err)
		}
		if string(got) != tt.want {
			t.Errorf("Load(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}

	if _, err := m.Load("model/missing.rsm"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := m.Load("../escape.rsm"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load(../escape) error = %v, want ErrNotFound", err)
	}

	if got := len(m.Sources()); got != 2 {
		t.Errorf("Sources() has %d entries, want 2", got)
	}
}

func TestManager_CacheStats(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.rsm", "x")

	m := NewManager()
	defer m.Close()
	if err := m.AddDir(dir); err != nil {
		t.Fatal(err)
	}

	m.Load("a.rsm")
	m.Load("A.RSM")
	m.Load("a.rsm")

	hits, misses := m.Stats()
	if hits != 2 || misses != 1 {
		t.Errorf("Stats() = (%d, %d), want (2, 1)", hits, misses)
	}
}

func TestManager_AddErrors(t *testing.T) {
	m := NewManager()
	missing := filepath.Join(t.TempDir(), "nope")

	if err := m.AddDir(missing); err == nil {
		t.Error("AddDir(missing) succeeded")
	}
	if err := m.AddArchive(missing + ".grf"); err == nil {
		t.Error("AddArchive(missing) succeeded")
	}

	file := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := m.AddDir(file); err == nil {
		t.Error("AddDir(file) succeeded")
	}
}

func TestManager_List(t *testing.T) {
	base := t.TempDir()
	patch := t.TempDir()
	writeFile(t, base, "model/a.rsm", "x")
	writeFile(t, base, "model/tree.glb", "x")
	writeFile(t, base, "texture/a.bmp", "x")
	writeFile(t, patch, "model/a.rsm", "y")
	writeFile(t, patch, "model/z.gltf", "y")

	m, err := Open(nil, []string{base, patch})
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	got, err := m.List("rsm", ".GLB", "gltf")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"model/a.rsm", "model/tree.glb", "model/z.gltf"}
	if len(got) != len(want) {
		t.Fatalf("List() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	all, err := m.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Errorf("List() without filter = %v, want 4 entries", all)
	}
}

func TestOpen_MissingSource(t *testing.T) {
	if _, err := Open([]string{filepath.Join(t.TempDir(), "none.grf")}, nil); err == nil {
		t.Error("Open with a missing archive succeeded")
	}
	if _, err := Open(nil, []string{filepath.Join(t.TempDir(), "none")}); err == nil {
		t.Error("Open with a missing directory succeeded")
	}
}

type mapSource map[string]string

func (s mapSource) Read(name string) ([]byte, error) {
	if v, ok := s[name]; ok {
		return []byte(v), nil
	}
	return nil, ErrNotFound
}
func (s mapSource) Close() error   { return nil }
func (s mapSource) String() string { return "map" }

func TestManager_EUCKRNames(t *testing.T) {
	// "유저" in EUC-KR
	raw := "data/\xc0\xaf\xc0\xfa/Hut.RSM"

	m := NewManager()
	m.AddSource(mapSource{Normalize(raw): "hut"})

	if got := Normalize(raw); got != "data/\xc0\xaf\xc0\xfa/hut.rsm" {
		t.Fatalf("Normalize mangled EUC-KR bytes: %q", got)
	}
	if data, err := m.Load(raw); err != nil || string(data) != "hut" {
		t.Fatalf("Load(raw) = %q, %v", data, err)
	}
	if data, err := m.Load("data/유저/hut.rsm"); err != nil || string(data) != "hut" {
		t.Fatalf("Load(utf-8) = %q, %v", data, err)
	}
	if _, err := m.Load("data/없음/hut.rsm"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
