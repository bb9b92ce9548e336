package image

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "snapshots.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)

	data := []byte{0xa5, 0x01, 0x02, 0x03}
	if err := s.Save("boot", data); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load("boot")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("loaded %x, want %x", got, data)
	}
}

func TestSaveReplaces(t *testing.T) {
	s := openTestStore(t)

	if err := s.Save("boot", []byte("first")); err != nil {
		t.Fatal(err)
	}
	if err := s.Save("boot", []byte("second")); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load("boot")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second" {
		t.Errorf("loaded %q, want the replacement image", got)
	}

	infos, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 {
		t.Errorf("list has %d entries after replace, want 1", len(infos))
	}
}

func TestLoadMissing(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Load("absent"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("error = %v, want ErrSnapshotNotFound", err)
	}
}

func TestList(t *testing.T) {
	s := openTestStore(t)
	for _, name := range []string{"alpha", "beta", "gamma"} {
		if err := s.Save(name, []byte(name)); err != nil {
			t.Fatal(err)
		}
	}

	infos, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 3 {
		t.Fatalf("list has %d entries, want 3", len(infos))
	}
	seen := map[string]bool{}
	for _, info := range infos {
		seen[info.Name] = true
		if info.Size != len(info.Name) {
			t.Errorf("%s: size = %d, want %d", info.Name, info.Size, len(info.Name))
		}
		if info.CreatedAt.IsZero() {
			t.Errorf("%s: zero creation time", info.Name)
		}
	}
	for _, name := range []string{"alpha", "beta", "gamma"} {
		if !seen[name] {
			t.Errorf("list is missing %s", name)
		}
	}
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	if err := s.Save("boot", []byte("image")); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete("boot"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load("boot"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("deleted snapshot still loads (err = %v)", err)
	}
	if err := s.Delete("boot"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("double delete error = %v, want ErrSnapshotNotFound", err)
	}
}

func TestOpenCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "snapshots.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Save("boot", []byte("x")); err != nil {
		t.Fatal(err)
	}
}
