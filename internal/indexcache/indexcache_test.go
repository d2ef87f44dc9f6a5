package indexcache

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeSource(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "acronyms.db")
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSaveLoad(t *testing.T) {
	path := writeSource(t, "BTW\tby the way\n")
	in := &Index{
		Keys:    []string{"BTW"},
		Entries: map[string][]string{"BTW": {"by the way"}},
		Lines:   1,
	}
	if err := Save(path, in); err != nil {
		t.Fatal(err)
	}
	out, ok, err := Load(path)
	if err != nil || !ok {
		t.Fatalf("expected cache hit, ok=%v err=%v", ok, err)
	}
	if len(out.Entries["BTW"]) != 1 || out.Entries["BTW"][0] != "by the way" {
		t.Fatalf("unexpected entries: %+v", out.Entries)
	}
	if out.Lines != 1 {
		t.Fatalf("expected 1 line, got %d", out.Lines)
	}
}

func TestLoadMissing(t *testing.T) {
	path := writeSource(t, "BTW\tby the way\n")
	_, ok, err := Load(path)
	if err != nil || ok {
		t.Fatalf("expected clean miss, ok=%v err=%v", ok, err)
	}
}

func TestLoadStaleAfterSourceChange(t *testing.T) {
	path := writeSource(t, "BTW\tby the way\n")
	if err := Save(path, &Index{Entries: map[string][]string{}}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("BTW\tby the way\nIDK\tI don't know\n"), 0644); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}
	_, ok, err := Load(path)
	if err != nil || ok {
		t.Fatalf("expected stale cache to be ignored, ok=%v err=%v", ok, err)
	}
}
