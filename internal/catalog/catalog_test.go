package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		locator string
		want    Kind
	}{
		{"a.JPG", KindImage},
		{"assets/1.jpeg", KindImage},
		{"https://cdn/x.PNG?v=2", KindImage},
		{"photo.webp", KindImage},
		{"anim.gif", KindImage},
		{"pic.AVIF", KindImage},
		{"clip.mp4", KindVideo},
		{"clip.webm", KindVideo},
		{"", KindVideo},
		{"noext", KindVideo},
	}
	for _, tt := range tests {
		if got := KindOf(tt.locator); got != tt.want {
			t.Errorf("KindOf(%q) = %q, want %q", tt.locator, got, tt.want)
		}
	}
}

func TestNew_rejectsDuplicateAndEmpty(t *testing.T) {
	_, err := New(Entry{Key: "a", Locator: "1.jpg"}, Entry{Key: "a", Locator: "2.jpg"})
	if !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("duplicate: err = %v", err)
	}
	_, err = New(Entry{Key: "", Locator: "1.jpg"})
	if !errors.Is(err, ErrEmptyEntry) {
		t.Errorf("empty key: err = %v", err)
	}
	_, err = New(Entry{Key: "a", Locator: "  "})
	if !errors.Is(err, ErrEmptyEntry) {
		t.Errorf("empty locator: err = %v", err)
	}
}

func TestEntries_stableOrderAndCopy(t *testing.T) {
	c := Default()
	e1 := c.Entries()
	e1[0].Key = "mutated"
	e2 := c.Entries()
	if e2[0].Key != "media1" {
		t.Errorf("Entries should return a copy; got %q", e2[0].Key)
	}
	if c.Len() != 7 {
		t.Errorf("Len = %d", c.Len())
	}
	if c.Kind("media8") != KindVideo || c.Kind("media1") != KindImage {
		t.Errorf("kinds: media8=%s media1=%s", c.Kind("media8"), c.Kind("media1"))
	}
	if _, err := c.Entry("nope"); !errors.Is(err, ErrUnknownKey) {
		t.Errorf("Entry(nope) err = %v", err)
	}
}

func TestResolve(t *testing.T) {
	c, err := New(
		Entry{Key: "rel", Locator: "assets/1.jpeg"},
		Entry{Key: "root", Locator: "/assets/2.mp4"},
		Entry{Key: "abs", Locator: "https://cdn.example/x.png"},
	)
	if err != nil {
		t.Fatal(err)
	}
	r, err := c.Resolve("http://origin.test/site")
	if err != nil {
		t.Fatal(err)
	}
	want := map[Key]string{
		"rel":  "http://origin.test/site/assets/1.jpeg",
		"root": "http://origin.test/assets/2.mp4",
		"abs":  "https://cdn.example/x.png",
	}
	for k, w := range want {
		if got, _ := r.Locator(k); got != w {
			t.Errorf("%s: got %q want %q", k, got, w)
		}
	}
	if _, err := c.Resolve("file:///etc"); err == nil {
		t.Error("non-http base should be rejected")
	}
	same, _ := c.Resolve("")
	if same != c {
		t.Error("empty base should return the same catalog")
	}
}

func TestEntryExt(t *testing.T) {
	if got := (Entry{Locator: "http://h/a/B.MP4?x=1"}).Ext(); got != ".mp4" {
		t.Errorf("Ext = %q", got)
	}
	if got := (Entry{Locator: "noext"}).Ext(); got != "" {
		t.Errorf("Ext = %q", got)
	}
}

func TestLoadFile_formats(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"c.json": `{"media":[{"key":"a","locator":"1.jpg"},{"key":"b","locator":"2.mp4"}]}`,
		"c.toml": "[[media]]\nkey = \"a\"\nlocator = \"1.jpg\"\n\n[[media]]\nkey = \"b\"\nlocator = \"2.mp4\"\n",
		"c.yaml": "media:\n  - key: a\n    locator: 1.jpg\n  - key: b\n    locator: 2.mp4\n",
	}
	for name, body := range files {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
		c, err := LoadFile(p)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if c.Len() != 2 || c.Kind("a") != KindImage || c.Kind("b") != KindVideo {
			t.Errorf("%s: %+v", name, c.Entries())
		}
	}
	bad := filepath.Join(dir, "c.ini")
	os.WriteFile(bad, []byte("x"), 0644)
	if _, err := LoadFile(bad); err == nil {
		t.Error("unsupported extension should fail")
	}
}

func TestSaveLoad_roundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")
	if err := Default().Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Len() != Default().Len() {
		t.Errorf("roundtrip len %d", c.Len())
	}
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if e.Name() != "catalog.json" {
			t.Errorf("unexpected file left in dir: %s", e.Name())
		}
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("perm = %o", info.Mode().Perm())
	}
}
