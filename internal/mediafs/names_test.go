package mediafs

import (
	"testing"

	"github.com/snapetech/tribute/internal/catalog"
	"github.com/snapetech/tribute/internal/mediacache"
)

func TestListCached(t *testing.T) {
	cat, err := catalog.New(
		catalog.Entry{Key: "media1", Locator: "assets/1.JPEG"},
		catalog.Entry{Key: "a/b", Locator: "assets/x.mp4"},
		catalog.Entry{Key: "a_b", Locator: "assets/y.mp4"},
		catalog.Entry{Key: "noext", Locator: "http://o/stream"},
		catalog.Entry{Key: "skipped", Locator: "assets/2.jpeg"},
	)
	if err != nil {
		t.Fatal(err)
	}
	c := mediacache.New(cat, "")
	for _, k := range []catalog.Key{"media1", "a/b", "a_b", "noext"} {
		c.Set(mediacache.Entry{Key: k, Data: []byte("x")})
	}

	got := listCached(c)
	want := []listing{
		{Name: "media1.jpeg", Key: "media1"},
		{Name: "a_b.mp4", Key: "a/b"},
		{Name: "a_b-1.mp4", Key: "a_b"},
		{Name: "noext.bin", Key: "noext"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("%d: got %+v want %+v", i, got[i], want[i])
		}
	}
}

func TestSanitize(t *testing.T) {
	for in, want := range map[string]string{
		"plain": "plain",
		"a/b":   "a_b",
		"":      "_",
		"..":    "_",
	} {
		if got := sanitize(in); got != want {
			t.Errorf("sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestInoStable(t *testing.T) {
	if inoFromString("media:x") != inoFromString("media:x") {
		t.Fatal("ino not stable")
	}
	if inoFromString("media:x") == inoFromString("media:y") {
		t.Fatal("ino collision")
	}
}
