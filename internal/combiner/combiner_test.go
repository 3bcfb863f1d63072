package combiner

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/starford/playpack/internal/apperr"
	"github.com/starford/playpack/internal/compressor"
	"github.com/starford/playpack/internal/models"
	"github.com/starford/playpack/internal/testutil"
)

const prefix = "var EMBED_ARCHIVE_DATA = "

func parseManifest(t *testing.T, a models.Asset) map[string]string {
	t.Helper()
	s := string(a.Content)
	if !strings.HasPrefix(s, prefix) {
		t.Fatalf("content does not start with %q: %q", prefix, s)
	}
	m := map[string]string{}
	if err := json.Unmarshal([]byte(strings.TrimPrefix(s, prefix)), &m); err != nil {
		t.Fatalf("manifest json: %v", err)
	}
	return m
}

func TestCombine_RoundTrip(t *testing.T) {
	files := map[string]string{
		"archive/game.arcd":      "arcd\x00\x01binary",
		"archive/game.dmanifest": strings.Repeat("manifest ", 40),
		"game_asmjs.js":          "var Module = {};",
	}
	_, store := testutil.TestBundle(t, files)
	c := New(store, compressor.NewBuiltin(), testutil.Logger())

	list := []string{"archive/game.arcd", "archive/game.dmanifest", "game_asmjs.js"}
	asset, reports, err := c.Combine(context.Background(), list, "game_archive.js")
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if asset.Path != "game_archive.js" {
		t.Errorf("path = %q, want %q", asset.Path, "game_archive.js")
	}

	m := parseManifest(t, asset)
	if len(m) != len(list) {
		t.Fatalf("entries = %d, want %d", len(m), len(list))
	}
	for _, rel := range list {
		enc, ok := m[rel]
		if !ok {
			t.Errorf("missing entry %q", rel)
			continue
		}
		deflated, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			t.Fatalf("base64 %s: %v", rel, err)
		}
		raw, err := compressor.Gunzip(deflated)
		if err != nil {
			t.Fatalf("gunzip %s: %v", rel, err)
		}
		if string(raw) != files[rel] {
			t.Errorf("%s round trip = %q, want %q", rel, raw, files[rel])
		}
	}

	for i, r := range reports {
		if r.Path != list[i] || r.Kind != models.ArchiveEntry || r.RawSize != len(files[list[i]]) {
			t.Errorf("report %d = %+v", i, r)
		}
	}
}

func TestCombine_Deterministic(t *testing.T) {
	_, store := testutil.TestBundle(t, map[string]string{"b.bin": "bbb", "a.bin": "aaa"})
	c := New(store, compressor.NewBuiltin(), testutil.Logger())

	first, _, err := c.Combine(context.Background(), []string{"b.bin", "a.bin"}, "out.js")
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := c.Combine(context.Background(), []string{"a.bin", "b.bin"}, "out.js")
	if err != nil {
		t.Fatal(err)
	}
	if string(first.Content) != string(second.Content) {
		t.Errorf("output depends on input order:\n%s\n---\n%s", first.Content, second.Content)
	}
	if strings.Index(string(first.Content), `"a.bin"`) > strings.Index(string(first.Content), `"b.bin"`) {
		t.Error("keys are not sorted")
	}
}

func TestCombine_MissingFileFailsWhole(t *testing.T) {
	_, store := testutil.TestBundle(t, map[string]string{"a.bin": "a"})
	c := New(store, compressor.NewBuiltin(), testutil.Logger())

	asset, reports, err := c.Combine(context.Background(), []string{"a.bin", "gone.bin"}, "out.js")
	if !errors.Is(err, apperr.ErrMissingAsset) {
		t.Fatalf("err = %v, want ErrMissingAsset", err)
	}
	if asset.Content != nil || reports != nil {
		t.Errorf("partial result returned: %+v", asset)
	}
}

func TestCombine_Empty(t *testing.T) {
	_, store := testutil.TestBundle(t, nil)
	c := New(store, compressor.NewBuiltin(), testutil.Logger())

	asset, _, err := c.Combine(context.Background(), nil, "out.js")
	if err != nil {
		t.Fatal(err)
	}
	if got := string(asset.Content); got != prefix+"{}" {
		t.Errorf("content = %q, want %q", got, prefix+"{}")
	}
}

func TestRender_Layout(t *testing.T) {
	got, err := Render(map[string]string{"x/y": "<AB+/>"})
	if err != nil {
		t.Fatal(err)
	}
	want := prefix + "{\n  \"x/y\": \"<AB+/>\"\n}"
	if string(got) != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}

func TestDiscover(t *testing.T) {
	_, store := testutil.TestBundle(t, map[string]string{
		"archive/b.arci": "b",
		"archive/a.arcd": "a",
		"game_asmjs.js":  "m",
		"index.html":     "<html>",
	})
	testutil.WriteFile(t, store.Root(), "archive/sub/nested.bin", []byte("n"))
	c := New(store, nil, testutil.Logger())

	got, err := c.Discover([]string{"archive/*", "game_asmjs.js", "archive/a.arcd", "missing_asmjs.js"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"archive/a.arcd", "archive/b.arci", "game_asmjs.js"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Discover = %v, want %v", got, want)
	}
}
