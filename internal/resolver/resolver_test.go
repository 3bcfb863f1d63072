package resolver

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/starford/playpack/internal/apperr"
	"github.com/starford/playpack/internal/compressor"
	"github.com/starford/playpack/internal/directive"
	"github.com/starford/playpack/internal/models"
	"github.com/starford/playpack/internal/testutil"
)

func newResolver(t *testing.T, files map[string]string) (*Resolver, *testutil.CountingCompressor) {
	t.Helper()
	_, store := testutil.TestBundle(t, files)
	comp := testutil.NewCountingCompressor()
	return New(store, comp, testutil.Logger()), comp
}

func resolveAll(t *testing.T, r *Resolver, text string) string {
	t.Helper()
	out, _, err := r.Resolve(context.Background(), text, directive.Collect(directive.Scan(text)))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return out
}

func TestResolve_CommentVerbatim(t *testing.T) {
	r, _ := newResolver(t, map[string]string{"foo.js": "console.log(1);"})
	out := resolveAll(t, r, "before\n// EMBED: foo.js\nafter")
	if out != "before\nconsole.log(1);\nafter" {
		t.Errorf("out = %q", out)
	}
}

func TestResolve_CommentWithCRLF(t *testing.T) {
	r, _ := newResolver(t, map[string]string{"foo.js": "console.log(1);"})
	out := resolveAll(t, r, "before\r\n// EMBED: foo.js\r\nafter")
	if out != "before\r\nconsole.log(1);\r\nafter" {
		t.Errorf("out = %q", out)
	}
}

func TestResolve_ScriptsDistinctFiles(t *testing.T) {
	files := map[string]string{}
	var text strings.Builder
	const n = 5
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("s%d.js", i)
		files[name] = fmt.Sprintf("var s%d = %d;", i, i)
		fmt.Fprintf(&text, "<script src=\"%s\" embed></script>\n", name)
	}
	r, _ := newResolver(t, files)

	in := text.String()
	directives := directive.Collect(directive.Scan(in))
	out, reports, err := r.Resolve(context.Background(), in, directives)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	for _, d := range directives {
		if strings.Contains(out, d.MatchedText) {
			t.Errorf("directive %q still present", d.MatchedText)
		}
	}
	if got := strings.Count(out, "<script>"); got != n {
		t.Errorf("inlined scripts = %d, want %d", got, n)
	}
	for i := 0; i < n; i++ {
		want := fmt.Sprintf("<script>var s%d = %d;\n</script>", i, i)
		if !strings.Contains(out, want) {
			t.Errorf("missing %q", want)
		}
	}
	if len(reports) != n {
		t.Errorf("reports = %d, want %d", len(reports), n)
	}
}

func TestResolve_NoDirectivesUnchanged(t *testing.T) {
	r, comp := newResolver(t, nil)
	in := "<html><script>var already = 'resolved';</script></html>"
	out := resolveAll(t, r, in)
	if out != in {
		t.Errorf("out = %q, want input unchanged", out)
	}
	if comp.Calls() != 0 {
		t.Errorf("compressor calls = %d, want 0", comp.Calls())
	}
}

var inflateRe = regexp.MustCompile(`^<script>eval\(pako\.inflate\(atob\('([A-Za-z0-9+/=]+)'\), \{ to: 'string' \}\)\);</script>$`)

func TestResolve_CompressedScript(t *testing.T) {
	src := strings.Repeat("console.log(1);\n", 62) + "alert();"
	r, comp := newResolver(t, map[string]string{"game.js": src})

	out := resolveAll(t, r, `<script src="game.js" embed="compress"></script>`)
	m := inflateRe.FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("out is not an inflate script: %q", out)
	}
	deflated, err := base64.StdEncoding.DecodeString(m[1])
	if err != nil {
		t.Fatalf("base64: %v", err)
	}
	raw, err := compressor.Gunzip(deflated)
	if err != nil {
		t.Fatalf("gunzip: %v", err)
	}
	if len(raw) != 1000 || string(raw) != src {
		t.Errorf("inflated %d bytes, want the original 1000", len(raw))
	}
	if comp.Calls() != 1 {
		t.Errorf("compressor calls = %d, want 1", comp.Calls())
	}
}

func TestResolve_ImageDataURI(t *testing.T) {
	png := "\x89PNG\r\n\x1a\n\x00\x00"
	r, _ := newResolver(t, map[string]string{"logo.png": png})

	out := resolveAll(t, r, `var splash_image = "logo.png";`)
	want := `var splash_image = "data:image/png;base64,` + base64.StdEncoding.EncodeToString([]byte(png)) + `";`
	if out != want {
		t.Errorf("out = %q, want %q", out, want)
	}
}

func TestResolve_MissingFileIsAtomic(t *testing.T) {
	r, _ := newResolver(t, map[string]string{"present.js": "ok();"})
	in := "// EMBED: present.js\n// EMBED: absent.js\n"

	out, reports, err := r.Resolve(context.Background(), in, directive.Collect(directive.Scan(in)))
	if !errors.Is(err, apperr.ErrMissingAsset) {
		t.Fatalf("err = %v, want ErrMissingAsset", err)
	}
	var missing *apperr.MissingAssetError
	if !errors.As(err, &missing) || missing.Path != "absent.js" {
		t.Errorf("missing error = %+v", missing)
	}
	if out != "" || reports != nil {
		t.Errorf("partial result returned: %q %+v", out, reports)
	}
}

func TestResolve_DuplicateOccurrences(t *testing.T) {
	r, comp := newResolver(t, map[string]string{"a.js": "A"})
	in := `<script src="a.js" embed="compress"></script>|<script src="a.js" embed="compress"></script>`
	out := resolveAll(t, r, in)
	parts := strings.Split(out, "|")
	if len(parts) != 2 || parts[0] != parts[1] {
		t.Fatalf("duplicates resolved differently: %q", out)
	}
	if comp.Calls() != 2 {
		t.Errorf("compressor calls = %d, want 2 (one per directive)", comp.Calls())
	}
}

func TestResolve_RejectsOverlap(t *testing.T) {
	r, _ := newResolver(t, map[string]string{"a.js": "A", "b.js": "B"})
	in := "// EMBED: a.js"
	ds := []models.Directive{
		{MatchedText: in, Path: "a.js", Kind: models.CommentEmbed, Start: 0, End: len(in)},
		{MatchedText: in[3:], Path: "b.js", Kind: models.CommentEmbed, Start: 3, End: len(in)},
	}
	if _, _, err := r.Resolve(context.Background(), in, ds); err == nil {
		t.Error("expected overlap error")
	}
}

func TestResolve_RejectsStaleDirective(t *testing.T) {
	r, _ := newResolver(t, map[string]string{"a.js": "A"})
	ds := directive.Collect(directive.Scan("// EMBED: a.js"))
	if _, _, err := r.Resolve(context.Background(), "// EMBED: b.js", ds); err == nil {
		t.Error("expected error for directive from another buffer")
	}
}

func TestResolveKinds_ImagesOnly(t *testing.T) {
	r, _ := newResolver(t, map[string]string{"s.png": "img", "a.js": "A"})
	in := "var splash_image = \"s.png\";\n// EMBED: a.js\n"

	out, reports, err := r.ResolveKinds(context.Background(), in, models.ImageEmbed)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "// EMBED: a.js") {
		t.Error("comment directive resolved during image pass")
	}
	if !strings.Contains(out, "data:image/png;base64,") {
		t.Error("image directive not resolved")
	}
	if len(reports) != 1 || reports[0].Kind != models.ImageEmbed || reports[0].RawSize != 3 {
		t.Errorf("reports = %+v", reports)
	}
}

func TestResolve_IdenticalContentEqualPayload(t *testing.T) {
	r, _ := newResolver(t, map[string]string{"a.js": "same();", "b.js": "same();"})
	out := resolveAll(t, r, `<script src="a.js" embed="compress"></script>`+"\n"+`<script src="b.js" embed="compress"></script>`)
	lines := strings.Split(out, "\n")
	if len(lines) != 2 || !bytes.Equal([]byte(lines[0]), []byte(lines[1])) {
		t.Errorf("identical files produced different payloads: %q", out)
	}
}
