// Package resolver replaces embedding directives with the content they reference.
package resolver

import (
	"cmp"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/starford/playpack/internal/apperr"
	"github.com/starford/playpack/internal/compressor"
	"github.com/starford/playpack/internal/directive"
	"github.com/starford/playpack/internal/models"
	"github.com/starford/playpack/internal/storage"
)

// DecoderGlobal is the name under which the bundled inflate library is
// reachable in the artifact.
const DecoderGlobal = "pako"

// Resolver loads the files referenced by directives and rewrites a buffer.
type Resolver struct {
	store  storage.Provider
	comp   compressor.Compressor
	logger *slog.Logger
}

// New creates a resolver reading referenced files from store.
func New(store storage.Provider, comp compressor.Compressor, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, comp: comp, logger: logger}
}

// ResolveKinds scans text and resolves only directives of the given kinds.
func (r *Resolver) ResolveKinds(ctx context.Context, text string, kinds ...models.DirectiveKind) (string, []models.AssetReport, error) {
	return r.Resolve(ctx, text, directive.Collect(directive.Scan(text), kinds...))
}

// Resolve replaces every directive's span in text with its embedding.
//
// Replacements are computed concurrently, then spliced into text in a single
// left-to-right pass. Directives must come from a scan of text and must not
// overlap. If any referenced file is missing or fails to compress, the error
// is returned and no substitution is applied.
func (r *Resolver) Resolve(ctx context.Context, text string, directives []models.Directive) (string, []models.AssetReport, error) {
	if len(directives) == 0 {
		return text, nil, nil
	}

	ordered := slices.Clone(directives)
	slices.SortStableFunc(ordered, func(a, b models.Directive) int {
		return cmp.Compare(a.Start, b.Start)
	})
	if err := checkSpans(text, ordered); err != nil {
		return "", nil, err
	}

	replacements := make([]string, len(ordered))
	reports := make([]models.AssetReport, len(ordered))

	// Process fan-out is bounded by the compressor itself.
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range ordered {
		g.Go(func() error {
			rep, report, err := r.embed(gctx, d)
			if err != nil {
				return err
			}
			replacements[i] = rep
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", nil, err
	}

	size := len(text)
	for i, d := range ordered {
		size += len(replacements[i]) - (d.End - d.Start)
	}

	var b strings.Builder
	b.Grow(size)
	last := 0
	for i, d := range ordered {
		b.WriteString(text[last:d.Start])
		b.WriteString(replacements[i])
		last = d.End
	}
	b.WriteString(text[last:])

	return b.String(), reports, nil
}

// embed builds the replacement text for one directive.
func (r *Resolver) embed(ctx context.Context, d models.Directive) (string, models.AssetReport, error) {
	data, err := r.store.Read(d.Path)
	if err != nil {
		if storage.IsNotExist(err) {
			return "", models.AssetReport{}, &apperr.MissingAssetError{Path: d.Path}
		}
		return "", models.AssetReport{}, fmt.Errorf("resolver: read %s: %w", d.Path, err)
	}

	report := models.AssetReport{Path: d.Path, Kind: d.Kind, RawSize: len(data)}
	var rep string

	switch {
	case d.Compress:
		abs, err := r.store.Path(d.Path)
		if err != nil {
			return "", report, err
		}
		deflated, err := r.comp.Compress(ctx, abs)
		if err != nil {
			return "", report, err
		}
		report.CompressedSize = len(deflated)
		rep = InflateScript(base64.StdEncoding.EncodeToString(deflated))
		r.logger.Info("embed: compressed",
			slog.String("path", d.Path),
			slog.Int("compressed_bytes", len(deflated)),
			slog.String("compressed_size", humanize.Bytes(uint64(len(deflated)))))

	case d.Kind == models.ImageEmbed:
		rep = d.Prefix + DataURI(d.Ext, data) + d.Suffix

	case d.Kind == models.ScriptEmbed:
		rep = "<script>" + string(data) + "\n</script>"

	default:
		rep = string(data)
	}

	report.EncodedSize = len(rep)
	r.logger.Info("embed: inlined",
		slog.String("path", d.Path),
		slog.String("kind", d.Kind.String()),
		slog.Int("encoded_bytes", len(rep)),
		slog.String("encoded_size", humanize.Bytes(uint64(len(rep)))))

	return rep, report, nil
}

// InflateScript returns a script tag that decodes, inflates and evaluates
// a base64 gzip payload at load time.
func InflateScript(payload string) string {
	return "<script>eval(" + DecoderGlobal + ".inflate(atob('" + payload + "'), { to: 'string' }));</script>"
}

// DataURI encodes data as a base64 image URI.
func DataURI(ext string, data []byte) string {
	return "data:image/" + ext + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func checkSpans(text string, ordered []models.Directive) error {
	for i, d := range ordered {
		if d.Start < 0 || d.End > len(text) || d.Start > d.End || text[d.Start:d.End] != d.MatchedText {
			return fmt.Errorf("resolver: directive for %s does not match the buffer at [%d,%d)", d.Path, d.Start, d.End)
		}
		if i > 0 && ordered[i-1].Overlaps(d) {
			return fmt.Errorf("resolver: directives for %s and %s overlap", ordered[i-1].Path, d.Path)
		}
	}
	return nil
}
