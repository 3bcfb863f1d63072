// Package combiner packs a set of bundle files into one generated script
// mapping each relative path to its compressed, base64-encoded content.
package combiner

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/starford/playpack/internal/apperr"
	"github.com/starford/playpack/internal/compressor"
	"github.com/starford/playpack/internal/models"
	"github.com/starford/playpack/internal/storage"
)

// ManifestVar is the global the generated script defines.
const ManifestVar = "EMBED_ARCHIVE_DATA"

// Combiner builds archive manifests from files under a storage root.
type Combiner struct {
	store  storage.Provider
	comp   compressor.Compressor
	logger *slog.Logger
}

// New creates a combiner. File paths passed to Combine are relative to
// store's root, which is also the base the manifest keys are relative to.
func New(store storage.Provider, comp compressor.Compressor, logger *slog.Logger) *Combiner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Combiner{store: store, comp: comp, logger: logger}
}

// Discover expands glob patterns into a sorted, duplicate-free file list.
func (c *Combiner) Discover(patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range patterns {
		matches, err := c.store.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("combiner: discover: %w", err)
		}
		for _, m := range matches {
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Combine compresses every file concurrently and returns the generated
// manifest script as an Asset named outputName. Any failure fails the whole
// call; no entry is silently dropped.
func (c *Combiner) Combine(ctx context.Context, files []string, outputName string) (models.Asset, []models.AssetReport, error) {
	var (
		mu      sync.Mutex
		entries = make(map[string]string, len(files))
		reports = make([]models.AssetReport, len(files))
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, rel := range files {
		g.Go(func() error {
			raw, err := c.store.Read(rel)
			if err != nil {
				if storage.IsNotExist(err) {
					return &apperr.MissingAssetError{Path: rel}
				}
				return fmt.Errorf("combiner: read %s: %w", rel, err)
			}
			abs, err := c.store.Path(rel)
			if err != nil {
				return err
			}
			deflated, err := c.comp.Compress(gctx, abs)
			if err != nil {
				return err
			}
			encoded := base64.StdEncoding.EncodeToString(deflated)

			mu.Lock()
			entries[rel] = encoded
			mu.Unlock()

			reports[i] = models.AssetReport{
				Path:           rel,
				Kind:           models.ArchiveEntry,
				RawSize:        len(raw),
				CompressedSize: len(deflated),
				EncodedSize:    len(encoded),
			}
			c.logger.Debug("combiner: packed",
				slog.String("path", rel),
				slog.Int("raw_bytes", len(raw)),
				slog.Int("compressed_bytes", len(deflated)),
				slog.Int("encoded_bytes", len(encoded)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.Asset{}, nil, err
	}

	content, err := Render(entries)
	if err != nil {
		return models.Asset{}, nil, err
	}

	c.logger.Info("combiner: archive written",
		slog.String("output", outputName),
		slog.Int("files", len(files)),
		slog.Int("bytes", len(content)),
		slog.String("size", humanize.Bytes(uint64(len(content)))))

	return models.Asset{Path: outputName, Content: content}, reports, nil
}

// Render produces `var EMBED_ARCHIVE_DATA = {...}` with two-space indented
// JSON. Keys are sorted, so equal inputs render identically.
func Render(entries map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("var " + ManifestVar + " = ")

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return nil, fmt.Errorf("combiner: encode manifest: %w", err)
	}
	// Encoder terminates with a newline the original layout does not have.
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
