// Package pipeline turns a bundle's index.html into the single-file artifact.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/starford/playpack/internal/checksum"
	"github.com/starford/playpack/internal/minify"
	"github.com/starford/playpack/internal/models"
	"github.com/starford/playpack/internal/resolver"
	"github.com/starford/playpack/internal/storage"
)

// Stage is a step of a pipeline run. Stages always run in declaration order.
type Stage int

const (
	Loaded Stage = iota + 1
	ImagesEmbedded
	ScriptsEmbedded
	PatchesApplied
	Renamed
	Minified
	Written
)

var stageNames = [...]string{
	Loaded:          "loaded",
	ImagesEmbedded:  "images_embedded",
	ScriptsEmbedded: "scripts_embedded",
	PatchesApplied:  "patches_applied",
	Renamed:         "renamed",
	Minified:        "minified",
	Written:         "written",
}

func (s Stage) String() string {
	if s < Loaded || s > Written {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// Stages lists every stage in execution order.
func Stages() []Stage {
	return []Stage{Loaded, ImagesEmbedded, ScriptsEmbedded, PatchesApplied, Renamed, Minified, Written}
}

// HTTPRequestSubstitute replaces XMLHttpRequest in the artifact. It must be
// provided at runtime by the embedding page.
const HTTPRequestSubstitute = "EmbeddedHttpRequest"

var wasmProbeRe = regexp.MustCompile(`(?s)(isWASMSupported:).+?\}\)\(\),`)

// ApplyPatches forces the asm.js code path and reroutes HTTP requests to the
// embedded-data substitute. Only the first feature probe is rewritten.
func ApplyPatches(text string) string {
	if loc := wasmProbeRe.FindStringSubmatchIndex(text); loc != nil {
		text = text[:loc[0]] + text[loc[2]:loc[3]] + " false," + text[loc[1]:]
	}
	return strings.ReplaceAll(text, "XMLHttpRequest", HTTPRequestSubstitute)
}

// ArtifactName returns the file name of the artifact for a project title.
func ArtifactName(title string) string {
	return title + ".html"
}

// Options configures a pipeline.
type Options struct {
	// IndexFile is the entry page, relative to the bundle root.
	IndexFile string
	// OutputDir receives the artifact. Empty means the bundle root.
	OutputDir string
	Title     string
	Minify    minify.Options
}

// Pipeline runs the stages over one bundle directory.
type Pipeline struct {
	store    storage.Provider
	resolver *resolver.Resolver
	opts     Options
	logger   *slog.Logger
}

// New creates a pipeline.
func New(store storage.Provider, res *resolver.Resolver, opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.IndexFile == "" {
		opts.IndexFile = "index.html"
	}
	return &Pipeline{store: store, resolver: res, opts: opts, logger: logger}
}

// Run executes every stage. Any failure aborts the run before the artifact
// is written.
func (p *Pipeline) Run(ctx context.Context) (models.BuildReport, error) {
	report := models.BuildReport{Title: p.opts.Title}
	if strings.ContainsAny(p.opts.Title, `/\`) || p.opts.Title == "" || p.opts.Title == "." || p.opts.Title == ".." {
		return report, fmt.Errorf("pipeline: invalid project title %q", p.opts.Title)
	}

	var (
		text string
		out  []byte
		dest string
	)
	steps := map[Stage]func() error{
		Loaded: func() error {
			b, err := p.store.Read(p.opts.IndexFile)
			if err != nil {
				return fmt.Errorf("pipeline: load %s: %w", p.opts.IndexFile, err)
			}
			text = string(b)
			return nil
		},
		ImagesEmbedded: func() error {
			var (
				assets []models.AssetReport
				err    error
			)
			text, assets, err = p.resolver.ResolveKinds(ctx, text, models.ImageEmbed)
			report.Assets = append(report.Assets, assets...)
			return err
		},
		ScriptsEmbedded: func() error {
			var (
				assets []models.AssetReport
				err    error
			)
			text, assets, err = p.resolver.ResolveKinds(ctx, text, models.ScriptEmbed, models.CommentEmbed)
			report.Assets = append(report.Assets, assets...)
			return err
		},
		PatchesApplied: func() error {
			text = ApplyPatches(text)
			return nil
		},
		Renamed: func() error {
			dir := p.opts.OutputDir
			if dir == "" {
				dir = p.store.Root()
			}
			dest = filepath.Join(dir, ArtifactName(p.opts.Title))
			return nil
		},
		Minified: func() error {
			var err error
			out, err = minify.HTML([]byte(text), p.opts.Minify)
			return err
		},
		Written: func() error {
			if err := storage.WriteFileAtomic(dest, out); err != nil {
				return fmt.Errorf("pipeline: write artifact: %w", err)
			}
			return nil
		},
	}

	for _, stage := range Stages() {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		start := time.Now()
		if err := steps[stage](); err != nil {
			p.logger.Error("pipeline: stage failed",
				slog.String("stage", stage.String()),
				slog.String("error", err.Error()))
			return report, err
		}
		elapsed := time.Since(start)
		report.Stages = append(report.Stages, models.StageTiming{Stage: stage.String(), Duration: elapsed})
		p.logger.Debug("pipeline: stage done",
			slog.String("stage", stage.String()),
			slog.Duration("elapsed", elapsed))
	}

	report.Artifact = dest
	report.Size = len(out)
	report.Checksum = checksum.Sum(out)
	report.BuiltAt = time.Now().UTC()

	p.logger.Info("pipeline: artifact written",
		slog.String("path", dest),
		slog.Int("bytes", len(out)),
		slog.String("size", humanize.Bytes(uint64(len(out)))))

	return report, nil
}
