// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/starford/playpack/internal/apperr"
	"github.com/starford/playpack/internal/combiner"
	"github.com/starford/playpack/internal/compressor"
	"github.com/starford/playpack/internal/history"
	"github.com/starford/playpack/internal/mcpserver"
	"github.com/starford/playpack/internal/models"
	"github.com/starford/playpack/internal/pipeline"
	"github.com/starford/playpack/internal/preview"
	"github.com/starford/playpack/internal/project"
	"github.com/starford/playpack/internal/resolver"
	"github.com/starford/playpack/internal/sse"
	"github.com/starford/playpack/internal/storage"
	"github.com/starford/playpack/internal/toolchain"
	"github.com/starford/playpack/internal/watch"
)

// DecoderFile is the name the inflate library gets inside the bundle.
const DecoderFile = "pako_inflate.min.js"

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{mode: ModeBuild}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := app.logger
	if logger == nil {
		// stdout carries the MCP protocol in mcp mode.
		var out io.Writer = os.Stdout
		if app.mode == ModeMCP {
			out = os.Stderr
		}
		logger = slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
		slog.SetDefault(logger)
	}

	logger.Info("Configuration loaded",
		slog.String("mode", string(app.mode)),
		slog.String("project_dir", cfg.Project.Dir),
		slog.String("bundle_dir", cfg.Build.BundleDir),
		slog.String("compressor", cfg.Compressor.Backend),
		slog.Bool("toolchain", cfg.Toolchain.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	b, err := NewBuilder(cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	if app.mode != ModeBuild {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
	}

	switch app.mode {
	case ModeBuild:
		_, err = b.Build(ctx)
	case ModeWatch:
		err = b.watch(ctx, app.preview)
	case ModeServe:
		err = b.serve(ctx)
	case ModeMCP:
		err = b.serveMCP(ctx)
	default:
		err = fmt.Errorf("unknown mode %q", app.mode)
	}
	if err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// Builder runs the build sequence for one configuration.
type Builder struct {
	cfg     *Config
	logger  *slog.Logger
	comp    compressor.Compressor
	history *history.DB
}

// NewBuilder creates the shared compressor and opens the build history.
func NewBuilder(cfg *Config, logger *slog.Logger) (*Builder, error) {
	copts := cfg.Compressor.Options()
	copts.Stderr = os.Stderr
	comp, err := compressor.New(copts)
	if err != nil {
		return nil, &apperr.ConfigurationError{Source: "compressor", Err: err}
	}

	b := &Builder{cfg: cfg, logger: logger, comp: comp}
	if cfg.History.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.History.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
		db, err := history.Open(cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("init history: %w", err)
		}
		b.history = db
	}
	return b, nil
}

// Close releases the build history.
func (b *Builder) Close() error {
	if b.history == nil {
		return nil
	}
	return b.history.Close()
}

// Build runs every step: project metadata, toolchain, then Assemble.
func (b *Builder) Build(ctx context.Context) (models.BuildReport, error) {
	title, err := b.Prepare(ctx)
	if err != nil {
		return models.BuildReport{}, err
	}
	return b.Assemble(ctx, title)
}

// Prepare resolves the project title and runs the enabled toolchain steps.
func (b *Builder) Prepare(ctx context.Context) (string, error) {
	title, err := b.Title()
	if err != nil {
		return "", err
	}
	b.logger.Info("build: project title", slog.String("title", title))

	tc := b.cfg.Toolchain
	if !tc.Enabled {
		return title, nil
	}
	client := toolchain.New(tc.Options(), b.logger)
	jar, err := client.Prepare(ctx)
	if err != nil {
		return "", err
	}
	if tc.BuildGame {
		root, err := filepath.Abs(b.cfg.Build.BundleDir)
		if err != nil {
			return "", &apperr.ToolchainError{Step: "build game", Err: err}
		}
		if err := client.Build(ctx, jar, b.cfg.Project.Dir, root); err != nil {
			return "", err
		}
	}
	return title, nil
}

// Title returns the configured title override or the one in the project file.
func (b *Builder) Title() (string, error) {
	if b.cfg.Project.Title != "" {
		return b.cfg.Project.Title, nil
	}
	info, err := project.Load(b.cfg.Project.SettingsPath())
	if err != nil {
		return "", err
	}
	return info.Title, nil
}

// Assemble produces the artifact from an existing bundle: decoder copy,
// archive combine, bundle pipeline and history record.
func (b *Builder) Assemble(ctx context.Context, title string) (models.BuildReport, error) {
	store, err := storage.NewFS(b.cfg.Build.BundlePath(title))
	if err != nil {
		return models.BuildReport{}, &apperr.ConfigurationError{Source: "bundle dir", Err: err}
	}

	if src := b.cfg.Pipeline.DecoderScript; src != "" {
		data, err := os.ReadFile(src)
		if err != nil {
			return models.BuildReport{}, &apperr.ConfigurationError{Source: "decoder script", Err: err}
		}
		if err := store.Write(DecoderFile, data); err != nil {
			return models.BuildReport{}, fmt.Errorf("copy decoder: %w", err)
		}
	}

	comb := combiner.New(store, b.comp, b.logger)
	files, err := comb.Discover(b.cfg.Build.Patterns(title))
	if err != nil {
		return models.BuildReport{}, err
	}
	archive, archived, err := comb.Combine(ctx, files, title+"_archive.js")
	if err != nil {
		return models.BuildReport{}, err
	}
	if err := store.Write(archive.Path, archive.Content); err != nil {
		return models.BuildReport{}, fmt.Errorf("write archive: %w", err)
	}

	res := resolver.New(store, b.comp, b.logger)
	p := pipeline.New(store, res, pipeline.Options{
		IndexFile: b.cfg.Build.IndexFile,
		OutputDir: b.cfg.Build.OutputDir,
		Title:     title,
		Minify:    b.cfg.Minify.Options(),
	}, b.logger)
	report, err := p.Run(ctx)
	if err != nil {
		return report, err
	}
	report.Assets = append(archived, report.Assets...)

	b.record(report)
	return report, nil
}

// record stores the report and logs the size change against the previous
// build. History failures never fail a build.
func (b *Builder) record(report models.BuildReport) {
	if b.history == nil {
		return
	}
	prev, err := b.history.LastBuild(report.Title)
	switch {
	case err == nil:
		delta := report.Size - prev.Size
		sign := "+"
		if delta < 0 {
			sign = "-"
		}
		b.logger.Info("history: size change",
			slog.Int("previous_bytes", prev.Size),
			slog.Int("delta_bytes", delta),
			slog.String("delta", sign+humanize.Bytes(uint64(abs(delta)))))
	case !errors.Is(err, apperr.ErrNotFound):
		b.logger.Warn("history: lookup failed", slog.String("error", err.Error()))
	}

	if _, err := b.history.RecordBuild(report); err != nil {
		b.logger.Warn("history: record failed", slog.String("error", err.Error()))
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// generated reports whether rel, relative to the bundle directory, is an
// output of Assemble. The artifact is matched where it is actually written,
// which may be an output_dir nested in the bundle.
func (b *Builder) generated(title string) func(rel string) bool {
	outputs := make(map[string]struct{}, 3)
	for _, name := range []string{DecoderFile, title + "_archive.js", b.artifactRel(title)} {
		if name != "" {
			outputs[name] = struct{}{}
		}
	}
	return func(rel string) bool {
		_, ok := outputs[rel]
		return ok
	}
}

// artifactRel returns the artifact path relative to the bundle directory,
// slash-separated. An artifact outside the bundle yields "".
func (b *Builder) artifactRel(title string) string {
	name := pipeline.ArtifactName(title)
	if b.cfg.Build.OutputDir == "" {
		return name
	}
	root, err := filepath.Abs(b.cfg.Build.BundlePath(title))
	if err != nil {
		return ""
	}
	dest, err := filepath.Abs(filepath.Join(b.cfg.Build.OutputDir, name))
	if err != nil {
		return ""
	}
	rel, err := filepath.Rel(root, dest)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return filepath.ToSlash(rel)
}

func (b *Builder) watch(ctx context.Context, withPreview bool) error {
	title, err := b.Prepare(ctx)
	if err != nil {
		return err
	}

	state := &preview.State{}
	broker := sse.NewBroker(b.cfg.Preview.Debounce)
	defer broker.Close()

	rebuild := func(ctx context.Context) error {
		broker.PublishBuild(sse.BuildStarted, map[string]string{"title": title})
		report, err := b.Assemble(ctx, title)
		state.Update(report, err)
		if err != nil {
			broker.PublishBuild(sse.BuildFailed, map[string]string{"error": err.Error()})
			return err
		}
		broker.PublishBuild(sse.BuildSucceeded, report)
		return nil
	}
	if err := rebuild(ctx); err != nil {
		b.logger.Error("build: initial build failed", slog.String("error", err.Error()))
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return watch.Watch(gCtx, b.cfg.Build.BundlePath(title), watch.Options{
			Debounce: b.cfg.Preview.Debounce,
			Ignore:   b.generated(title),
		}, b.logger, rebuild)
	})
	if withPreview {
		g.Go(func() error {
			return preview.Serve(gCtx, b.cfg.Preview.Address(), preview.NewRouter(state, broker), b.logger)
		})
	}
	return g.Wait()
}

func (b *Builder) serve(ctx context.Context) error {
	state := &preview.State{}
	broker := sse.NewBroker(b.cfg.Preview.Debounce)
	defer broker.Close()

	report, err := b.Build(ctx)
	state.Update(report, err)
	if err != nil {
		return err
	}
	return preview.Serve(ctx, b.cfg.Preview.Address(), preview.NewRouter(state, broker), b.logger)
}

func (b *Builder) serveMCP(ctx context.Context) error {
	title, err := b.Title()
	if err != nil {
		return err
	}
	store, err := storage.NewFS(b.cfg.Build.BundlePath(title))
	if err != nil {
		return &apperr.ConfigurationError{Source: "bundle dir", Err: err}
	}

	var hist history.Recorder
	if b.history != nil {
		hist = b.history
	}
	srv := mcpserver.New(store, b.Build, hist, title)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeStdio() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}
