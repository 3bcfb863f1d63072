package internal

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/playpack/internal/compressor"
	"github.com/starford/playpack/internal/minify"
	"github.com/starford/playpack/internal/toolchain"
)

// titlePlaceholder in build paths and patterns expands to the project title.
const titlePlaceholder = "{title}"

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Project    ProjectConfig     `yaml:"project"`
	Build      BuildConfig       `yaml:"build"`
	Compressor CompressorConfig  `yaml:"compressor"`
	Minify     MinifyConfig      `yaml:"minify"`
	Pipeline   PipelineConfig    `yaml:"pipeline"`
	Toolchain  ToolchainConfig   `yaml:"toolchain"`
	History    HistoryConfig     `yaml:"history"`
	Preview    PreviewConfig     `yaml:"preview"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{
		&c.Project, &c.Build, &c.Compressor, &c.Toolchain, &c.Preview,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
}

// ProjectConfig locates the engine project.
type ProjectConfig struct {
	// Dir is the project root, the working directory of the engine build.
	Dir string `yaml:"dir"`
	// File is the project settings file, relative to Dir.
	File string `yaml:"file"`
	// Title overrides the title read from File.
	Title string `yaml:"title"`
}

// Validate validates the project configuration.
func (c *ProjectConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
		validation.Field(&c.File, validation.Required),
		validation.Field(&c.Title, validation.By(validTitle)),
	)
}

// SettingsPath returns the path of the project settings file.
func (c *ProjectConfig) SettingsPath() string {
	return filepath.Join(c.Dir, c.File)
}

// BuildConfig holds bundle locations.
type BuildConfig struct {
	// BundleDir is the engine's web output root; the project title is
	// appended to get the bundle directory.
	BundleDir string `yaml:"bundle_dir"`
	// OutputDir receives the artifact. Empty means the bundle directory.
	OutputDir       string   `yaml:"output_dir"`
	IndexFile       string   `yaml:"index_file"`
	ArchivePatterns []string `yaml:"archive_patterns"`
}

// Validate validates the build configuration.
func (c *BuildConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BundleDir, validation.Required),
		validation.Field(&c.IndexFile, validation.Required),
		validation.Field(&c.ArchivePatterns, validation.Each(validation.Required)),
	)
}

// BundlePath returns the bundle directory of the project titled title.
func (c *BuildConfig) BundlePath(title string) string {
	return filepath.Join(c.BundleDir, title)
}

// Patterns returns the archive patterns with the title placeholder expanded.
func (c *BuildConfig) Patterns(title string) []string {
	out := make([]string, len(c.ArchivePatterns))
	for i, p := range c.ArchivePatterns {
		out[i] = strings.ReplaceAll(p, titlePlaceholder, title)
	}
	return out
}

// CompressorConfig selects and bounds the compression backend.
type CompressorConfig struct {
	Backend string        `yaml:"backend"`
	Command string        `yaml:"command"`
	Args    []string      `yaml:"args"`
	Workers int           `yaml:"workers"`
	Timeout time.Duration `yaml:"timeout"`
}

// Validate validates the compressor configuration.
func (c *CompressorConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.Required, validation.In(compressor.BackendExec, compressor.BackendBuiltin)),
		validation.Field(&c.Command, validation.When(c.Backend == compressor.BackendExec, validation.Required)),
		validation.Field(&c.Workers, validation.Min(0)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

// Options converts the section to compressor options.
func (c *CompressorConfig) Options() compressor.Options {
	return compressor.Options{
		Backend: c.Backend,
		Command: c.Command,
		Args:    c.Args,
		Workers: c.Workers,
		Timeout: c.Timeout,
	}
}

// MinifyConfig toggles artifact minification steps.
type MinifyConfig struct {
	CollapseWhitespace bool `yaml:"collapse_whitespace"`
	PreserveLineBreaks bool `yaml:"preserve_line_breaks"`
	CSS                bool `yaml:"css"`
	JS                 bool `yaml:"js"`
}

// Options converts the section to minifier options.
func (c *MinifyConfig) Options() minify.Options {
	return minify.Options{
		CollapseWhitespace: c.CollapseWhitespace,
		PreserveLineBreaks: c.PreserveLineBreaks,
		CSS:                c.CSS,
		JS:                 c.JS,
	}
}

// PipelineConfig holds inputs of the bundle pipeline.
type PipelineConfig struct {
	// DecoderScript is copied into the bundle as pako_inflate.min.js.
	// Empty skips the copy.
	DecoderScript string `yaml:"decoder_script"`
}

// ToolchainConfig controls the engine toolchain steps.
type ToolchainConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BuildGame  bool   `yaml:"build_game"`
	Java       string `yaml:"java"`
	InfoURL    string `yaml:"info_url"`
	ArchiveURL string `yaml:"archive_url"`
	JarDir     string `yaml:"jar_dir"`
}

// Validate validates the toolchain configuration.
func (c *ToolchainConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Java, validation.Required),
		validation.Field(&c.InfoURL, validation.Required),
		validation.Field(&c.ArchiveURL, validation.Required),
		validation.Field(&c.JarDir, validation.Required),
	)
}

// Options converts the section to toolchain client options.
func (c *ToolchainConfig) Options() toolchain.Options {
	return toolchain.Options{
		Java:       c.Java,
		InfoURL:    c.InfoURL,
		ArchiveURL: c.ArchiveURL,
		JarDir:     c.JarDir,
	}
}

// HistoryConfig locates the build history database. Empty Path disables it.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// PreviewConfig holds the preview server and watch settings.
type PreviewConfig struct {
	Port     int           `yaml:"port"`
	Debounce time.Duration `yaml:"debounce"`
}

// Address returns the preview server address.
func (c *PreviewConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the preview configuration.
func (c *PreviewConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
	)
}

func validTitle(v any) error {
	s, _ := v.(string)
	if s == "" {
		return nil
	}
	if strings.ContainsAny(s, `/\`) || s == "." || s == ".." {
		return fmt.Errorf("must not contain path separators")
	}
	return nil
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
		},
		Project: ProjectConfig{
			Dir:  "..",
			File: "game.project",
		},
		Build: BuildConfig{
			BundleDir:       "build/playable_ad/js-web",
			IndexFile:       "index.html",
			ArchivePatterns: []string{"archive/*", titlePlaceholder + "_asmjs.js"},
		},
		Compressor: CompressorConfig{
			Backend: compressor.BackendExec,
			Command: compressor.DefaultCommand,
		},
		Minify: MinifyConfig{
			CollapseWhitespace: true,
			PreserveLineBreaks: true,
			CSS:                true,
		},
		Pipeline: PipelineConfig{
			DecoderScript: "node_modules/pako/dist/pako_inflate.min.js",
		},
		Toolchain: ToolchainConfig{
			Enabled:    true,
			Java:       toolchain.DefaultJava,
			InfoURL:    toolchain.DefaultInfoURL,
			ArchiveURL: toolchain.DefaultArchiveURL,
			JarDir:     "build",
		},
		History: HistoryConfig{
			Path: "build/playpack.db",
		},
		Preview: PreviewConfig{
			Port:     8080,
			Debounce: 300 * time.Millisecond,
		},
	}
}
