package internal

import "log/slog"

// Mode selects what Run does after setup.
type Mode string

const (
	ModeBuild Mode = "build"
	ModeWatch Mode = "watch"
	ModeServe Mode = "serve"
	ModeMCP   Mode = "mcp"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	mode    Mode
	preview bool
	logger  *slog.Logger
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithMode sets the run mode. The default is ModeBuild.
func WithMode(m Mode) Option {
	return func(a *application) {
		a.mode = m
	}
}

// WithPreview also starts the preview server in watch mode.
func WithPreview(enabled bool) Option {
	return func(a *application) {
		a.preview = enabled
	}
}

// WithLogger replaces the JSON logger Run would otherwise create.
func WithLogger(l *slog.Logger) Option {
	return func(a *application) {
		a.logger = l
	}
}
