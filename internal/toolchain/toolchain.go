// Package toolchain prepares and drives the engine's command-line builder.
package toolchain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/starford/playpack/internal/apperr"
	"github.com/starford/playpack/internal/storage"
)

const (
	DefaultJava       = "java"
	DefaultInfoURL    = "https://d.defold.com/beta/info.json"
	DefaultArchiveURL = "https://d.defold.com/archive"

	maxInfoBytes = 1 << 20
	maxJarBytes  = 512 << 20
)

var sha1Re = regexp.MustCompile(`(?i)^[a-f0-9]{40}$`)

// VersionInfo is the release descriptor published next to the builder jar.
type VersionInfo struct {
	Version string `json:"version"`
	SHA1    string `json:"sha1"`
}

// JarName returns the cache file name of the builder for this release.
func (v VersionInfo) JarName() string {
	return "bob_" + v.SHA1[:7] + ".jar"
}

// Options configures a Client.
type Options struct {
	Java       string
	InfoURL    string
	ArchiveURL string
	// JarDir caches downloaded builder jars.
	JarDir string
	// Output receives the child processes' stdout and stderr.
	Output     io.Writer
	HTTPClient *http.Client
}

// Client runs the toolchain steps. Every failure is an *apperr.ToolchainError.
type Client struct {
	opts   Options
	logger *slog.Logger
}

// New creates a client, filling unset options with defaults.
func New(opts Options, logger *slog.Logger) *Client {
	if opts.Java == "" {
		opts.Java = DefaultJava
	}
	if opts.InfoURL == "" {
		opts.InfoURL = DefaultInfoURL
	}
	if opts.ArchiveURL == "" {
		opts.ArchiveURL = DefaultArchiveURL
	}
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{opts: opts, logger: logger}
}

// CheckJava verifies a Java runtime can be started.
func (c *Client) CheckJava(ctx context.Context) error {
	if err := c.run(ctx, "", io.Discard, "-version"); err != nil {
		return &apperr.ToolchainError{Step: "check java", Err: fmt.Errorf("java is not installed: %w", err)}
	}
	return nil
}

// FetchVersionInfo downloads and validates the current release descriptor.
func (c *Client) FetchVersionInfo(ctx context.Context) (VersionInfo, error) {
	body, err := c.get(ctx, c.opts.InfoURL, maxInfoBytes)
	if err != nil {
		return VersionInfo{}, &apperr.ToolchainError{Step: "fetch version info", Err: err}
	}
	var info VersionInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return VersionInfo{}, &apperr.ToolchainError{Step: "fetch version info", Err: fmt.Errorf("decode: %w", err)}
	}
	if !sha1Re.MatchString(info.SHA1) {
		return VersionInfo{}, &apperr.ToolchainError{Step: "fetch version info", Err: fmt.Errorf("invalid builder sha1 %q", info.SHA1)}
	}
	c.logger.Info("toolchain: version info",
		slog.String("version", info.Version),
		slog.String("sha1", info.SHA1))
	return info, nil
}

// EnsureJar returns the path of the builder jar for info, downloading it
// into the jar directory unless it is already cached there.
func (c *Client) EnsureJar(ctx context.Context, info VersionInfo) (string, error) {
	if !sha1Re.MatchString(info.SHA1) {
		return "", &apperr.ToolchainError{Step: "download jar", Err: fmt.Errorf("invalid builder sha1 %q", info.SHA1)}
	}
	jar, err := filepath.Abs(filepath.Join(c.opts.JarDir, info.JarName()))
	if err != nil {
		return "", &apperr.ToolchainError{Step: "download jar", Err: err}
	}
	if st, err := os.Stat(jar); err == nil && st.Mode().IsRegular() {
		c.logger.Debug("toolchain: jar cached", slog.String("path", jar))
		return jar, nil
	}

	url := strings.TrimSuffix(c.opts.ArchiveURL, "/") + "/" + info.SHA1 + "/bob/bob.jar"
	data, err := c.get(ctx, url, maxJarBytes)
	if err != nil {
		return "", &apperr.ToolchainError{Step: "download jar", Err: err}
	}
	if err := storage.WriteFileAtomic(jar, data); err != nil {
		return "", &apperr.ToolchainError{Step: "download jar", Err: err}
	}
	c.logger.Info("toolchain: jar downloaded",
		slog.String("path", jar),
		slog.Int("bytes", len(data)),
		slog.String("size", humanize.Bytes(uint64(len(data)))))
	return jar, nil
}

// CheckJar verifies the jar starts and reports its version.
func (c *Client) CheckJar(ctx context.Context, jar string) error {
	if err := c.run(ctx, "", c.opts.Output, "-jar", jar, "--version"); err != nil {
		return &apperr.ToolchainError{Step: "check jar", Err: fmt.Errorf("builder jar is invalid: %w", err)}
	}
	return nil
}

// Build produces the web bundle of the project in projectDir into
// bundleOutput.
func (c *Client) Build(ctx context.Context, jar, projectDir, bundleOutput string) error {
	args := BuildArgs(jar, bundleOutput)
	c.logger.Info("toolchain: building game",
		slog.String("project", projectDir),
		slog.String("output", bundleOutput))
	if err := c.run(ctx, projectDir, c.opts.Output, args...); err != nil {
		return &apperr.ToolchainError{Step: "build game", Err: fmt.Errorf("can't build the game: %w", err)}
	}
	return nil
}

// BuildArgs returns the java arguments of the bundle invocation.
func BuildArgs(jar, bundleOutput string) []string {
	return []string{
		"-jar", jar,
		"--email", "foo@bar.com",
		"--auth", "12345",
		"--texture-compression", "true",
		"--bundle-output", bundleOutput,
		"--platform", "js-web",
		"--archive",
		"distclean", "resolve", "build", "bundle",
	}
}

// Prepare runs the check, fetch, download and jar check steps in order and
// returns the jar path.
func (c *Client) Prepare(ctx context.Context) (string, error) {
	if err := c.CheckJava(ctx); err != nil {
		return "", err
	}
	info, err := c.FetchVersionInfo(ctx)
	if err != nil {
		return "", err
	}
	jar, err := c.EnsureJar(ctx, info)
	if err != nil {
		return "", err
	}
	if err := c.CheckJar(ctx, jar); err != nil {
		return "", err
	}
	return jar, nil
}

func (c *Client) run(ctx context.Context, dir string, out io.Writer, args ...string) error {
	cmd := exec.CommandContext(ctx, c.opts.Java, args...)
	cmd.Dir = dir
	cmd.Stdout = out
	cmd.Stderr = out
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("exit code %d", exitErr.ExitCode())
		}
		return err
	}
	return nil
}

func (c *Client) get(ctx context.Context, url string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("fetch %s: response exceeds %s", url, humanize.Bytes(uint64(limit)))
	}
	return data, nil
}
