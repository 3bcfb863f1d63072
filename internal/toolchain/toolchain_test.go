package toolchain

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/starford/playpack/internal/apperr"
	"github.com/starford/playpack/internal/testutil"
)

const sha = "0123456789abcdef0123456789ABCDEF01234567"

// fakeJava writes a shell script standing in for the java binary. It appends
// its arguments to args.log and exits with code.
func fakeJava(t *testing.T, code string) (bin, argLog string) {
	t.Helper()
	dir := t.TempDir()
	argLog = filepath.Join(dir, "args.log")
	bin = filepath.Join(dir, "java")
	script := "#!/bin/sh\necho \"$@\" >> " + argLog + "\nexit " + code + "\n"
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return bin, argLog
}

func releaseServer(t *testing.T, info string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var jarHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/beta/info.json", func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, info) //nolint:errcheck
	})
	mux.HandleFunc("/archive/"+sha+"/bob/bob.jar", func(w http.ResponseWriter, _ *http.Request) {
		jarHits.Add(1)
		io.WriteString(w, "PK-jar-bytes") //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &jarHits
}

func newClient(srv *httptest.Server, java, jarDir string) *Client {
	opts := Options{Java: java, JarDir: jarDir, Output: io.Discard}
	if srv != nil {
		opts.InfoURL = srv.URL + "/beta/info.json"
		opts.ArchiveURL = srv.URL + "/archive/"
		opts.HTTPClient = srv.Client()
	}
	return New(opts, testutil.Logger())
}

func TestCheckJava(t *testing.T) {
	ok, log := fakeJava(t, "0")
	if err := newClient(nil, ok, "").CheckJava(context.Background()); err != nil {
		t.Fatalf("CheckJava: %v", err)
	}
	if args, _ := os.ReadFile(log); strings.TrimSpace(string(args)) != "-version" {
		t.Errorf("args = %q, want -version", args)
	}

	bad, _ := fakeJava(t, "1")
	err := newClient(nil, bad, "").CheckJava(context.Background())
	if !errors.Is(err, apperr.ErrToolchain) {
		t.Errorf("err = %v, want ErrToolchain", err)
	}

	err = newClient(nil, filepath.Join(t.TempDir(), "nope"), "").CheckJava(context.Background())
	if !errors.Is(err, apperr.ErrToolchain) {
		t.Errorf("missing binary err = %v, want ErrToolchain", err)
	}
}

func TestFetchVersionInfo(t *testing.T) {
	srv, _ := releaseServer(t, `{"version":"1.9.0","sha1":"`+sha+`"}`)
	info, err := newClient(srv, "", "").FetchVersionInfo(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if info.SHA1 != sha || info.Version != "1.9.0" {
		t.Errorf("info = %+v", info)
	}
	if info.JarName() != "bob_0123456.jar" {
		t.Errorf("jar name = %q", info.JarName())
	}
}

func TestFetchVersionInfo_InvalidSHA(t *testing.T) {
	for _, body := range []string{`{"sha1":"xyz"}`, `{"sha1":"` + sha + `0"}`, `{}`, `not json`} {
		srv, _ := releaseServer(t, body)
		_, err := newClient(srv, "", "").FetchVersionInfo(context.Background())
		if !errors.Is(err, apperr.ErrToolchain) {
			t.Errorf("body %q: err = %v, want ErrToolchain", body, err)
		}
	}
}

func TestFetchVersionInfo_HTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)
	_, err := newClient(srv, "", "").FetchVersionInfo(context.Background())
	if !errors.Is(err, apperr.ErrToolchain) || !strings.Contains(err.Error(), "404") {
		t.Errorf("err = %v", err)
	}
}

func TestEnsureJar_DownloadsOnce(t *testing.T) {
	srv, hits := releaseServer(t, "")
	jarDir := t.TempDir()
	c := newClient(srv, "", jarDir)
	info := VersionInfo{SHA1: sha}

	jar, err := c.EnsureJar(context.Background(), info)
	if err != nil {
		t.Fatal(err)
	}
	if jar != filepath.Join(jarDir, "bob_0123456.jar") {
		t.Errorf("jar = %q", jar)
	}
	data, err := os.ReadFile(jar)
	if err != nil || string(data) != "PK-jar-bytes" {
		t.Errorf("jar content = %q, %v", data, err)
	}

	if _, err := c.EnsureJar(context.Background(), info); err != nil {
		t.Fatal(err)
	}
	if hits.Load() != 1 {
		t.Errorf("downloads = %d, want 1", hits.Load())
	}
}

func TestPrepare_AndBuild(t *testing.T) {
	srv, _ := releaseServer(t, `{"sha1":"`+sha+`"}`)
	java, log := fakeJava(t, "0")
	c := newClient(srv, java, t.TempDir())

	jar, err := c.Prepare(context.Background())
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	projectDir := t.TempDir()
	if err := c.Build(context.Background(), jar, projectDir, "playable_ad/build/js-web"); err != nil {
		t.Fatalf("Build: %v", err)
	}

	data, _ := os.ReadFile(log)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("invocations = %d, want 3: %q", len(lines), lines)
	}
	if lines[1] != "-jar "+jar+" --version" {
		t.Errorf("jar check = %q", lines[1])
	}
	if want := strings.Join(BuildArgs(jar, "playable_ad/build/js-web"), " "); lines[2] != want {
		t.Errorf("build = %q, want %q", lines[2], want)
	}
}

func TestBuild_Failure(t *testing.T) {
	java, _ := fakeJava(t, "2")
	err := newClient(nil, java, "").Build(context.Background(), "bob.jar", t.TempDir(), "out")
	var te *apperr.ToolchainError
	if !errors.As(err, &te) || te.Step != "build game" {
		t.Fatalf("err = %v, want build game ToolchainError", err)
	}
	if !strings.Contains(err.Error(), "exit code 2") {
		t.Errorf("err = %q, want exit code", err)
	}
}

func TestBuildArgs(t *testing.T) {
	got := strings.Join(BuildArgs("b.jar", "out"), " ")
	want := "-jar b.jar --email foo@bar.com --auth 12345 --texture-compression true --bundle-output out --platform js-web --archive distclean resolve build bundle"
	if got != want {
		t.Errorf("got = %q\nwant = %q", got, want)
	}
}
