// Package minify shrinks the assembled HTML artifact.
//
// Markup is streamed through the x/net/html tokenizer so that tags, comments
// and script bodies are copied byte-exact unless a rule below rewrites them:
// text between tags has its whitespace collapsed, and style (and optionally
// script) bodies are passed through esbuild.
package minify

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"golang.org/x/net/html"
)

// Options selects which rewrites run.
type Options struct {
	CollapseWhitespace bool
	PreserveLineBreaks bool
	CSS                bool
	JS                 bool
}

// HTML returns the minified form of src.
func HTML(src []byte, opts Options) ([]byte, error) {
	var (
		out      bytes.Buffer
		z        = html.NewTokenizer(bytes.NewReader(src))
		rawTag   string // "script" or "style" while inside one
		scriptJS bool
		verbatim int // nesting of pre/textarea
	)
	out.Grow(len(src))

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return out.Bytes(), nil
			}
			return nil, fmt.Errorf("minify: tokenize: %w", z.Err())

		case html.StartTagToken:
			out.Write(z.Raw())
			name, hasAttr := z.TagName()
			switch tag := string(name); tag {
			case "script":
				rawTag, scriptJS = tag, isJavaScript(z, hasAttr)
			case "style":
				rawTag = tag
			case "pre", "textarea":
				verbatim++
			}

		case html.EndTagToken:
			out.Write(z.Raw())
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				rawTag = ""
			case "pre", "textarea":
				if verbatim > 0 {
					verbatim--
				}
			}

		case html.TextToken:
			raw := z.Raw()
			switch {
			case rawTag == "style" && opts.CSS:
				code, err := transform(raw, api.LoaderCSS)
				if err != nil {
					return nil, err
				}
				out.WriteString(code)
			case rawTag == "script" && opts.JS && scriptJS:
				code, err := transform(raw, api.LoaderJS)
				if err != nil {
					return nil, err
				}
				out.WriteString(code)
			case rawTag != "" || verbatim > 0 || !opts.CollapseWhitespace:
				out.Write(raw)
			default:
				collapse(&out, raw, opts.PreserveLineBreaks)
			}

		default:
			out.Write(z.Raw())
		}
	}
}

// collapse writes raw with every whitespace run reduced to a single space,
// or a single newline when the run spans lines and keepLines is set.
func collapse(out *bytes.Buffer, raw []byte, keepLines bool) {
	inRun, newline := false, false
	flush := func() {
		if !inRun {
			return
		}
		if newline && keepLines {
			out.WriteByte('\n')
		} else {
			out.WriteByte(' ')
		}
		inRun, newline = false, false
	}
	for _, c := range raw {
		switch c {
		case ' ', '\t', '\f':
			inRun = true
		case '\n', '\r':
			inRun, newline = true, true
		default:
			flush()
			out.WriteByte(c)
		}
	}
	flush()
}

func isJavaScript(z *html.Tokenizer, hasAttr bool) bool {
	for hasAttr {
		var key, val []byte
		key, val, hasAttr = z.TagAttr()
		if string(key) != "type" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(string(val))) {
		case "", "text/javascript", "application/javascript", "module":
			return true
		default:
			return false
		}
	}
	return true
}

func transform(code []byte, loader api.Loader) (string, error) {
	if len(bytes.TrimSpace(code)) == 0 {
		return "", nil
	}
	res := api.Transform(string(code), api.TransformOptions{
		Loader:           loader,
		MinifyWhitespace: true,
		MinifySyntax:     true,
		LogLevel:         api.LogLevelSilent,
	})
	if len(res.Errors) > 0 {
		msgs := make([]string, 0, len(res.Errors))
		for _, e := range res.Errors {
			msgs = append(msgs, e.Text)
		}
		return "", fmt.Errorf("minify: transform: %s", strings.Join(msgs, "; "))
	}
	return strings.TrimSuffix(string(res.Code), "\n"), nil
}
