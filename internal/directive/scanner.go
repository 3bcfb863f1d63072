// Package directive finds embedding directives inside HTML and JavaScript text.
//
// The grammar is a small fixed set of literal patterns, not an HTML parser:
// a scan yields a flat list of directives, each carrying the exact byte span
// it was matched at.
package directive

import (
	"iter"
	"regexp"
	"slices"

	"github.com/starford/playpack/internal/models"
)

var (
	// <script src="x.js" embed></script>, optionally data-src and ="compress".
	// A comment directive runs to the end of its line, excluding a CR.
	//
	// Both forms share one alternation, so matches never overlap. A comment
	// directive swallows any script tag after it on the same line; a script
	// tag before it on the same line is a directive of its own.
	scriptOrCommentRe = regexp.MustCompile(
		`<script [^>]*?(data-)?src="(.+?)" embed(="(compress)")?></script>` +
			`|// EMBED: ([^\r\n]+)`)

	imageRe = regexp.MustCompile(`(var splash_image = ")(.+?\.(png|jpg))(")`)
)

// Scan yields every directive in text: the image pass first, then the
// script and comment pass. Each pass is in left-to-right order. The
// sequence can be iterated any number of times.
func Scan(text string) iter.Seq[models.Directive] {
	return func(yield func(models.Directive) bool) {
		for d := range ScanImages(text) {
			if !yield(d) {
				return
			}
		}
		for d := range ScanScripts(text) {
			if !yield(d) {
				return
			}
		}
	}
}

// ScanImages yields ImageEmbed directives.
func ScanImages(text string) iter.Seq[models.Directive] {
	return func(yield func(models.Directive) bool) {
		for _, m := range imageRe.FindAllStringSubmatchIndex(text, -1) {
			d := models.Directive{
				MatchedText: text[m[0]:m[1]],
				Kind:        models.ImageEmbed,
				Start:       m[0],
				End:         m[1],
				Prefix:      text[m[2]:m[3]],
				Path:        text[m[4]:m[5]],
				Ext:         text[m[6]:m[7]],
				Suffix:      text[m[8]:m[9]],
			}
			if !yield(d) {
				return
			}
		}
	}
}

// ScanScripts yields ScriptEmbed and CommentEmbed directives.
func ScanScripts(text string) iter.Seq[models.Directive] {
	return func(yield func(models.Directive) bool) {
		for _, m := range scriptOrCommentRe.FindAllStringSubmatchIndex(text, -1) {
			d := models.Directive{
				MatchedText: text[m[0]:m[1]],
				Start:       m[0],
				End:         m[1],
			}
			if m[4] >= 0 {
				d.Kind = models.ScriptEmbed
				d.Path = text[m[4]:m[5]]
				d.Compress = m[8] >= 0 && text[m[8]:m[9]] == "compress"
			} else {
				d.Kind = models.CommentEmbed
				d.Path = text[m[10]:m[11]]
			}
			if !yield(d) {
				return
			}
		}
	}
}

// Collect gathers the directives of the given kinds into a slice. With no
// kinds every directive is returned.
func Collect(seq iter.Seq[models.Directive], kinds ...models.DirectiveKind) []models.Directive {
	var out []models.Directive
	for d := range seq {
		if len(kinds) == 0 || slices.Contains(kinds, d.Kind) {
			out = append(out, d)
		}
	}
	return out
}
