package mcpserver

// DirectiveGrammar describes the markup the bundler recognises in the
// entry page, for LLM consumers editing a bundle.
const DirectiveGrammar = `# playpack Directive Grammar

The entry page (index.html) of a web bundle may contain three kinds of
directives. Each one is replaced by the content of the file it names; paths
are relative to the bundle directory.

## Script tag

` + "```" + `html
<script src="dmloader.js" embed></script>
<script data-src="game_asmjs.js" embed="compress"></script>
` + "```" + `

- ` + "`embed`" + ` inlines the file as ` + "`<script>…</script>`" + `.
- ` + "`embed=\"compress\"`" + ` gzips the file and inlines a loader that inflates
  and evaluates it at page load. The inflate library is bundled as
  ` + "`pako_inflate.min.js`" + `.

## Comment

` + "```" + `js
// EMBED: game_archive.js
` + "```" + `

The whole line is replaced by the raw file content.

## Splash image

` + "```" + `js
var splash_image = "splash.png";
` + "```" + `

Only ` + "`.png`" + ` and ` + "`.jpg`" + ` files; the path becomes a base64 data URI.

## Rules

1. A missing file fails the whole build; nothing is written.
2. Images are resolved before scripts and comments.
3. After substitution every ` + "`XMLHttpRequest`" + ` becomes ` + "`EmbeddedHttpRequest`" + `,
   which the page must provide.
`
