// Package project reads engine project metadata from game.project.
package project

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/starford/playpack/internal/apperr"
)

// DefaultTitle is used when the project file declares no title.
const DefaultTitle = "Unnamed project"

// Info is the subset of project settings the build needs.
type Info struct {
	Title string
}

// Load reads the [project] section of the INI file at path.
func Load(path string) (Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Info{}, &apperr.ConfigurationError{Source: path, Err: err}
	}
	return Parse(path, data)
}

// Parse reads project info from INI content. source names it in errors.
func Parse(source string, data []byte) (Info, error) {
	f, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment: true,
		AllowBooleanKeys:    true,
	}, data)
	if err != nil {
		return Info{}, &apperr.ConfigurationError{Source: source, Err: fmt.Errorf("parse ini: %w", err)}
	}

	info := Info{Title: DefaultTitle}
	sec, err := f.GetSection("project")
	if err != nil {
		return info, nil
	}
	if title := strings.TrimSpace(sec.Key("title").String()); title != "" {
		info.Title = title
	}
	return info, nil
}
