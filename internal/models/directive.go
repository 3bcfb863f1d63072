package models

import (
	"encoding/json"
	"fmt"
)

// DirectiveKind identifies which embedding grammar produced a directive.
type DirectiveKind int

const (
	ScriptEmbed DirectiveKind = iota + 1
	CommentEmbed
	ImageEmbed
	// ArchiveEntry marks files packed by the combiner rather than a directive.
	ArchiveEntry
)

func (k DirectiveKind) String() string {
	switch k {
	case ScriptEmbed:
		return "script"
	case CommentEmbed:
		return "comment"
	case ImageEmbed:
		return "image"
	case ArchiveEntry:
		return "archive"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ParseDirectiveKind is the inverse of DirectiveKind.String.
func ParseDirectiveKind(s string) (DirectiveKind, error) {
	for k := ScriptEmbed; k <= ArchiveEntry; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown directive kind %q", s)
}

// MarshalJSON encodes the kind by name.
func (k DirectiveKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a kind encoded by MarshalJSON.
func (k *DirectiveKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDirectiveKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Directive is one textual occurrence of "inline file X here".
//
// MatchedText is the exact span [Start, End) of the scanned buffer. For
// image directives Prefix and Suffix are the parts of the span kept around
// the data URI and Ext is the image type.
type Directive struct {
	MatchedText string        `json:"matched_text"`
	Path        string        `json:"path"`
	Kind        DirectiveKind `json:"kind"`
	Compress    bool          `json:"compress"`
	Start       int           `json:"start"`
	End         int           `json:"end"`
	Prefix      string        `json:"-"`
	Suffix      string        `json:"-"`
	Ext         string        `json:"ext,omitempty"`
}

// Overlaps reports whether d and o share any byte of the scanned buffer.
func (d Directive) Overlaps(o Directive) bool {
	return d.Start < o.End && o.Start < d.End
}
