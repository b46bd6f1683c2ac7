// Package language normalizes job language codes and renders human-readable
// names for CLI output and notifications.
package language

import (
	"strings"

	xlang "golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

var namer = display.English.Tags()

// Normalize parses a language code (ISO 639-1/639-2 or a full BCP 47 tag) and
// returns its canonical form. The input is returned unchanged when it cannot
// be parsed.
func Normalize(code string) (string, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", false
	}
	tag, err := xlang.Parse(code)
	if err != nil {
		return code, false
	}
	return tag.String(), true
}

// DisplayName returns the English display name for a language code, falling
// back to the raw code when it is unknown.
func DisplayName(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	tag, err := xlang.Parse(code)
	if err != nil {
		return code
	}
	if name := namer.Name(tag); name != "" {
		return name
	}
	return code
}

// PairLabel renders a source/target language pair for display, e.g.
// "English -> French". Either side may be blank.
func PairLabel(source, target string) string {
	src := DisplayName(source)
	dst := DisplayName(target)
	switch {
	case src == "" && dst == "":
		return ""
	case src == "":
		return "-> " + dst
	case dst == "":
		return src + " ->"
	default:
		return src + " -> " + dst
	}
}
