package extract

import (
	"regexp"
	"strings"
)

// nameLabelRe strips the literal "product name" label some channels prefix
// to the first line.
var nameLabelRe = regexp.MustCompile(`اسم المنتج`)

// TextFields is the rule-based reading of a caption: first line is the name,
// second line a short description, the rest the full description.
type TextFields struct {
	Name             string
	ShortDescription string
	Description      string
}

// Text splits raw caption text into product fields using structural
// heuristics. Deterministic given identical input; no external calls.
func Text(text string) TextFields {
	var lines []string

	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}

	switch len(lines) {
	case 0:
		return TextFields{}
	case 1:
		return TextFields{Name: cleanName(lines[0])}
	case 2:
		return TextFields{
			Name:             cleanName(lines[0]),
			ShortDescription: lines[1],
		}
	default:
		return TextFields{
			Name:             cleanName(lines[0]),
			ShortDescription: lines[1],
			Description:      strings.Join(lines[2:], "\n"),
		}
	}
}

func cleanName(name string) string {
	return strings.TrimSpace(nameLabelRe.ReplaceAllString(name, ""))
}
