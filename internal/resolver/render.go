package resolver

import (
	"regexp"
	"strings"
)

var (
	placeholderPattern = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)
	tagPattern         = regexp.MustCompile(`<[^>]*>`)
	brPattern          = regexp.MustCompile(`(?i)<br\s*/?>`)
	paragraphPattern   = regexp.MustCompile(`(?i)</p>`)
	spaceRunPattern    = regexp.MustCompile(`[ \t]+`)
	blankLinePattern   = regexp.MustCompile(`\n{3,}`)
)

// Render substitutes {placeholder} tokens in a template with the resolver's
// values for one recipient. Unknown placeholders are left as-is so a
// misconfigured template is visible in the delivered message instead of
// silently dropping text.
func Render(template string, values map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(token string) string {
		key := token[1 : len(token)-1]
		if value, ok := values[key]; ok {
			return value
		}
		return token
	})
}

// PlainText normalizes a rich-text body for plain-text channels: line breaks
// and paragraphs become newlines, remaining tags are stripped and whitespace
// is collapsed. Escaped entities such as &lt; and &amp; stay escaped; a
// template author cannot smuggle markup into a plain-text channel by
// encoding it.
func PlainText(s string) string {
	s = brPattern.ReplaceAllString(s, "\n")
	s = paragraphPattern.ReplaceAllString(s, "\n\n")
	s = tagPattern.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = spaceRunPattern.ReplaceAllString(s, " ")
	s = blankLinePattern.ReplaceAllString(s, "\n\n")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
