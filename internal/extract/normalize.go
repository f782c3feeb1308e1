package extract

import "strings"

// normalizeText collapses runs of whitespace inside lines and drops empty
// lines, yielding stable output regardless of source indentation.
func normalizeText(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		out = append(out, strings.Join(fields, " "))
	}
	return strings.Join(out, "\n")
}
