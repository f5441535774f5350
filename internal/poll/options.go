package poll

import "strings"

// ExtractOptions turns the content of a block into option titles in source
// order. Each line contributes the trimmed text after its first "-"; lines
// without a "-" or with nothing after it are dropped.
//
// At most maxOptions titles are returned; maxOptions <= 0 means no cap.
func ExtractOptions(content string, maxOptions int) []string {
	lines := strings.Split(StripTags(content), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		_, rest, ok := strings.Cut(line, "-")
		if !ok {
			continue
		}
		if opt := strings.TrimSpace(rest); opt != "" {
			out = append(out, opt)
		}
	}
	if maxOptions > 0 && len(out) > maxOptions {
		out = out[:maxOptions]
	}
	return out
}
