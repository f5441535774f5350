package poll

import "regexp"

// blockRE is the poll block grammar:
//
//	\[poll[ ]*(?P<settings>.*?)\]   opening tag; settings run lazily up to the
//	                                 first "]" that ends the line
//	\r?\n
//	(?P<content>(?:-.+?\r?\n)+)      one or more "-option" lines
//	\[/poll\]                        closing tag
//
// "." does not cross newlines, so every part of the opening tag and each
// option stays on its own line.
var blockRE = regexp.MustCompile(`\[poll[ ]*(?P<settings>.*?)\]\r?\n(?P<content>(?:-.+?\r?\n)+)\[/poll\]`)

var (
	settingsIdx = blockRE.SubexpIndex("settings")
	contentIdx  = blockRE.SubexpIndex("content")
)

// Detect reports whether text contains at least one poll block.
func Detect(text string) bool {
	return blockRE.MatchString(text)
}

// ParseBlock returns the first poll block in text. ok is false when the text
// has no block, which is not an error.
func ParseBlock(text string) (b Block, ok bool) {
	m := blockRE.FindStringSubmatch(text)
	if m == nil {
		return Block{}, false
	}
	return Block{Settings: m[settingsIdx], Content: m[contentIdx]}, true
}

// RemoveMarkup strips every poll block from text and leaves the rest
// untouched.
func RemoveMarkup(text string) string {
	return blockRE.ReplaceAllLiteralString(text, "")
}
