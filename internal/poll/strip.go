package poll

import "regexp"

// tagRE matches one complete tag or comment: "<", an optional "/", then
// anything up to the next ">" that does not reopen with "<". A "<" that never
// reaches a ">" is text, so "-x<y" keeps its "<y".
var tagRE = regexp.MustCompile(`</?[^<>]*>`)

// StripTags removes complete HTML tags and comments and keeps text verbatim
// (entities are not decoded).
func StripTags(s string) string {
	return tagRE.ReplaceAllString(s, "")
}
