// Package poll extracts polls embedded in forum post text.
//
// A poll is written inline as
//
//	[poll max="2" title="Lunch?" end="1767225600000"]
//	-Pizza
//	-Sushi
//	[/poll]
//
// Parsing never fails: text without a block yields "no poll", malformed
// settings and empty option lines are dropped, and whatever survives is
// returned as a best-effort result.
package poll
