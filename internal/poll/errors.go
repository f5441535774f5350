package poll

import "errors"

var (
	// ErrNotFirstPost is returned when a poll is placed in a reply rather
	// than the thread's first post.
	ErrNotFirstPost = errors.New("poll: post is not the first post of its thread")
	// ErrNoOptions is returned when a block has no usable option lines.
	ErrNoOptions = errors.New("poll: block has no options")
)
