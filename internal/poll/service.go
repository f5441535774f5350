package poll

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// PostIndex answers range queries on sorted sets of post ids.
type PostIndex interface {
	SortedSetRange(ctx context.Context, key string, start, stop int) ([]string, error)
}

// Service prepares polls for posts being saved.
type Service struct {
	parser *Parser
	posts  PostIndex
}

func NewService(parser *Parser, posts PostIndex) *Service {
	return &Service{parser: parser, posts: posts}
}

func (s *Service) Parser() *Parser { return s.parser }

// Prepare builds the poll carried by post.
//
// It returns (nil, nil) when the post has no poll block, ErrNoOptions when
// the block has no usable options, and ErrNotFirstPost when the post is a
// reply. Storage errors from the first-post check are returned as is.
func (s *Service) Prepare(ctx context.Context, post Post) (*Poll, error) {
	parsed, ok := s.parser.Parse(post.Content)
	if !ok {
		return nil, nil
	}
	if len(parsed.Options) == 0 {
		return nil, ErrNoOptions
	}
	first, err := s.IsFirstPost(ctx, post.PID, post.TID)
	if err != nil {
		return nil, err
	}
	if !first {
		return nil, ErrNotFirstPost
	}
	p := Assemble(post, parsed)
	return &p, nil
}

// IsFirstPost reports whether pid heads the thread's post order. A thread
// with no indexed posts counts as a match, since the check may run before
// the new post is indexed.
func (s *Service) IsFirstPost(ctx context.Context, pid, tid int64) (bool, error) {
	pids, err := s.posts.SortedSetRange(ctx, ThreadPostsKey(tid), 0, 0)
	if err != nil {
		return false, fmt.Errorf("first post lookup for tid %d: %w", tid, err)
	}
	if len(pids) == 0 {
		return true, nil
	}
	first, err := strconv.ParseInt(strings.TrimSpace(pids[0]), 10, 64)
	if err != nil {
		return false, nil
	}
	return first == pid, nil
}
