// Package hooks is the host-facing surface of forumpoll: the handlers a
// forum calls when a post is saved, rendered, closed by a moderator, or
// soft-deleted and restored.
package hooks

import (
	"context"
	"errors"
	"fmt"

	"forumpoll/internal/eventbus"
	"forumpoll/internal/poll"
	"forumpoll/internal/storage"
	logx "forumpoll/pkg/logx"
)

// Store is the slice of storage.Store the hooks need.
type Store interface {
	CreatePoll(ctx context.Context, p *poll.Poll) (int64, error)
	GetPoll(ctx context.Context, id int64) (*poll.Poll, error)
	PollIDByPost(ctx context.Context, pid int64) (int64, error)
	SetPollDeleted(ctx context.Context, id int64, deleted bool) error
}

// Scheduler is implemented by *expiry.Scheduler.
type Scheduler interface {
	Add(ctx context.Context, id int64) error
	End(ctx context.Context, id int64) error
}

type Deps struct {
	Polls     *poll.Service
	Store     Store
	Scheduler Scheduler
	Bus       eventbus.Bus // optional
	Log       logx.Logger
}

type Hooks struct {
	polls *poll.Service
	store Store
	sched Scheduler
	bus   eventbus.Bus
	log   logx.Logger
}

func New(d Deps) *Hooks {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Hooks{
		polls: d.Polls,
		store: d.Store,
		sched: d.Scheduler,
		bus:   d.Bus,
		log:   log.With(logx.String("comp", "hooks")),
	}
}

// PostSave creates the poll carried by a newly saved post and schedules
// its end. It returns (nil, nil) for posts without a poll block.
//
// poll.ErrNotFirstPost, poll.ErrNoOptions and storage.ErrPollExists are
// returned as is so the host can tell the author why nothing was created.
// A poll that was stored but could not be scheduled is still returned; the
// next scheduler Init picks it up.
func (h *Hooks) PostSave(ctx context.Context, post poll.Post) (*poll.Poll, error) {
	p, err := h.polls.Prepare(ctx, post)
	if err != nil {
		if errors.Is(err, poll.ErrNotFirstPost) || errors.Is(err, poll.ErrNoOptions) {
			h.log.Debug("poll rejected", logx.Int64("pid", post.PID), logx.Int64("tid", post.TID), logx.Err(err))
		}
		return nil, err
	}
	if p == nil {
		return nil, nil
	}

	id, err := h.store.CreatePoll(ctx, p)
	if err != nil {
		if errors.Is(err, storage.ErrPollExists) {
			return nil, err
		}
		return nil, fmt.Errorf("create poll for pid %d: %w", post.PID, err)
	}
	h.log.Info("poll created",
		logx.Int64("pollid", id),
		logx.Int64("pid", p.PID),
		logx.Int64("tid", p.TID),
		logx.Int("options", len(p.Options)),
	)
	eventbus.PublishPoll(h.bus, eventbus.TypePollCreated, eventbus.PollEvent{PollID: id, PID: p.PID, TID: p.TID, UID: p.UID})

	if _, ok := p.Settings.End(); ok {
		if err := h.sched.Add(ctx, id); err != nil {
			h.log.Error("schedule new poll failed", logx.Int64("pollid", id), logx.Err(err))
		}
	}
	return p, nil
}

// RenderPost strips poll markup from post content before display.
func (h *Hooks) RenderPost(content string) string {
	return poll.RemoveMarkup(content)
}

// ClosePoll ends a poll ahead of its schedule. Closing an ended poll is a
// no-op; an unknown id returns storage.ErrNotFound.
func (h *Hooks) ClosePoll(ctx context.Context, id int64) error {
	p, err := h.store.GetPoll(ctx, id)
	if err != nil {
		return err
	}
	if p.Ended {
		h.log.Debug("poll already ended", logx.Int64("pollid", id))
		return nil
	}
	return h.sched.End(ctx, id)
}

// ClosePollByPost is ClosePoll keyed by the post that carries the poll.
func (h *Hooks) ClosePollByPost(ctx context.Context, pid int64) error {
	id, err := h.store.PollIDByPost(ctx, pid)
	if err != nil {
		return err
	}
	return h.ClosePoll(ctx, id)
}

// PostDelete soft-deletes the poll carried by pid. Posts without a poll are
// ignored.
func (h *Hooks) PostDelete(ctx context.Context, pid int64) error {
	return h.setDeleted(ctx, pid, true)
}

// PostRestore undoes PostDelete.
func (h *Hooks) PostRestore(ctx context.Context, pid int64) error {
	return h.setDeleted(ctx, pid, false)
}

func (h *Hooks) setDeleted(ctx context.Context, pid int64, deleted bool) error {
	id, err := h.store.PollIDByPost(ctx, pid)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := h.store.SetPollDeleted(ctx, id, deleted); err != nil {
		return fmt.Errorf("set poll %d deleted=%v: %w", id, deleted, err)
	}
	typ, msg := eventbus.TypePollRestored, "poll restored"
	if deleted {
		typ, msg = eventbus.TypePollDeleted, "poll deleted"
	}
	h.log.Info(msg, logx.Int64("pollid", id), logx.Int64("pid", pid))
	eventbus.PublishPoll(h.bus, typ, eventbus.PollEvent{PollID: id, PID: pid})
	return nil
}
