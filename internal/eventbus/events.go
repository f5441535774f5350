package eventbus

// Poll lifecycle event types.
const (
	TypePollCreated   = "poll.created"
	TypePollScheduled = "poll.scheduled"
	TypePollEnded     = "poll.ended"
	TypePollDeleted   = "poll.deleted"
	TypePollRestored  = "poll.restored"
)

// PollTypes lists every poll.* event type.
var PollTypes = []string{TypePollCreated, TypePollScheduled, TypePollEnded, TypePollDeleted, TypePollRestored}

// PollEvent is the payload of every poll.* event.
type PollEvent struct {
	PollID int64 `json:"pollid"`
	PID    int64 `json:"pid,omitempty"`
	TID    int64 `json:"tid,omitempty"`
	UID    int64 `json:"uid,omitempty"`
	// EndAt is the scheduled end in epoch ms (poll.scheduled only).
	EndAt int64 `json:"end_at,omitempty"`
	// Manual is set on poll.ended when the close did not come from a timer.
	Manual bool `json:"manual,omitempty"`
}

// PublishPoll is a nil-safe shorthand for publishing a PollEvent.
func PublishPoll(b Bus, typ string, ev PollEvent) {
	if b == nil {
		return
	}
	b.Publish(Event{Type: typ, Data: ev})
}
