package hooks

import (
	"context"
	"encoding/json"
	"time"

	"forumpoll/internal/eventbus"
	"forumpoll/internal/storage"
	logx "forumpoll/pkg/logx"
)

// Auditor is implemented by storage.Store.
type Auditor interface {
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

// RecordAudit writes one audit entry per poll event until events is closed.
// Buffered events are drained first, so closing the subscription after the
// last publish loses nothing.
func RecordAudit(events <-chan eventbus.Event, a Auditor, log logx.Logger) {
	for ev := range events {
		pe, ok := ev.Data.(eventbus.PollEvent)
		if !ok {
			continue
		}
		e := storage.AuditEntry{
			At:     ev.Time,
			Action: ev.Type,
			PollID: pe.PollID,
			PID:    pe.PID,
			TID:    pe.TID,
			UID:    pe.UID,
		}
		if pe.EndAt != 0 || pe.Manual {
			meta := map[string]any{}
			if pe.EndAt != 0 {
				meta["end_at"] = pe.EndAt
			}
			if pe.Manual {
				meta["manual"] = true
			}
			if b, err := json.Marshal(meta); err == nil {
				e.MetaJSON = string(b)
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.AppendAudit(ctx, e); err != nil {
			log.Warn("audit write failed", logx.String("action", ev.Type), logx.Int64("pollid", pe.PollID), logx.Err(err))
		}
		cancel()
	}
}
