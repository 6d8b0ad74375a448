package notify

import (
	"context"

	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/log"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/model"
)

// LogSink writes every notification from ch to the structured log until ch
// closes. It is the delivery channel used by the server until a real
// transport (email, push) is attached.
func LogSink(ch <-chan model.Notification) {
	for n := range ch {
		fields := []any{
			"type", string(n.Type),
			"event_id", n.EventID,
			"user_id", n.UserID,
			"attendee_id", n.AttendeeID,
			"occurred_at", n.OccurredAt,
		}
		if n.Position != nil {
			fields = append(fields, "position", *n.Position)
		}
		log.Info(log.CatNotify, "notification delivered", fields...)
	}
}

// Recorder is a Publisher that keeps everything it receives. It is safe for
// concurrent use.
type Recorder struct {
	ch chan model.Notification
}

// NewRecorder creates a Recorder able to hold size notifications.
func NewRecorder(size int) *Recorder {
	return &Recorder{ch: make(chan model.Notification, size)}
}

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, n model.Notification) {
	select {
	case r.ch <- n:
	default:
	}
}

// Drain returns everything recorded so far, in publish order.
func (r *Recorder) Drain() []model.Notification {
	var out []model.Notification
	for {
		select {
		case n := <-r.ch:
			out = append(out, n)
		default:
			return out
		}
	}
}

var _ Publisher = (*Recorder)(nil)
var _ Publisher = (*Dispatcher)(nil)
var _ Publisher = Discard{}

