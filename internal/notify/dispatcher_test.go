package notify

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/log"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/model"
)

func notification(typ model.NotificationType, attendeeID string) model.Notification {
	return model.Notification{Type: typ, EventID: "evt-1", UserID: "u-" + attendeeID, AttendeeID: attendeeID, OccurredAt: time.Now()}
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	d := NewDispatcher(8)
	ch := d.Subscribe(context.Background())

	ctx := context.Background()
	d.Publish(ctx, notification(model.NotificationPromoted, "b"))
	d.Publish(ctx, notification(model.NotificationCancelled, "a"))
	d.Close()

	var got []string
	for n := range ch {
		got = append(got, string(n.Type)+":"+n.AttendeeID)
	}
	require.Equal(t, []string{"promoted:b", "cancelled:a"}, got)
}

func TestDispatcher_PublishAfterCloseIsDropped(t *testing.T) {
	d := NewDispatcher(1)
	d.Close()
	d.Close()

	require.NotPanics(t, func() {
		d.Publish(context.Background(), notification(model.NotificationRegistered, "a"))
	})
}

func TestDispatcher_FullQueueDropsWithoutBlocking(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, log.Init("warn", "json", &buf))
	t.Cleanup(func() { _ = log.Init("info", "text", os.Stderr) })

	d := NewDispatcher(1)
	defer d.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			d.Publish(context.Background(), notification(model.NotificationRegistered, "a"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		require.Fail(t, "Publish blocked")
	}
}

func TestRecorder_Drain(t *testing.T) {
	r := NewRecorder(2)
	r.Publish(context.Background(), notification(model.NotificationWaitlisted, "a"))
	r.Publish(context.Background(), notification(model.NotificationWaitlisted, "b"))
	r.Publish(context.Background(), notification(model.NotificationWaitlisted, "c"))

	got := r.Drain()
	require.Len(t, got, 2)
	require.Equal(t, "a", got[0].AttendeeID)
	require.Empty(t, r.Drain())
}

func TestLogSink_WritesPosition(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, log.Init("info", "json", &buf))
	t.Cleanup(func() { _ = log.Init("info", "text", os.Stderr) })

	pos := 3
	n := notification(model.NotificationWaitlisted, "a")
	n.Position = &pos

	ch := make(chan model.Notification, 1)
	ch <- n
	close(ch)
	LogSink(ch)

	require.Contains(t, buf.String(), `"position":3`)
	require.Contains(t, buf.String(), `"category":"notify"`)
}
