package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-phongkham/internal/events"
)

type captureNotifier struct {
	events []events.Event
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return c.err
}

func TestEmitFansOutToNotifiers(t *testing.T) {
	first := &captureNotifier{}
	second := &captureNotifier{}
	at := time.Date(2026, 5, 1, 8, 0, 0, 0, time.FixedZone("ICT", 7*3600))
	bus := events.Bus{
		Notifiers: []events.Notifier{first, nil, second},
		Now:       func() time.Time { return at },
	}

	event, err := bus.Emit(context.Background(), events.TopicInvoiceCreated, "inv-1",
		events.InvoiceCreated{InvoiceID: "inv-1", Code: "HK-2026000000001", Total: 407_000})
	require.NoError(t, err)
	require.NotEmpty(t, event.ID)
	require.Equal(t, at.UTC(), event.OccurredAt)
	require.Len(t, first.events, 1)
	require.Len(t, second.events, 1)
	require.Equal(t, event.ID, second.events[0].ID)

	var decoded events.InvoiceCreated
	require.NoError(t, event.Decode(&decoded))
	require.Equal(t, int64(407_000), decoded.Total)
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	boom := errors.New("broker down")
	failing := &captureNotifier{err: boom}
	ok := &captureNotifier{}
	bus := events.Bus{Notifiers: []events.Notifier{failing, ok}}

	_, err := bus.Emit(context.Background(), events.TopicInvoiceDeleted, "inv-2", nil)
	require.ErrorIs(t, err, boom)
	require.Len(t, ok.events, 1, "a failing notifier must not stop the others")
	require.JSONEq(t, `{}`, string(ok.events[0].Payload))
}

func TestEmitValidatesInput(t *testing.T) {
	bus := events.Bus{}
	ctx := context.Background()

	_, err := bus.Emit(ctx, " ", "inv", nil)
	require.Error(t, err)
	_, err = bus.Emit(ctx, events.TopicInvoiceCreated, "", nil)
	require.Error(t, err)
	_, err = bus.Emit(ctx, events.TopicInvoiceCreated, "inv", "{not json")
	require.Error(t, err)

	var nilBus *events.Bus
	_, err = nilBus.Emit(ctx, events.TopicInvoiceCreated, "inv", nil)
	require.Error(t, err)
}
