package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingPublisher struct {
	events []Event
	err    error
}

func (r *recordingPublisher) Publish(ctx context.Context, event Event) error {
	r.events = append(r.events, event)
	return r.err
}

func TestMultiPublisher_DeliversToAll(t *testing.T) {
	failing := &recordingPublisher{err: errors.New("nats down")}
	ok := &recordingPublisher{}

	err := MultiPublisher{failing, ok}.Publish(context.Background(), Event{Type: TicketMinted, TokenID: 1})
	assert.EqualError(t, err, "nats down")
	assert.Len(t, failing.events, 1)
	assert.Len(t, ok.events, 1)
}

func TestEmit_StampsTime(t *testing.T) {
	rec := &recordingPublisher{}
	Emit(context.Background(), rec, Event{Type: TicketSold})
	assert.False(t, rec.events[0].OccurredAt.IsZero())

	Emit(context.Background(), nil, Event{Type: TicketSold})
}
