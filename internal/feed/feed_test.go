package feed

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	events []Event
	err    error
	closed bool
}

func (r *recordingPublisher) Publish(_ context.Context, ev Event) error {
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingPublisher) Close() error {
	r.closed = true
	return nil
}

func TestMultiFansOut(t *testing.T) {
	boom := errors.New("broker down")
	a := &recordingPublisher{}
	b := &recordingPublisher{err: boom}
	m := Multi{a, b}

	ev := Event{SessionID: uuid.New(), Type: EventDrop, Seat: 1}
	err := m.Publish(context.Background(), ev)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []Event{ev}, a.events)
	assert.Equal(t, []Event{ev}, b.events)

	require.NoError(t, m.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestEventJSONShape(t *testing.T) {
	id := uuid.New()
	data, err := marshal(Event{SessionID: id, Index: 4, Seat: 0, Type: EventTurn, Timestamp: 99})
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, id.String(), decoded["session_id"])
	assert.Equal(t, EventTurn, decoded["type"])
	assert.NotContains(t, decoded, "payload")
}

func TestNATSSubject(t *testing.T) {
	p := &NATSPublisher{prefix: DefaultNATSSubject}
	id := uuid.New()
	assert.Equal(t, "rummy.events."+id.String(), p.Subject(Event{SessionID: id}))
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), Event{}))
	assert.NoError(t, p.Close())
}
