package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	awscqrs_errors "awscqrs/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwnerKeyResolver(t *testing.T) {
	r := NewOwnerKeyResolver()

	group, err := r.GroupID(Notification{"owner": "alice"})
	require.NoError(t, err)
	assert.Equal(t, "alice", group)

	_, err = r.GroupID(Notification{"id": "x"})
	assert.ErrorIs(t, err, awscqrs_errors.ErrMalformedRecord)

	dedupe, err := r.DedupeID(Notification{"RequestId": "req-1", "id": "evt-1"})
	require.NoError(t, err)
	assert.Equal(t, "req-1", dedupe)

	dedupe, err = r.DedupeID(Notification{"id": "evt-1"})
	require.NoError(t, err)
	assert.Equal(t, "evt-1", dedupe, "falls back to the event id")

	dedupe, err = r.DedupeID(Notification{"RequestId": "", "id": "evt-2"})
	require.NoError(t, err)
	assert.Equal(t, "evt-2", dedupe)

	_, err = r.DedupeID(Notification{"owner": "alice"})
	assert.ErrorIs(t, err, awscqrs_errors.ErrMalformedRecord)
}

func TestNewMessage(t *testing.T) {
	n := Notification{"owner": "alice", "id": "evt-1", "name": "buy milk", "completed": false}
	msg, err := NewMessage(n, NewOwnerKeyResolver(), "arn:topic")
	require.NoError(t, err)

	assert.Equal(t, "alice", msg.GroupID)
	assert.Equal(t, "evt-1", msg.DedupeID)
	assert.Equal(t, "arn:topic", msg.TopicArn)
	assert.JSONEq(t, `{"owner":"alice","id":"evt-1","name":"buy milk","completed":false}`, msg.Body)

	wire, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(wire), `"MessageGroupId":"alice"`)
	assert.Contains(t, string(wire), `"MessageDeduplicationId":"evt-1"`)
}

func TestUnwrap(t *testing.T) {
	inner := `{"id":"evt-1","name":"buy milk","completed":false}`

	single, err := json.Marshal(map[string]string{"Type": "Notification", "Message": inner})
	require.NoError(t, err)
	n, err := Unwrap(single)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", n.ID())
	assert.Equal(t, false, n["completed"])

	rewrapped, err := json.Marshal(map[string]string{"Message": string(single)})
	require.NoError(t, err)
	n, err = Unwrap(rewrapped)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", n.ID(), "one extra envelope layer is tolerated")

	withField := `{"id":"evt-2","Message":"{\"nested\":true}"}`
	body, err := json.Marshal(map[string]string{"Message": withField})
	require.NoError(t, err)
	n, err = Unwrap(body)
	require.NoError(t, err)
	assert.Equal(t, "evt-2", n.ID(), "an event's own Message attribute is not an envelope")

	_, err = Unwrap([]byte(`{"id":"evt-3"}`))
	assert.ErrorIs(t, err, ErrNoMessage)

	_, err = Unwrap([]byte(`{"Message":"not json"}`))
	assert.Error(t, err)

	_, err = Unwrap([]byte(`garbage`))
	assert.Error(t, err)
}

func publish(t *testing.T, bus *MemoryBus, owner, id string) {
	t.Helper()
	msg, err := NewMessage(Notification{"owner": owner, "id": id}, NewOwnerKeyResolver(), "")
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), msg))
}

func collectIDs(t *testing.T, q *MemoryQueue) []string {
	t.Helper()
	var ids []string
	err := q.Drain(context.Background(), BatchHandlerFunc(func(_ context.Context, batch []Delivery) error {
		for _, d := range batch {
			n, err := Unwrap(d.Body)
			require.NoError(t, err)
			ids = append(ids, n.ID())
		}
		return nil
	}))
	require.NoError(t, err)
	return ids
}

func TestMemoryBus_OrderingAndFanOut(t *testing.T) {
	bus := NewMemoryBus("arn:test", time.Minute)
	a := bus.Subscribe("a", 2, 3)
	b := bus.Subscribe("b", 10, 3)

	publish(t, bus, "alice", "t1")
	publish(t, bus, "bob", "u1")
	publish(t, bus, "alice", "t2")

	assert.Equal(t, []string{"t1", "u1", "t2"}, collectIDs(t, a))
	assert.Equal(t, []string{"t1", "u1", "t2"}, collectIDs(t, b))
	assert.Equal(t, 0, a.Len())
}

func TestMemoryBus_Deduplication(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bus := NewMemoryBus("", 5*time.Minute).WithClock(func() time.Time { return now })
	q := bus.Subscribe("contacts", 10, 3)

	publish(t, bus, "alice", "evt-1")
	publish(t, bus, "alice", "evt-1")
	assert.Equal(t, 1, q.Len(), "same dedupe id within the window is delivered once")

	now = now.Add(6 * time.Minute)
	publish(t, bus, "alice", "evt-1")
	assert.Equal(t, 2, q.Len(), "window elapsed")
}

func TestMemoryQueue_FailedBatchIsRedeliveredThenDeadLettered(t *testing.T) {
	bus := NewMemoryBus("", time.Minute)
	q := bus.Subscribe("contacts", 10, 2)
	publish(t, bus, "alice", "evt-1")

	boom := errors.New("boom")
	failing := BatchHandlerFunc(func(context.Context, []Delivery) error { return boom })

	err := q.Drain(context.Background(), failing)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, q.Len(), "batch stays queued")

	err = q.Drain(context.Background(), failing)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, q.Len())
	dead := q.DeadLetters()
	require.Len(t, dead, 1)
	assert.Equal(t, 2, dead[0].Attempt)
}

func TestMemoryBus_RejectsMissingKeys(t *testing.T) {
	bus := NewMemoryBus("", time.Minute)
	err := bus.Publish(context.Background(), Message{Body: "{}"})
	assert.Error(t, err)
}
