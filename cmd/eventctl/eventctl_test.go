package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"awscqrs/internal/changefeed"
	"awscqrs/internal/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatten(t *testing.T) {
	rec, err := changefeed.InsertRecord("e-1", "1", []string{"owner", "timestamp"}, map[string]any{
		"owner": "alice", "timestamp": "2024-01-01T00:00:00.000000000Z", "id": "n1", "name": "milk",
	})
	require.NoError(t, err)
	batch := changefeed.Batch{Records: []changefeed.Record{
		rec,
		{EventID: "e-2", EventName: changefeed.EventRemove},
	}}
	data, err := json.Marshal(batch)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, runFlatten(bytes.NewReader(data), &out, "arn:topic"))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)

	var got flattened
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	require.NotNil(t, got.Message)
	assert.Equal(t, "e-1", got.EventID)
	assert.Equal(t, "alice", got.Message.GroupID)
	assert.Equal(t, "n1", got.Message.DedupeID)
	assert.Equal(t, "arn:topic", got.Message.TopicArn)

	var n events.Notification
	require.NoError(t, json.Unmarshal([]byte(got.Message.Body), &n))
	assert.Equal(t, "milk", n["name"])
	assert.Equal(t, "alice", n.Owner())
}

func TestFlatten_BadInput(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, runFlatten(strings.NewReader(`{"Records":`), &out, ""))
}

func TestRootCommand(t *testing.T) {
	root := newRootCommand()
	names := []string{}
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"replay", "flatten"}, names)
}
