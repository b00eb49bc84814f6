package events

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEventJSON(t *testing.T) {
	e := New(NodesReordered, "flw_1", "usr_1", map[string]any{"stageId": "s1", "orderedNodeIds": []string{"B", "A"}})
	require.NotEmpty(t, e.ID)
	assert.False(t, e.Timestamp.IsZero())

	raw, err := json.Marshal(e)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "nodes.reordered", decoded["type"])
	assert.Equal(t, "flw_1", decoded["flowId"])
	assert.Contains(t, decoded, "payload")
}

func TestRecorder(t *testing.T) {
	var r Recorder
	ctx := context.Background()
	require.NoError(t, r.Publish(ctx, New(StageAdded, "flw_1", "", nil)))
	require.NoError(t, r.Publish(ctx, New(NodeCreated, "flw_1", "", nil)))

	assert.Equal(t, []Type{StageAdded, NodeCreated}, r.Types())
	events := r.Events()
	events[0].Type = FlowDeleted
	assert.Equal(t, StageAdded, r.Types()[0], "Events must return a copy")
}

func TestAMQPPublisherRoundTrip(t *testing.T) {
	url := strings.TrimSpace(os.Getenv("TROVE_TEST_AMQP_URL"))
	if url == "" {
		t.Skip("TROVE_TEST_AMQP_URL is not set")
	}
	pub, err := Dial(url, zerolog.Nop())
	require.NoError(t, err)
	defer pub.Close()

	conn, err := amqp.Dial(url)
	require.NoError(t, err)
	defer conn.Close()
	ch, err := conn.Channel()
	require.NoError(t, err)
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	require.NoError(t, err)
	require.NoError(t, ch.QueueBind(q.Name, "node.*", Exchange, false, nil))
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	require.NoError(t, err)

	sent := New(NodeMoved, "flw_1", "usr_1", nil)
	require.NoError(t, pub.Publish(context.Background(), sent))

	msg := <-deliveries
	assert.Equal(t, "node.moved", msg.RoutingKey)
	assert.Equal(t, sent.ID, msg.MessageId)
	require.NoError(t, pub.Close())
	assert.ErrorIs(t, pub.Publish(context.Background(), sent), errClosed)
}
