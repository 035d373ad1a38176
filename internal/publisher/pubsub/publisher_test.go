package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"cloud.google.com/go/pubsub"
	"github.com/stretchr/testify/require"
)

type runDone struct {
	RunID string `json:"run_id"`
}

func (r runDone) Attributes() map[string]string {
	return map[string]string{"run_id": r.RunID}
}

func TestPublishUsesDefaultTopicAndAttributes(t *testing.T) {
	t.Parallel()

	var (
		gotTopic string
		gotMsg   *pubsub.Message
	)
	pub := newPublisher("runs", func(_ context.Context, topic string, msg *pubsub.Message) (string, error) {
		gotTopic = topic
		gotMsg = msg
		return "msg-1", nil
	}, nil)

	id, err := pub.Publish(context.Background(), "", runDone{RunID: "run-1"})
	require.NoError(t, err)
	require.Equal(t, "msg-1", id)
	require.Equal(t, "runs", gotTopic)
	require.Equal(t, "run-1", gotMsg.Attributes["run_id"])

	var decoded runDone
	require.NoError(t, json.Unmarshal(gotMsg.Data, &decoded))
	require.Equal(t, "run-1", decoded.RunID)
}

func TestPublishErrors(t *testing.T) {
	t.Parallel()

	pub := newPublisher("runs", func(context.Context, string, *pubsub.Message) (string, error) {
		return "", errors.New("unavailable")
	}, nil)
	_, err := pub.Publish(context.Background(), "other", map[string]string{"k": "v"})
	require.ErrorContains(t, err, "publish to other")

	_, err = pub.Publish(context.Background(), "", func() {})
	require.ErrorContains(t, err, "marshal payload")

	var unset *Publisher
	_, err = unset.Publish(context.Background(), "", nil)
	require.Error(t, err)
	require.NoError(t, unset.Close())
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{TopicName: "runs"}, nil)
	require.ErrorContains(t, err, "project_id")
	_, err = New(context.Background(), Config{ProjectID: "p"}, nil)
	require.ErrorContains(t, err, "topic_name")
}
