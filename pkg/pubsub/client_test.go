package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtarikucar/kds-sub004/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	require.Equal(t, "projects/p1/topics/orders", topicResourceName("p1", "orders"))
	require.Equal(t, "projects/x/topics/y", topicResourceName("p1", "projects/x/topics/y"))
	require.Empty(t, topicResourceName("", "orders"))
	require.Empty(t, topicResourceName("p1", "  "))
}

func TestTopicNamesDeduplicates(t *testing.T) {
	names := topicNames(config.PubSubConfig{OrdersTopic: "events", BillingTopic: " events "})
	require.Equal(t, []string{"events"}, names)

	require.Empty(t, topicNames(config.PubSubConfig{}))
}

func TestClientOptions(t *testing.T) {
	assert.Empty(t, clientOptions(config.GCPConfig{}, config.PubSubConfig{}))
	assert.Len(t, clientOptions(config.GCPConfig{CredentialsFile: "/etc/sa.json"}, config.PubSubConfig{Endpoint: "localhost:8085"}), 2)
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{OrdersTopic: "o"}, nil)
	require.ErrorIs(t, err, ErrProjectIDRequired)

	_, err = NewClient(context.Background(), config.GCPConfig{ProjectID: "p"}, config.PubSubConfig{}, nil)
	require.ErrorIs(t, err, ErrNoTopics)
}

func TestSendWithoutClient(t *testing.T) {
	var c *Client
	require.Error(t, c.Send(context.Background(), "orders", Message{Data: []byte("{}")}))
	require.NoError(t, c.Close())
}
