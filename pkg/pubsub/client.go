package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	gpubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mtarikucar/kds-sub004/pkg/config"
	"github.com/mtarikucar/kds-sub004/pkg/logger"
)

// Message is one event bound for a topic. Messages sharing an OrderingKey are
// delivered in publish order.
type Message struct {
	Data        []byte
	Attributes  map[string]string
	OrderingKey string
}

// Client publishes KDS domain events to Pub/Sub. Publishers are opened lazily
// per topic with message ordering enabled.
type Client struct {
	client    *gpubsub.Client
	projectID string
	topics    []string

	mu         sync.Mutex
	publishers map[string]*gpubsub.Publisher
}

var (
	ErrProjectIDRequired = errors.New("gcp project id is required")
	ErrNoTopics          = errors.New("at least one pubsub topic is required")
)

// NewClient dials Pub/Sub and fails fast when a configured topic is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, ErrProjectIDRequired
	}
	topics := topicNames(cfg)
	if len(topics) == 0 {
		return nil, ErrNoTopics
	}

	opts := clientOptions(gcp, cfg)
	raw, err := gpubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{
		client:     raw,
		projectID:  projectID,
		topics:     topics,
		publishers: make(map[string]*gpubsub.Publisher),
	}
	if err := c.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"project": projectID, "topics": topics}), "pubsub client initialized")
	}
	return c, nil
}

func clientOptions(gcp config.GCPConfig, cfg config.PubSubConfig) []option.ClientOption {
	var opts []option.ClientOption
	if creds := strings.TrimSpace(gcp.CredentialsFile); creds != "" {
		opts = append(opts, option.WithCredentialsFile(creds))
	}
	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	return opts
}

// Send publishes msg and blocks until the server acknowledges it. A failed
// ordered publish pauses its key, so the key is resumed before returning the
// error and the next attempt can go through.
func (c *Client) Send(ctx context.Context, topic string, msg Message) error {
	pub, err := c.publisher(topic)
	if err != nil {
		return err
	}
	result := pub.Publish(ctx, &gpubsub.Message{
		Data:        msg.Data,
		Attributes:  msg.Attributes,
		OrderingKey: msg.OrderingKey,
	})
	if _, err := result.Get(ctx); err != nil {
		if msg.OrderingKey != "" {
			pub.ResumePublish(msg.OrderingKey)
		}
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (c *Client) publisher(topic string) (*gpubsub.Publisher, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("pubsub client not initialized")
	}
	name := topicResourceName(c.projectID, topic)
	if name == "" {
		return nil, fmt.Errorf("topic %q not configured", topic)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if pub, ok := c.publishers[name]; ok {
		return pub, nil
	}
	pub := c.client.Publisher(name)
	pub.EnableMessageOrdering = true
	c.publishers[name] = pub
	return pub, nil
}

// Ping confirms every configured topic exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	for _, topic := range c.topics {
		name := topicResourceName(c.projectID, topic)
		_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
		switch {
		case status.Code(err) == codes.NotFound:
			return fmt.Errorf("topic %q does not exist", topic)
		case err != nil:
			return fmt.Errorf("checking topic %q: %w", topic, err)
		}
	}
	return nil
}

// Close flushes open publishers before closing the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for _, pub := range c.publishers {
		pub.Stop()
	}
	c.publishers = map[string]*gpubsub.Publisher{}
	c.mu.Unlock()
	return c.client.Close()
}

func topicNames(cfg config.PubSubConfig) []string {
	var names []string
	for _, raw := range []string{cfg.OrdersTopic, cfg.BillingTopic} {
		name := strings.TrimSpace(raw)
		if name == "" || contains(names, name) {
			continue
		}
		names = append(names, name)
	}
	return names
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

func topicResourceName(projectID, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/topics/") {
		return name
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return ""
	}
	return "projects/" + projectID + "/topics/" + name
}
