// Package pubsub wraps the Pub/Sub v2 client for publishing outbox events to
// a fixed set of pre-provisioned topics.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"go.uber.org/multierr"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/printlab/printlab-backend/pkg/config"
	"github.com/printlab/printlab-backend/pkg/logger"
)

// ErrTopicNotConfigured means Send was asked for a topic outside the
// configured set. The relay treats it as permanent.
var ErrTopicNotConfigured = errors.New("pubsub topic not configured")

var (
	errNoProject = errors.New("gcp project id is required")
	errNoTopics  = errors.New("at least one pubsub topic is required")
)

type Client struct {
	ps      *pubsub.Client
	project string
	topics  map[string]string // short name -> projects/<p>/topics/<name>

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient connects to Pub/Sub and fails unless every configured topic
// already exists. Topics are provisioned outside the service.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errNoProject
	}
	topics := configuredTopics(project, cfg)
	if len(topics) == 0 {
		return nil, errNoTopics
	}

	ps, err := pubsub.NewClient(ctx, project, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("pubsub: connect: %w", err)
	}
	c := &Client{
		ps:         ps,
		project:    project,
		topics:     topics,
		publishers: make(map[string]*pubsub.Publisher, len(topics)),
	}
	if err := c.Ping(ctx); err != nil {
		return nil, multierr.Append(err, ps.Close())
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "project", project), "pubsub.connected")
	}
	return c, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	}
	return nil
}

func configuredTopics(project string, cfg config.PubSubConfig) map[string]string {
	out := map[string]string{}
	for _, name := range []string{cfg.OrdersTopic, cfg.NotificationTopic} {
		if path := topicPath(project, name); path != "" {
			out[strings.TrimSpace(name)] = path
		}
	}
	return out
}

// topicPath qualifies a short topic name with the project. Fully qualified
// names pass through untouched.
func topicPath(project, name string) string {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return ""
	case strings.HasPrefix(name, "projects/") && strings.Contains(name, "/topics/"):
		return name
	case project == "":
		return ""
	}
	return "projects/" + project + "/topics/" + name
}

// Send publishes one message and waits for the server-assigned id.
func (c *Client) Send(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error) {
	p := c.publisher(topic)
	if p == nil {
		return "", fmt.Errorf("%w: %q", ErrTopicNotConfigured, topic)
	}
	return p.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs}).Get(ctx)
}

func (c *Client) publisher(topic string) *pubsub.Publisher {
	if c == nil || c.ps == nil {
		return nil
	}
	path, ok := c.topics[strings.TrimSpace(topic)]
	if !ok {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.publishers[path]
	if !ok {
		p = c.ps.Publisher(path)
		c.publishers[path] = p
	}
	return p
}

// Ping looks up every configured topic and reports all that are missing.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.ps == nil {
		return errors.New("pubsub client not initialized")
	}
	var errs error
	for name, path := range c.topics {
		_, err := c.ps.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: path})
		switch {
		case err == nil:
		case status.Code(err) == codes.NotFound:
			errs = multierr.Append(errs, fmt.Errorf("pubsub: topic %q does not exist", name))
		default:
			errs = multierr.Append(errs, fmt.Errorf("pubsub: get topic %q: %w", name, err))
		}
	}
	return errs
}

// Close flushes pending publishes before releasing the connection.
func (c *Client) Close() error {
	if c == nil || c.ps == nil {
		return nil
	}
	c.mu.Lock()
	for path, p := range c.publishers {
		p.Stop()
		delete(c.publishers, path)
	}
	c.mu.Unlock()
	return c.ps.Close()
}
