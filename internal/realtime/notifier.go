package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Event names pushed to clients.
const (
	EventPaymentVerified  = "payment:verified"
	EventPaymentFailed    = "payment:failed"
	EventEnrollmentSynced = "enrollment:moodle-synced"
)

// Config holds realtime channel configuration
type Config struct {
	Addr     string
	Password string
	Channel  string
}

// Message is the envelope published to the realtime channel. The socket
// gateway fans it out to the connected client keyed by user id.
type Message struct {
	UserID string                 `json:"user_id"`
	Event  string                 `json:"event"`
	Data   map[string]interface{} `json:"data,omitempty"`
}

// Notifier publishes realtime events over Redis pub/sub. Emission is
// best-effort, at-most-once: failures are logged, never propagated, and
// must not fail the job that emitted them.
type Notifier struct {
	rdb     *goredis.Client
	channel string
	logger  *slog.Logger
}

// NewNotifier creates a new Notifier and verifies the Redis connection
func NewNotifier(config *Config, logger *slog.Logger) (*Notifier, error) {
	channel := config.Channel
	if channel == "" {
		channel = "portal:events"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        config.Addr,
		Password:    config.Password,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Info("Realtime notifier connected",
		slog.String("addr", config.Addr),
		slog.String("channel", channel),
	)

	return &Notifier{
		rdb:     rdb,
		channel: channel,
		logger:  logger,
	}, nil
}

// Emit publishes one event for one user. Fire-and-forget.
func (n *Notifier) Emit(ctx context.Context, userID, event string, data map[string]interface{}) {
	raw, err := json.Marshal(Message{
		UserID: userID,
		Event:  event,
		Data:   data,
	})
	if err != nil {
		n.logger.Warn("Failed to marshal realtime event",
			slog.String("event", event),
			slog.Any("error", err),
		)
		return
	}

	if err := n.rdb.Publish(ctx, n.channel, raw).Err(); err != nil {
		n.logger.Warn("Failed to publish realtime event",
			slog.String("event", event),
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}
}

// Close closes the Redis connection
func (n *Notifier) Close() error {
	return n.rdb.Close()
}
