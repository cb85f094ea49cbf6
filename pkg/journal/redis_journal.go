package journal

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event kinds recorded for the submission lifecycle.
const (
	KindSubmissionCreated  = "submission.created"
	KindSubmissionReviewed = "submission.reviewed"
)

// Event is one moderation-trail entry.
type Event struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	SubmissionID string    `json:"submissionId"`
	ActorID      string    `json:"actorId"`
	Status       string    `json:"status"`
	At           time.Time `json:"at"`
}

// Journal records submission lifecycle events for the admin dashboard.
type Journal interface {
	Append(ctx context.Context, event Event) error
	Recent(ctx context.Context, n int64) ([]Event, error)
}

// RedisJournal appends events to a capped Redis stream. Appends are
// synchronous and best-effort; there is no consumer group and no
// background processing.
type RedisJournal struct {
	client *redis.Client
	stream string
	maxLen int64
}

// Config wires the Redis stream journal.
type Config struct {
	Addr     string
	Password string
	Stream   string
	MaxLen   int64
}

// NewRedisJournal builds a journal over a capped stream.
func NewRedisJournal(cfg Config) (*RedisJournal, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		stream = "qirtaas:portal:journal"
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &RedisJournal{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Password,
		}),
		stream: stream,
		maxLen: maxLen,
	}, nil
}

// Append records an event. The returned error is informational; callers
// treat journal failures as non-fatal.
func (j *RedisJournal) Append(ctx context.Context, event Event) error {
	if strings.TrimSpace(event.Kind) == "" {
		return errors.New("event kind required")
	}
	at := event.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return j.client.XAdd(ctx, &redis.XAddArgs{
		Stream: j.stream,
		MaxLen: j.maxLen,
		Approx: true,
		Values: map[string]any{
			"kind":          event.Kind,
			"submission_id": event.SubmissionID,
			"actor_id":      event.ActorID,
			"status":        event.Status,
			"at":            at.Format(time.RFC3339Nano),
		},
	}).Err()
}

// Recent returns up to n events, newest first.
func (j *RedisJournal) Recent(ctx context.Context, n int64) ([]Event, error) {
	if n <= 0 {
		return []Event{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	messages, err := j.client.XRevRangeN(ctx, j.stream, "+", "-", n).Result()
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(messages))
	for _, msg := range messages {
		events = append(events, eventFromValues(msg.ID, msg.Values))
	}
	return events, nil
}

func eventFromValues(id string, values map[string]any) Event {
	event := Event{ID: id}
	if v, ok := values["kind"].(string); ok {
		event.Kind = v
	}
	if v, ok := values["submission_id"].(string); ok {
		event.SubmissionID = v
	}
	if v, ok := values["actor_id"].(string); ok {
		event.ActorID = v
	}
	if v, ok := values["status"].(string); ok {
		event.Status = v
	}
	if v, ok := values["at"].(string); ok {
		if at, err := time.Parse(time.RFC3339Nano, v); err == nil {
			event.At = at
		}
	}
	return event
}
