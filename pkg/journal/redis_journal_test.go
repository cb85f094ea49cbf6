package journal

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestRedisJournalAppendAndRecent(t *testing.T) {
	redis := miniredis.RunT(t)
	j, err := NewRedisJournal(Config{Addr: redis.Addr()})
	if err != nil {
		t.Fatalf("new journal: %v", err)
	}
	ctx := context.Background()

	first := Event{Kind: KindSubmissionCreated, SubmissionID: "sub-1", ActorID: "user-1", Status: "pending", At: time.Now().UTC()}
	if err := j.Append(ctx, first); err != nil {
		t.Fatalf("append created: %v", err)
	}
	second := Event{Kind: KindSubmissionReviewed, SubmissionID: "sub-1", ActorID: "admin-1", Status: "approved", At: time.Now().UTC()}
	if err := j.Append(ctx, second); err != nil {
		t.Fatalf("append reviewed: %v", err)
	}

	events, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Kind != KindSubmissionReviewed || events[1].Kind != KindSubmissionCreated {
		t.Fatalf("expected newest-first ordering, got %q then %q", events[0].Kind, events[1].Kind)
	}
	if events[0].ActorID != "admin-1" || events[0].Status != "approved" {
		t.Fatalf("reviewed event fields lost: %+v", events[0])
	}
	if events[1].At.IsZero() {
		t.Fatalf("event timestamp must round-trip")
	}
}

func TestRedisJournalRejectsEmptyKind(t *testing.T) {
	redis := miniredis.RunT(t)
	j, err := NewRedisJournal(Config{Addr: redis.Addr()})
	if err != nil {
		t.Fatalf("new journal: %v", err)
	}
	if err := j.Append(context.Background(), Event{}); err == nil {
		t.Fatalf("expected error for event without kind")
	}
}

func TestRedisJournalRequiresAddr(t *testing.T) {
	if _, err := NewRedisJournal(Config{}); err == nil {
		t.Fatalf("expected constructor error for empty addr")
	}
}
