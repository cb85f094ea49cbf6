package store

import (
	"testing"
	"time"

	"qirtaas/pkg/domain"
)

func newSubmission(owner, email, title string, at time.Time) domain.Submission {
	return domain.Submission{
		Title:       title,
		Category:    domain.CategoryBook,
		Description: "a manuscript",
		FileURL:     "https://files.example.com/manuscripts/x.pdf",
		FileID:      "manuscripts/x.pdf",
		SubmittedAt: at,
		Status:      domain.StatusPending,
		UserID:      owner,
		UserEmail:   email,
	}
}

func TestMemoryStoreCreateAssignsID(t *testing.T) {
	m := NewMemoryStore()
	created, err := m.CreateSubmission(newSubmission("u1", "u1@example.com", "First", time.Now()))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected store-assigned id")
	}
	got, ok, err := m.GetSubmission(created.ID)
	if err != nil || !ok {
		t.Fatalf("get after create: ok=%v err=%v", ok, err)
	}
	if got.Status != domain.StatusPending {
		t.Fatalf("status = %q, want pending", got.Status)
	}
	if got.Reviewed() {
		t.Fatalf("new submission must carry no review metadata")
	}
	if got.CoverURL != "" || got.CoverID != "" {
		t.Fatalf("cover must stay absent when not supplied")
	}
}

func TestMemoryStoreListByOwner(t *testing.T) {
	m := NewMemoryStore()
	base := time.Now().UTC()
	if _, err := m.CreateSubmission(newSubmission("u1", "u1@example.com", "Mine", base)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := m.CreateSubmission(newSubmission("u2", "u2@example.com", "Theirs", base.Add(time.Minute))); err != nil {
		t.Fatalf("create: %v", err)
	}
	mine, err := m.ListSubmissionsByOwner("u1")
	if err != nil {
		t.Fatalf("list by owner: %v", err)
	}
	if len(mine) != 1 || mine[0].Title != "Mine" {
		t.Fatalf("expected exactly the owner's submission, got %+v", mine)
	}
}

func TestMemoryStoreStatusFilterAndOrder(t *testing.T) {
	m := NewMemoryStore()
	base := time.Now().UTC()
	older, _ := m.CreateSubmission(newSubmission("u1", "u1@example.com", "Older", base))
	newer, _ := m.CreateSubmission(newSubmission("u1", "u1@example.com", "Newer", base.Add(time.Hour)))

	if _, ok, err := m.ApplyReview(older.ID, domain.StatusApproved, "fine", "admin-1", base.Add(2*time.Hour)); err != nil || !ok {
		t.Fatalf("apply review: ok=%v err=%v", ok, err)
	}

	pending, err := m.ListSubmissionsByStatus(string(domain.StatusPending))
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != newer.ID {
		t.Fatalf("pending filter returned %+v", pending)
	}

	approved, err := m.ListApproved()
	if err != nil {
		t.Fatalf("list approved: %v", err)
	}
	if len(approved) != 1 || approved[0].ID != older.ID {
		t.Fatalf("approved filter returned %+v", approved)
	}

	all, err := m.ListSubmissionsByStatus(StatusAll)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 || all[0].ID != newer.ID || all[1].ID != older.ID {
		t.Fatalf("expected newest-first ordering, got %+v", all)
	}
}

func TestMemoryStoreApplyReviewOverwrites(t *testing.T) {
	m := NewMemoryStore()
	sub, _ := m.CreateSubmission(newSubmission("u1", "u1@example.com", "Work", time.Now().UTC()))

	first := time.Now().UTC()
	reviewed, ok, err := m.ApplyReview(sub.ID, domain.StatusApproved, "looks good", "admin-1", first)
	if err != nil || !ok {
		t.Fatalf("first review: ok=%v err=%v", ok, err)
	}
	if reviewed.Status != domain.StatusApproved || reviewed.ReviewNotes != "looks good" || reviewed.ReviewedBy != "admin-1" {
		t.Fatalf("first review not applied: %+v", reviewed)
	}
	if reviewed.ReviewedAt == nil || !reviewed.ReviewedAt.Equal(first) {
		t.Fatalf("reviewedAt not recorded")
	}

	second := first.Add(time.Minute)
	reviewed, ok, err = m.ApplyReview(sub.ID, domain.StatusRejected, "actually no", "admin-2", second)
	if err != nil || !ok {
		t.Fatalf("second review: ok=%v err=%v", ok, err)
	}
	got, _, _ := m.GetSubmission(sub.ID)
	if got.Status != domain.StatusRejected || got.ReviewNotes != "actually no" || got.ReviewedBy != "admin-2" {
		t.Fatalf("second review must overwrite all review fields: %+v", got)
	}
	if got.ReviewedAt == nil || !got.ReviewedAt.Equal(second) {
		t.Fatalf("second reviewedAt must win, got %v", got.ReviewedAt)
	}
}

func TestMemoryStoreApplyReviewUnknownID(t *testing.T) {
	m := NewMemoryStore()
	_, ok, err := m.ApplyReview("missing", domain.StatusApproved, "", "admin-1", time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("unknown id must report not found")
	}
}
