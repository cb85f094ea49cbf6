package domain

import (
	"strings"
	"time"
)

// Status is the moderation state of a submission.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ParseStatus validates a raw status value.
func ParseStatus(raw string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusPending:
		return StatusPending, true
	case StatusApproved:
		return StatusApproved, true
	case StatusRejected:
		return StatusRejected, true
	}
	return "", false
}

// Category classifies a submitted work.
type Category string

const (
	CategoryBook    Category = "book"
	CategoryStory   Category = "story"
	CategoryPoetry  Category = "poetry"
	CategoryArticle Category = "article"
)

// ParseCategory validates a raw category value.
func ParseCategory(raw string) (Category, bool) {
	switch Category(strings.ToLower(strings.TrimSpace(raw))) {
	case CategoryBook:
		return CategoryBook, true
	case CategoryStory:
		return CategoryStory, true
	case CategoryPoetry:
		return CategoryPoetry, true
	case CategoryArticle:
		return CategoryArticle, true
	}
	return "", false
}

// Principal is the authenticated actor performing an operation.
// Elevated is derived from the admin allow-list at resolution time,
// never stored.
type Principal struct {
	ID       string `json:"id"`
	Email    string `json:"email,omitempty"`
	Elevated bool   `json:"admin"`
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Submission is a unit of creative work offered for publication.
// Owner fields (UserID, UserEmail) are captured at creation and never
// mutated. Review fields are absent until a reviewer acts and are only
// ever written together.
type Submission struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Category    Category   `json:"category"`
	Description string     `json:"description"`
	FileURL     string     `json:"fileUrl"`
	FileID      string     `json:"fileId"`
	CoverURL    string     `json:"cover,omitempty"`
	CoverID     string     `json:"coverId,omitempty"`
	SubmittedAt time.Time  `json:"submittedAt"`
	Status      Status     `json:"status"`
	UserID      string     `json:"userId"`
	UserEmail   string     `json:"userEmail"`
	ReviewNotes string     `json:"reviewNotes,omitempty"`
	ReviewedAt  *time.Time `json:"reviewedAt,omitempty"`
	ReviewedBy  string     `json:"reviewedBy,omitempty"`
}

// Reviewed reports whether a reviewer has acted on the submission.
func (s Submission) Reviewed() bool {
	return s.ReviewedAt != nil
}
