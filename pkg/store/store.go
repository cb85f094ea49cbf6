package store

import (
	"time"

	"qirtaas/pkg/domain"
)

// StatusAll lists submissions regardless of moderation status.
const StatusAll = "all"

// Store defines persistence operations for users and submissions.
// It shapes data only; workflow rules (who may review, which statuses
// are legal transitions) live in the application layer.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)

	// submissions
	CreateSubmission(domain.Submission) (domain.Submission, error)
	GetSubmission(id string) (domain.Submission, bool, error)
	ListSubmissionsByOwner(ownerID string) ([]domain.Submission, error)
	// ListSubmissionsByStatus accepts a concrete status or StatusAll and
	// returns newest first, for the moderation queue.
	ListSubmissionsByStatus(filter string) ([]domain.Submission, error)
	// ListApproved backs the public catalog, the highest-read-volume query.
	ListApproved() ([]domain.Submission, error)
	// ApplyReview sets status, reviewer notes, review timestamp, and
	// reviewer id in one write. Returns found=false when id is unknown.
	// Concurrent reviews of the same submission are last-write-wins.
	ApplyReview(id string, status domain.Status, notes, reviewerID string, at time.Time) (domain.Submission, bool, error)
}

// SessionStore persists server session credentials.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}

// TokenStore mints and verifies short-lived access tokens exchanged for
// server sessions.
type TokenStore interface {
	Mint(userID string) (string, error)
	VerifySubject(token string) (string, error)
}
