package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"qirtaas/pkg/domain"
)

// MemoryStore keeps users and submissions in-process. It backs tests and
// local development without Postgres.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]domain.User
	email       map[string]string // email -> user ID
	submissions map[string]domain.Submission
	order       []string // submission insertion order
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]domain.User),
		email:       make(map[string]string),
		submissions: make(map[string]domain.Submission),
	}
}

// SaveUser registers or updates a user.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	return nil
}

// HasUserEmail checks if email exists.
func (m *MemoryStore) HasUserEmail(email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.email[email]
	return ok, nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.email[email]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := m.users[id]
	return u, ok, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// CreateSubmission stores a new submission, assigning its id.
func (m *MemoryStore) CreateSubmission(sub domain.Submission) (domain.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if strings.TrimSpace(sub.ID) == "" {
		sub.ID = uuid.NewString()
	}
	if _, exists := m.submissions[sub.ID]; !exists {
		m.order = append(m.order, sub.ID)
	}
	m.submissions[sub.ID] = sub
	return sub, nil
}

// GetSubmission retrieves a submission by id.
func (m *MemoryStore) GetSubmission(id string) (domain.Submission, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.submissions[id]
	return sub, ok, nil
}

// ListSubmissionsByOwner returns submissions owned by ownerID.
func (m *MemoryStore) ListSubmissionsByOwner(ownerID string) ([]domain.Submission, error) {
	return m.list(func(sub domain.Submission) bool {
		return sub.UserID == ownerID
	}), nil
}

// ListSubmissionsByStatus returns submissions newest first, optionally
// filtered by status.
func (m *MemoryStore) ListSubmissionsByStatus(filter string) ([]domain.Submission, error) {
	all := filter == StatusAll || strings.TrimSpace(filter) == ""
	return m.list(func(sub domain.Submission) bool {
		return all || string(sub.Status) == filter
	}), nil
}

// ListApproved returns the public catalog.
func (m *MemoryStore) ListApproved() ([]domain.Submission, error) {
	return m.ListSubmissionsByStatus(string(domain.StatusApproved))
}

func (m *MemoryStore) list(keep func(domain.Submission) bool) []domain.Submission {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Submission, 0, len(m.order))
	for _, id := range m.order {
		if sub, ok := m.submissions[id]; ok && keep(sub) {
			res = append(res, sub)
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].SubmittedAt.After(res[j].SubmittedAt)
	})
	return res
}

// ApplyReview overwrites status and review metadata together.
func (m *MemoryStore) ApplyReview(id string, status domain.Status, notes, reviewerID string, at time.Time) (domain.Submission, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.submissions[id]
	if !ok {
		return domain.Submission{}, false, nil
	}
	at = at.UTC()
	sub.Status = status
	sub.ReviewNotes = notes
	sub.ReviewedAt = &at
	sub.ReviewedBy = reviewerID
	m.submissions[id] = sub
	return sub, true, nil
}
