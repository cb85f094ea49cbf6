package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"qirtaas/pkg/auth"
	"qirtaas/pkg/authz"
	"qirtaas/pkg/domain"
	"qirtaas/pkg/journal"
	"qirtaas/pkg/storage"
	"qirtaas/pkg/store"
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	JWTSecret     string
	JWTIssuer     string
	JWTAudience   string
	AccessTTL     time.Duration
	SessionTTL    time.Duration
	AdminEmails   []string

	MaxManuscriptBytes int64
	MaxCoverBytes      int64

	Store    store.Store
	Sessions store.SessionStore
	Tokens   store.TokenStore
	Objects  storage.ObjectStore
	Journal  journal.Journal
	Policy   authz.Policy
}

// App is the core application service: authentication, submission intake,
// and the moderation workflow. Every operation takes the acting principal
// explicitly; there is no ambient current-user state.
type App struct {
	store    store.Store
	sessions store.SessionStore
	tokens   store.TokenStore
	objects  storage.ObjectStore
	journal  journal.Journal
	policy   authz.Policy

	maxManuscriptBytes int64
	maxCoverBytes      int64
}

// New constructs the application, building default collaborators for any
// not supplied.
func New(cfg Config) (*App, error) {
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.SessionTTL == 0 {
		// The server session credential lives five days, matching the
		// session cookie expiry.
		cfg.SessionTTL = 5 * 24 * time.Hour
	}
	if cfg.MaxManuscriptBytes <= 0 {
		cfg.MaxManuscriptBytes = maxManuscriptBytes
	}
	if cfg.MaxCoverBytes <= 0 {
		cfg.MaxCoverBytes = maxCoverBytes
	}

	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	sessionStore := cfg.Sessions
	if sessionStore == nil {
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return nil, fmt.Errorf("redisAddr is required for the session store")
		}
		sessionStore = store.NewRedisSessionStore(cfg.RedisAddr, cfg.RedisPassword, cfg.SessionTTL)
	}

	tokenStore := cfg.Tokens
	if tokenStore == nil {
		var err error
		tokenStore, err = store.NewJWTAccessTokenStore(cfg.JWTSecret, cfg.AccessTTL, store.JWTOptions{
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
		})
		if err != nil {
			return nil, fmt.Errorf("init access token store: %w", err)
		}
	}

	if cfg.Objects == nil {
		return nil, fmt.Errorf("object store required")
	}

	policy := cfg.Policy
	if policy == nil {
		emails := cfg.AdminEmails
		if len(emails) == 0 {
			emails = authz.DefaultAdminEmails
		}
		policy = authz.NewAllowList(emails)
	}

	return &App{
		store:              dataStore,
		sessions:           sessionStore,
		tokens:             tokenStore,
		objects:            cfg.Objects,
		journal:            cfg.Journal,
		policy:             policy,
		maxManuscriptBytes: cfg.MaxManuscriptBytes,
		maxCoverBytes:      cfg.MaxCoverBytes,
	}, nil
}

// SignUp registers a new user and issues an access token.
func (a *App) SignUp(email, password, displayName string) (domain.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return domain.User{}, "", ErrEmailAndPasswordRequired
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, "", fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}
	exists, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, "", ErrEmailAlreadyExists
	}
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, "", fmt.Errorf("save user: %w", err)
	}
	token, err := a.tokens.Mint(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("mint token: %w", err)
	}
	return user, token, nil
}

// Login validates credentials and issues an access token. Failures are
// deliberately indistinguishable between unknown email and bad password.
func (a *App) Login(email, password string) (domain.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return domain.User{}, "", ErrEmailAndPasswordRequired
	}
	user, found, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("lookup user: %w", err)
	}
	if !found || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.tokens.Mint(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("mint token: %w", err)
	}
	return user, token, nil
}

// ExchangeSession trades a valid access token for a longer-lived server
// session credential. This is a pure token exchange; no other state moves.
func (a *App) ExchangeSession(accessToken string) (string, error) {
	userID, err := a.tokens.VerifySubject(accessToken)
	if err != nil {
		return "", ErrInvalidToken
	}
	if _, found, err := a.store.GetUserByID(userID); err != nil || !found {
		return "", ErrInvalidToken
	}
	session, err := a.sessions.NewSession(userID)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// Logout destroys a server session.
func (a *App) Logout(sessionToken string) error {
	if strings.TrimSpace(sessionToken) == "" {
		return nil
	}
	return a.sessions.DeleteSession(sessionToken)
}

// PrincipalFromToken resolves the acting principal from an access token.
// Any failure yields anonymous: authorization fails closed.
func (a *App) PrincipalFromToken(token string) (domain.Principal, bool) {
	userID, err := a.tokens.VerifySubject(token)
	if err != nil {
		return domain.Principal{}, false
	}
	return a.principalForUserID(userID)
}

// PrincipalFromSession resolves the acting principal from a session
// credential. Any failure yields anonymous.
func (a *App) PrincipalFromSession(sessionToken string) (domain.Principal, bool) {
	userID, found, err := a.sessions.GetUserIDByToken(sessionToken)
	if err != nil || !found {
		return domain.Principal{}, false
	}
	return a.principalForUserID(userID)
}

func (a *App) principalForUserID(userID string) (domain.Principal, bool) {
	user, found, err := a.store.GetUserByID(userID)
	if err != nil || !found {
		return domain.Principal{}, false
	}
	return domain.Principal{
		ID:       user.ID,
		Email:    user.Email,
		Elevated: a.policy.IsElevated(user.Email),
	}, true
}

// CurrentUser returns the full user record behind a principal.
func (a *App) CurrentUser(p domain.Principal) (domain.User, error) {
	if strings.TrimSpace(p.ID) == "" {
		return domain.User{}, ErrUnauthenticated
	}
	user, found, err := a.store.GetUserByID(p.ID)
	if err != nil {
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if !found {
		return domain.User{}, ErrNotFound
	}
	return user, nil
}

// Review applies a moderation verdict to a submission. Only elevated
// principals may review; a refusal changes nothing. Re-reviewing an
// already-decided submission is allowed and overwrites the previous
// verdict, notes, timestamp, and reviewer. Concurrent reviews race at the
// store with last-write-wins.
func (a *App) Review(ctx context.Context, p domain.Principal, submissionID string, verdict domain.Status, notes string) (domain.Submission, error) {
	if !a.policy.IsElevated(p.Email) {
		return domain.Submission{}, ErrForbidden
	}
	if verdict != domain.StatusApproved && verdict != domain.StatusRejected {
		return domain.Submission{}, fmt.Errorf("%w: review verdict must be approved or rejected", ErrValidation)
	}
	if strings.TrimSpace(submissionID) == "" {
		return domain.Submission{}, fmt.Errorf("%w: submission id required", ErrValidation)
	}
	reviewed, found, err := a.store.ApplyReview(submissionID, verdict, notes, p.ID, time.Now().UTC())
	if err != nil {
		return domain.Submission{}, fmt.Errorf("apply review: %w", err)
	}
	if !found {
		return domain.Submission{}, ErrNotFound
	}
	a.record(ctx, journal.Event{
		Kind:         journal.KindSubmissionReviewed,
		SubmissionID: reviewed.ID,
		ActorID:      p.ID,
		Status:       string(reviewed.Status),
	})
	return reviewed, nil
}

// MySubmissions lists the principal's own submissions, all statuses.
func (a *App) MySubmissions(p domain.Principal) ([]domain.Submission, error) {
	if strings.TrimSpace(p.ID) == "" {
		return nil, ErrUnauthenticated
	}
	return a.store.ListSubmissionsByOwner(p.ID)
}

// Catalog lists approved submissions for public browsing.
func (a *App) Catalog() ([]domain.Submission, error) {
	return a.store.ListApproved()
}

// ModerationQueue lists submissions for review, newest first, optionally
// filtered by status. Admin only.
func (a *App) ModerationQueue(p domain.Principal, filter string) ([]domain.Submission, error) {
	if !a.policy.IsElevated(p.Email) {
		return nil, ErrForbidden
	}
	filter = strings.ToLower(strings.TrimSpace(filter))
	if filter == "" {
		filter = store.StatusAll
	}
	if filter != store.StatusAll {
		if _, ok := domain.ParseStatus(filter); !ok {
			return nil, fmt.Errorf("%w: unknown status filter %q", ErrValidation, filter)
		}
	}
	return a.store.ListSubmissionsByStatus(filter)
}

// GetSubmission returns one submission if the principal may see it:
// approved submissions are public, everything else is visible to the
// owner and to elevated principals only. Hidden submissions are reported
// as not found so their existence does not leak.
func (a *App) GetSubmission(p domain.Principal, id string) (domain.Submission, error) {
	sub, found, err := a.store.GetSubmission(id)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("get submission: %w", err)
	}
	if !found {
		return domain.Submission{}, ErrNotFound
	}
	if sub.Status == domain.StatusApproved {
		return sub, nil
	}
	if sub.UserID == p.ID && p.ID != "" {
		return sub, nil
	}
	if a.policy.IsElevated(p.Email) {
		return sub, nil
	}
	return domain.Submission{}, ErrNotFound
}

// RecentEvents returns the latest moderation-trail entries. Admin only.
func (a *App) RecentEvents(ctx context.Context, p domain.Principal, n int64) ([]journal.Event, error) {
	if !a.policy.IsElevated(p.Email) {
		return nil, ErrForbidden
	}
	if a.journal == nil {
		return []journal.Event{}, nil
	}
	return a.journal.Recent(ctx, n)
}

// record appends to the moderation journal. Journal failures never fail
// the operation that produced them.
func (a *App) record(ctx context.Context, event journal.Event) {
	if a.journal == nil {
		return
	}
	if err := a.journal.Append(ctx, event); err != nil {
		slog.Warn("journal append failed", "kind", event.Kind, "submission_id", event.SubmissionID, "err", err)
	}
}
