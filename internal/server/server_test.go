package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"qirtaas/internal/app"
	"qirtaas/pkg/domain"
	"qirtaas/pkg/store"
)

type memObjectStore struct{}

func (memObjectStore) Put(context.Context, string, io.Reader, int64, string) error { return nil }
func (memObjectStore) PublicURL(key string) string                                 { return "https://files.test/" + key }
func (memObjectStore) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://files.test/" + key, nil
}
func (memObjectStore) Delete(context.Context, string) error { return nil }

func newTestServer(t *testing.T, mutate func(*Config)) *httptest.Server {
	t.Helper()
	redis := miniredis.RunT(t)
	a, err := app.New(app.Config{
		RedisAddr:   redis.Addr(),
		JWTSecret:   "test-secret",
		AdminEmails: []string{"editor@qirtaas.com"},
		Store:       store.NewMemoryStore(),
		Objects:     memObjectStore{},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	cfg := Config{
		App:       a,
		RedisAddr: redis.Addr(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func signUp(t *testing.T, base, email string) string {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"password":"a long password","displayName":"Test User"}`, email)
	resp, err := http.Post(base+"/api/auth/signup", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("signup expected 201, got %d: %s", resp.StatusCode, raw)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode signup response: %v", err)
	}
	if out.Token == "" {
		t.Fatalf("signup must return a token")
	}
	return out.Token
}

func submitManuscript(t *testing.T, base, token, title string) domain.Submission {
	t.Helper()
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	_ = form.WriteField("title", title)
	_ = form.WriteField("category", "book")
	_ = form.WriteField("description", "A manuscript for the catalog.")
	part, err := form.CreateFormFile("file", "manuscript.docx")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("PK\x03\x04 fake docx payload")); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := form.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}

	req, _ := http.NewRequest(http.MethodPost, base+"/api/submissions", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("create submission: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("create submission expected 201, got %d: %s", resp.StatusCode, raw)
	}
	var sub domain.Submission
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		t.Fatalf("decode submission: %v", err)
	}
	return sub
}

func doJSON(t *testing.T, method, url, token, body string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, _ := http.NewRequest(method, url, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func TestSubmissionLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t, nil)
	authorToken := signUp(t, ts.URL, "author@example.com")
	adminToken := signUp(t, ts.URL, "editor@qirtaas.com")

	created := submitManuscript(t, ts.URL, authorToken, "The Long Road")
	if created.Status != domain.StatusPending {
		t.Fatalf("new submission status = %q, want pending", created.Status)
	}

	// Anonymous readers cannot see a pending submission.
	resp, err := http.Get(ts.URL + "/api/submissions/" + created.ID)
	if err != nil {
		t.Fatalf("get pending submission: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("pending submission expected 404 for anonymous, got %d", resp.StatusCode)
	}

	// The owner sees it in their own list.
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/submissions/mine", authorToken, "")
	var mine struct {
		Items []domain.Submission `json:"items"`
		Count int                 `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&mine); err != nil {
		t.Fatalf("decode mine: %v", err)
	}
	resp.Body.Close()
	if mine.Count != 1 || mine.Items[0].ID != created.ID {
		t.Fatalf("mine = %+v, want the created submission", mine)
	}

	// Approve via the moderation endpoint.
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/admin/submissions/"+created.ID+"/review", adminToken,
		`{"status":"approved","notes":"ready for the catalog"}`)
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("review expected 200, got %d: %s", resp.StatusCode, raw)
	}
	var reviewed domain.Submission
	if err := json.NewDecoder(resp.Body).Decode(&reviewed); err != nil {
		t.Fatalf("decode reviewed: %v", err)
	}
	resp.Body.Close()
	if reviewed.Status != domain.StatusApproved || reviewed.ReviewNotes != "ready for the catalog" {
		t.Fatalf("review not applied: %+v", reviewed)
	}
	if reviewed.ReviewedAt == nil || reviewed.ReviewedBy == "" {
		t.Fatalf("review metadata missing: %+v", reviewed)
	}

	// Approved work is public: detail and catalog.
	resp, err = http.Get(ts.URL + "/api/submissions/" + created.ID)
	if err != nil {
		t.Fatalf("get approved submission: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approved submission expected 200 for anonymous, got %d", resp.StatusCode)
	}
	resp, err = http.Get(ts.URL + "/api/catalog")
	if err != nil {
		t.Fatalf("get catalog: %v", err)
	}
	var catalog struct {
		Items []domain.Submission `json:"items"`
		Count int                 `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&catalog); err != nil {
		t.Fatalf("decode catalog: %v", err)
	}
	resp.Body.Close()
	if catalog.Count != 1 || catalog.Items[0].Status != domain.StatusApproved {
		t.Fatalf("catalog = %+v, want one approved item", catalog)
	}
}

func TestAdminRoutesRequireElevation(t *testing.T) {
	ts := newTestServer(t, nil)
	authorToken := signUp(t, ts.URL, "author@example.com")

	resp, err := http.Get(ts.URL + "/api/admin/submissions")
	if err != nil {
		t.Fatalf("anonymous admin request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous expected 401, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/admin/submissions", authorToken, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-admin expected 403, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/admin/submissions/any/review", authorToken, `{"status":"approved"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-admin review expected 403, got %d", resp.StatusCode)
	}
}

func TestModerationQueueFilter(t *testing.T) {
	ts := newTestServer(t, nil)
	authorToken := signUp(t, ts.URL, "author@example.com")
	adminToken := signUp(t, ts.URL, "editor@qirtaas.com")

	first := submitManuscript(t, ts.URL, authorToken, "First")
	submitManuscript(t, ts.URL, authorToken, "Second")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/admin/submissions/"+first.ID+"/review", adminToken,
		`{"status":"rejected","notes":"not now"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("review expected 200, got %d", resp.StatusCode)
	}

	cases := []struct {
		filter string
		want   int
	}{
		{"", 2},
		{"all", 2},
		{"pending", 1},
		{"rejected", 1},
		{"approved", 0},
	}
	for _, tc := range cases {
		resp := doJSON(t, http.MethodGet, ts.URL+"/api/admin/submissions?status="+tc.filter, adminToken, "")
		var out struct {
			Count int `json:"count"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode queue (%q): %v", tc.filter, err)
		}
		resp.Body.Close()
		if out.Count != tc.want {
			t.Fatalf("queue filter %q count = %d, want %d", tc.filter, out.Count, tc.want)
		}
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/admin/submissions?status=bogus", adminToken, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bogus filter expected 400, got %d", resp.StatusCode)
	}
}

func TestSessionCookieFlow(t *testing.T) {
	ts := newTestServer(t, nil)
	token := signUp(t, ts.URL, "author@example.com")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/auth/session", token, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("session exchange expected 200, got %d", resp.StatusCode)
	}
	var session *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == sessionCookieName {
			session = c
		}
	}
	if session == nil || session.Value == "" {
		t.Fatalf("session cookie not set")
	}
	if !session.HttpOnly {
		t.Fatalf("session cookie must be httpOnly")
	}
	if session.Secure {
		t.Fatalf("session cookie must not be Secure outside production")
	}
	wantMaxAge := int((5 * 24 * time.Hour).Seconds())
	if session.MaxAge != wantMaxAge {
		t.Fatalf("session cookie MaxAge = %d, want %d", session.MaxAge, wantMaxAge)
	}

	// The cookie alone authenticates.
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/me", nil)
	req.AddCookie(session)
	meResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("me with cookie: %v", err)
	}
	meResp.Body.Close()
	if meResp.StatusCode != http.StatusOK {
		t.Fatalf("me with cookie expected 200, got %d", meResp.StatusCode)
	}

	// Logout destroys the server session; the old cookie stops working.
	req, _ = http.NewRequest(http.MethodPost, ts.URL+"/api/auth/logout", nil)
	req.AddCookie(session)
	logoutResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	logoutResp.Body.Close()
	if logoutResp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout expected 204, got %d", logoutResp.StatusCode)
	}
	req, _ = http.NewRequest(http.MethodGet, ts.URL+"/api/me", nil)
	req.AddCookie(session)
	staleResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("me with stale cookie: %v", err)
	}
	staleResp.Body.Close()
	if staleResp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("stale cookie expected 401, got %d", staleResp.StatusCode)
	}
}

func TestSecureCookieInProduction(t *testing.T) {
	ts := newTestServer(t, func(cfg *Config) {
		cfg.Production = true
	})
	token := signUp(t, ts.URL, "author@example.com")
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/auth/session", token, "")
	defer resp.Body.Close()
	var found bool
	for _, c := range resp.Cookies() {
		if c.Name == sessionCookieName {
			found = true
			if !c.Secure {
				t.Fatalf("production session cookie must be Secure")
			}
		}
	}
	if !found {
		t.Fatalf("session cookie not set")
	}
}

func TestLoginRateLimit(t *testing.T) {
	ts := newTestServer(t, func(cfg *Config) {
		cfg.LoginRateLimitPerMinute = 2
	})
	signUp(t, ts.URL, "author@example.com")

	body := `{"email":"author@example.com","password":"wrong password"}`
	var last int
	for i := 0; i < 3; i++ {
		resp := doJSON(t, http.MethodPost, ts.URL+"/api/auth/login", "", body)
		last = resp.StatusCode
		resp.Body.Close()
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("third login attempt expected 429, got %d", last)
	}
}

func TestInvalidSubmissionRejectedOverHTTP(t *testing.T) {
	ts := newTestServer(t, nil)
	token := signUp(t, ts.URL, "author@example.com")

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	_ = form.WriteField("title", "No Manuscript")
	_ = form.WriteField("category", "book")
	_ = form.WriteField("description", "Missing the file field.")
	_ = form.Close()

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/submissions", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("create submission: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing manuscript expected 400, got %d", resp.StatusCode)
	}

	// Anonymous submission attempts are refused outright.
	resp, err = http.Post(ts.URL+"/api/submissions", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("anonymous submission: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous submission expected 401, got %d", resp.StatusCode)
	}
}

func TestDuplicateSignupConflicts(t *testing.T) {
	ts := newTestServer(t, nil)
	signUp(t, ts.URL, "author@example.com")
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/auth/signup", "",
		`{"email":"author@example.com","password":"a long password"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate signup expected 409, got %d", resp.StatusCode)
	}
}
