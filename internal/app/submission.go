package app

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"
	"qirtaas/pkg/domain"
	"qirtaas/pkg/journal"
)

const (
	maxManuscriptBytes = 10 << 20
	maxCoverBytes      = 2 << 20
)

// FileUpload carries one uploaded file through validation and storage.
type FileUpload struct {
	Name        string
	ContentType string
	Data        []byte
}

// SubmissionRequest is the author's input for a new submission. The
// manuscript is required; the cover image is optional.
type SubmissionRequest struct {
	Title       string
	Category    string
	Description string
	Manuscript  *FileUpload
	Cover       *FileUpload
}

// Submit validates the request, uploads manuscript and cover to blob
// storage, and persists a pending submission owned by p. Validation and
// upload failures abort before any store write; an upload that succeeded
// before a later failure is left as an orphan (accepted, invisible unless
// linked). The owner snapshot (userId, userEmail) is immutable from here on.
func (a *App) Submit(ctx context.Context, p domain.Principal, req SubmissionRequest) (domain.Submission, error) {
	if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.Email) == "" {
		return domain.Submission{}, ErrUnauthenticated
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return domain.Submission{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	category, ok := domain.ParseCategory(req.Category)
	if !ok {
		return domain.Submission{}, fmt.Errorf("%w: category must be one of book, story, poetry, article", ErrValidation)
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return domain.Submission{}, fmt.Errorf("%w: description is required", ErrValidation)
	}
	if err := a.validateManuscript(req.Manuscript); err != nil {
		return domain.Submission{}, err
	}
	if err := a.validateCover(req.Cover); err != nil {
		return domain.Submission{}, err
	}

	fileKey := objectKey("manuscripts", req.Manuscript.Name)
	var coverKey string
	if req.Cover != nil {
		coverKey = objectKey("covers", req.Cover.Name)
	}

	// Manuscript and cover are independent objects; push them in parallel.
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return a.putObject(groupCtx, fileKey, req.Manuscript)
	})
	if req.Cover != nil {
		cover := req.Cover
		group.Go(func() error {
			return a.putObject(groupCtx, coverKey, cover)
		})
	}
	if err := group.Wait(); err != nil {
		return domain.Submission{}, fmt.Errorf("%w: %s", ErrUpload, err.Error())
	}

	sub := domain.Submission{
		Title:       title,
		Category:    category,
		Description: description,
		FileURL:     a.objects.PublicURL(fileKey),
		FileID:      fileKey,
		SubmittedAt: time.Now().UTC(),
		Status:      domain.StatusPending,
		UserID:      p.ID,
		UserEmail:   p.Email,
	}
	if coverKey != "" {
		sub.CoverURL = a.objects.PublicURL(coverKey)
		sub.CoverID = coverKey
	}
	created, err := a.store.CreateSubmission(sub)
	if err != nil {
		return domain.Submission{}, fmt.Errorf("save submission: %w", err)
	}
	a.record(ctx, journal.Event{
		Kind:         journal.KindSubmissionCreated,
		SubmissionID: created.ID,
		ActorID:      p.ID,
		Status:       string(created.Status),
	})
	return created, nil
}

func (a *App) validateManuscript(file *FileUpload) error {
	if file == nil || len(file.Data) == 0 {
		return fmt.Errorf("%w: manuscript file is required", ErrValidation)
	}
	if int64(len(file.Data)) > a.maxManuscriptBytes {
		return fmt.Errorf("%w: manuscript exceeds %d MB limit", ErrValidation, a.maxManuscriptBytes>>20)
	}
	ext := strings.ToLower(filepath.Ext(file.Name))
	switch ext {
	case ".doc", ".docx":
	case ".pdf":
		// Reject files that merely wear the extension.
		if _, err := pdf.NewReader(bytes.NewReader(file.Data), int64(len(file.Data))); err != nil {
			return fmt.Errorf("%w: file is not a readable PDF", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: manuscript must be a DOC, DOCX, or PDF file", ErrValidation)
	}
	return nil
}

func (a *App) validateCover(file *FileUpload) error {
	if file == nil {
		return nil
	}
	if len(file.Data) == 0 {
		return fmt.Errorf("%w: cover image is empty", ErrValidation)
	}
	if int64(len(file.Data)) > a.maxCoverBytes {
		return fmt.Errorf("%w: cover image exceeds %d MB limit", ErrValidation, a.maxCoverBytes>>20)
	}
	switch sniffContentType(file) {
	case "image/jpeg", "image/png":
		return nil
	}
	return fmt.Errorf("%w: cover image must be JPEG or PNG", ErrValidation)
}

func (a *App) putObject(ctx context.Context, key string, file *FileUpload) error {
	return a.objects.Put(ctx, key, bytes.NewReader(file.Data), int64(len(file.Data)), sniffContentType(file))
}

func sniffContentType(file *FileUpload) string {
	contentType := http.DetectContentType(file.Data)
	if contentType == "application/octet-stream" && file.ContentType != "" {
		return file.ContentType
	}
	return contentType
}

func objectKey(prefix, filename string) string {
	return prefix + "/" + uuid.NewString() + strings.ToLower(filepath.Ext(filename))
}
