package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"qirtaas/pkg/domain"
)

const migrateLockID int64 = 91749174

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &SubmissionModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "display_name", "password_hash", "updated_at"}),
	}).Create(&model).Error
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// CreateSubmission writes a new submission, assigning its id.
func (s *GormStore) CreateSubmission(sub domain.Submission) (domain.Submission, error) {
	if strings.TrimSpace(sub.ID) == "" {
		sub.ID = uuid.NewString()
	}
	model := submissionToModel(sub)
	if err := s.db.Create(&model).Error; err != nil {
		return domain.Submission{}, err
	}
	return submissionFromModel(model), nil
}

// GetSubmission retrieves a submission by id.
func (s *GormStore) GetSubmission(id string) (domain.Submission, bool, error) {
	var model SubmissionModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Submission{}, false, nil
		}
		return domain.Submission{}, false, err
	}
	return submissionFromModel(model), true, nil
}

// ListSubmissionsByOwner returns every submission owned by ownerID,
// regardless of status.
func (s *GormStore) ListSubmissionsByOwner(ownerID string) ([]domain.Submission, error) {
	return s.listSubmissions("submitted_at DESC", "user_id = ?", ownerID)
}

// ListSubmissionsByStatus returns submissions newest first, optionally
// filtered by status.
func (s *GormStore) ListSubmissionsByStatus(filter string) ([]domain.Submission, error) {
	if filter == StatusAll || strings.TrimSpace(filter) == "" {
		return s.listSubmissions("submitted_at DESC")
	}
	return s.listSubmissions("submitted_at DESC", "status = ?", filter)
}

// ListApproved returns the public catalog. The status index keeps this
// cheap under read-heavy traffic.
func (s *GormStore) ListApproved() ([]domain.Submission, error) {
	return s.listSubmissions("submitted_at DESC", "status = ?", string(domain.StatusApproved))
}

func (s *GormStore) listSubmissions(order string, conds ...any) ([]domain.Submission, error) {
	var models []SubmissionModel
	tx := s.db.Order(order)
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Submission, 0, len(models))
	for _, m := range models {
		res = append(res, submissionFromModel(m))
	}
	return res, nil
}

// ApplyReview writes status and review metadata in a single update.
// There is no version check; a concurrent review wins by arriving last.
func (s *GormStore) ApplyReview(id string, status domain.Status, notes, reviewerID string, at time.Time) (domain.Submission, bool, error) {
	tx := s.db.Model(&SubmissionModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":       string(status),
			"review_notes": notes,
			"reviewed_at":  at.UTC(),
			"reviewed_by":  reviewerID,
		})
	if tx.Error != nil {
		return domain.Submission{}, false, tx.Error
	}
	if tx.RowsAffected == 0 {
		return domain.Submission{}, false, nil
	}
	return s.GetSubmission(id)
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		DisplayName:  u.DisplayName,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		DisplayName:  m.DisplayName,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func submissionToModel(sub domain.Submission) SubmissionModel {
	return SubmissionModel{
		ID:          sub.ID,
		Title:       sub.Title,
		Category:    string(sub.Category),
		Description: sub.Description,
		FileURL:     sub.FileURL,
		FileID:      sub.FileID,
		CoverURL:    optionalString(sub.CoverURL),
		CoverID:     optionalString(sub.CoverID),
		SubmittedAt: sub.SubmittedAt,
		Status:      string(sub.Status),
		UserID:      sub.UserID,
		UserEmail:   sub.UserEmail,
		ReviewNotes: optionalString(sub.ReviewNotes),
		ReviewedAt:  sub.ReviewedAt,
		ReviewedBy:  optionalString(sub.ReviewedBy),
	}
}

func submissionFromModel(m SubmissionModel) domain.Submission {
	return domain.Submission{
		ID:          m.ID,
		Title:       m.Title,
		Category:    domain.Category(m.Category),
		Description: m.Description,
		FileURL:     m.FileURL,
		FileID:      m.FileID,
		CoverURL:    stringValue(m.CoverURL),
		CoverID:     stringValue(m.CoverID),
		SubmittedAt: m.SubmittedAt,
		Status:      domain.Status(m.Status),
		UserID:      m.UserID,
		UserEmail:   m.UserEmail,
		ReviewNotes: stringValue(m.ReviewNotes),
		ReviewedAt:  m.ReviewedAt,
		ReviewedBy:  stringValue(m.ReviewedBy),
	}
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func stringValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
