package store

import "time"

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	DisplayName  string
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

// SubmissionModel keeps optional fields as pointers so absent review
// metadata and absent cover references stay absent, not zero-valued.
type SubmissionModel struct {
	ID          string `gorm:"primaryKey"`
	Title       string `gorm:"not null"`
	Category    string `gorm:"not null"`
	Description string `gorm:"type:text"`
	FileURL     string `gorm:"not null"`
	FileID      string `gorm:"not null"`
	CoverURL    *string
	CoverID     *string
	SubmittedAt time.Time `gorm:"not null;index"`
	Status      string    `gorm:"not null;index"`
	UserID      string    `gorm:"not null;index"`
	UserEmail   string    `gorm:"not null"`
	ReviewNotes *string
	ReviewedAt  *time.Time
	ReviewedBy  *string
}
