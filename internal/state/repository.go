// Package state persists the agent's small amount of durable client state:
// identity keys and the pointer to the most recently uploaded video.
package state

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"time"
)

const (
	KeyDeviceID     = "device_id"
	KeyAuthToken    = "auth_token"
	KeyLastVideoURL = "last_video_url"
	KeyLastJobID    = "last_job_id"
)

// LastUpload is the review pointer written after every successful upload.
type LastUpload struct {
	VideoURL string `json:"video_url"`
	JobID    string `json:"job_id"`
}

// Empty reports whether nothing has been uploaded yet.
func (l LastUpload) Empty() bool {
	return l.VideoURL == "" && l.JobID == ""
}

type Repository interface {
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error

	LastUpload(ctx context.Context) (LastUpload, error)
	SaveLastUpload(ctx context.Context, last LastUpload) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC().Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) LastUpload(ctx context.Context) (LastUpload, error) {
	url, err := r.GetConfig(ctx, KeyLastVideoURL)
	if err != nil {
		return LastUpload{}, err
	}
	jobID, err := r.GetConfig(ctx, KeyLastJobID)
	if err != nil {
		return LastUpload{}, err
	}
	return LastUpload{VideoURL: url, JobID: jobID}, nil
}

// SaveLastUpload writes both keys in one transaction so a reader never sees
// a video URL paired with another upload's job id.
func (r *SQLiteRepository) SaveLastUpload(ctx context.Context, last LastUpload) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	for key, value := range map[string]string{
		KeyLastVideoURL: last.VideoURL,
		KeyLastJobID:    last.JobID,
	} {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO config (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, key, value, now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// EnsureSecret returns the stored value for key, generating and storing
// a random hex value of n bytes when absent.
func EnsureSecret(ctx context.Context, repo Repository, key string, n int) (string, error) {
	existing, err := repo.GetConfig(ctx, key)
	if err == nil && existing != "" {
		return existing, nil
	}

	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	value := hex.EncodeToString(b)

	if err := repo.SetConfig(ctx, key, value); err != nil {
		return "", err
	}

	return value, nil
}
