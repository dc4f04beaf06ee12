// Package backup snapshots the SQLite database, encrypts the snapshot,
// and uploads it to S3-compatible storage on a daily schedule.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// Config holds backup manager configuration.
type Config struct {
	S3         S3Config
	DBPath     string
	Passphrase string

	// Hour (UTC) at which the daily backup runs.
	Hour int
}

type Status struct {
	LastBackup *time.Time
	LastError  string
	InProgress bool
}

// Manager runs encrypted database backups. Disabled (a no-op) unless
// bucket, credentials, and passphrase are all configured.
type Manager struct {
	mu     sync.RWMutex
	cfg    Config
	status Status

	db     *sql.DB
	client s3Client
	logger *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(cfg Config, db *sql.DB, logger *slog.Logger) *Manager {
	m := &Manager{
		cfg:    cfg,
		db:     db,
		logger: logger,
	}
	if m.Enabled() {
		m.client = newS3Client(cfg.S3)
	}
	return m
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Enabled reports whether backups are fully configured.
func (m *Manager) Enabled() bool {
	return m.cfg.S3.Bucket != "" &&
		m.cfg.S3.AccessKey != "" &&
		m.cfg.S3.SecretKey != "" &&
		m.cfg.Passphrase != ""
}

// Start begins the daily backup loop. Returns immediately when backups
// are not configured.
func (m *Manager) Start(ctx context.Context) {
	if !m.Enabled() {
		m.logger.Info("backups disabled, missing configuration")
		return
	}

	m.mu.Lock()
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.mu.Unlock()

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		var lastRun time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				now = now.UTC()
				if now.Hour() != m.cfg.Hour {
					continue
				}
				if now.Sub(lastRun) < time.Hour {
					continue
				}
				lastRun = now
				if _, err := m.RunNow(ctx); err != nil {
					m.logger.Error("scheduled backup failed", "error", err)
				}
			}
		}
	}()
}

// Stop halts the backup loop, waiting for any in-flight run to finish.
func (m *Manager) Stop() {
	m.mu.RLock()
	cancel := m.cancel
	done := m.done
	m.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// RunNow snapshots, encrypts, and uploads the database, returning the S3
// key of the uploaded object.
func (m *Manager) RunNow(ctx context.Context) (string, error) {
	if !m.Enabled() {
		return "", fmt.Errorf("backup not configured")
	}

	m.mu.Lock()
	if m.status.InProgress {
		m.mu.Unlock()
		return "", fmt.Errorf("backup already in progress")
	}
	m.status.InProgress = true
	m.mu.Unlock()

	key, err := m.run(ctx)

	m.mu.Lock()
	m.status.InProgress = false
	if err != nil {
		m.status.LastError = err.Error()
	} else {
		now := time.Now().UTC()
		m.status.LastBackup = &now
		m.status.LastError = ""
	}
	m.mu.Unlock()

	return key, err
}

func (m *Manager) run(ctx context.Context) (string, error) {
	timestamp := time.Now().UTC().Format("2006-01-02T150405Z")
	key := fmt.Sprintf("backups/realitycheck-%s.db.enc", timestamp)

	tmpDir := os.TempDir()
	snapshot := filepath.Join(tmpDir, fmt.Sprintf("realitycheck-%s.db", timestamp))
	encFile := snapshot + ".enc"
	defer os.Remove(snapshot)
	defer os.Remove(encFile)

	// VACUUM INTO produces a consistent single-file snapshot even while
	// the WAL is live.
	if _, err := m.db.ExecContext(ctx, "VACUUM INTO ?", snapshot); err != nil {
		return "", fmt.Errorf("snapshot database: %w", err)
	}

	if err := EncryptFile(snapshot, encFile, m.cfg.Passphrase); err != nil {
		return "", fmt.Errorf("encrypt snapshot: %w", err)
	}

	f, err := os.Open(encFile)
	if err != nil {
		return "", fmt.Errorf("open encrypted snapshot: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat encrypted snapshot: %w", err)
	}

	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.cfg.S3.Bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(stat.Size()),
	})
	if err != nil {
		return "", fmt.Errorf("upload to s3: %w", err)
	}

	m.logger.Info("backup uploaded", "key", key, "bytes", stat.Size())
	return key, nil
}

// Restore downloads an encrypted backup and decrypts it to dstPath. The
// caller is responsible for swapping the file in and restarting.
func (m *Manager) Restore(ctx context.Context, key, dstPath string) error {
	if !m.Enabled() {
		return fmt.Errorf("backup not configured")
	}

	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.cfg.S3.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("download from s3: %w", err)
	}
	defer out.Body.Close()

	encFile := dstPath + ".enc"
	defer os.Remove(encFile)

	f, err := os.OpenFile(encFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := f.ReadFrom(out.Body); err != nil {
		f.Close()
		return fmt.Errorf("write download: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := DecryptFile(encFile, dstPath, m.cfg.Passphrase); err != nil {
		return fmt.Errorf("decrypt backup: %w", err)
	}

	m.logger.Info("backup restored", "key", key, "path", dstPath)
	return nil
}
