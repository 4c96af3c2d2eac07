// Package leads stores accepted form submissions and notifies the agency
// about them.
package leads

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"time"

	// Registers the sqlite3 database/sql driver.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"

	"github.com/conneroisu/brokerage/internal/errors"
)

// Lead is one accepted submission.
type Lead struct {
	ID        string            `json:"id"`
	FormID    string            `json:"form_id"`
	Fields    map[string]string `json:"fields"`
	ClientIP  string            `json:"client_ip"`
	UserAgent string            `json:"user_agent"`
	CreatedAt time.Time         `json:"created_at"`
}

// New returns a lead with a fresh id and the current time.
func New(formID string, fields map[string]string, clientIP, userAgent string) *Lead {
	return &Lead{
		ID:        xid.New().String(),
		FormID:    formID,
		Fields:    fields,
		ClientIP:  clientIP,
		UserAgent: userAgent,
		CreatedAt: time.Now().UTC(),
	}
}

// Store persists leads.
type Store interface {
	Save(ctx context.Context, lead *Lead) error
	Get(ctx context.Context, id string) (*Lead, error)
	List(ctx context.Context, limit int) ([]*Lead, error)
	Close() error
}

// SQLiteStore keeps leads in a sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens the lead database at path, creating it if needed.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.NewStorageError(errors.ErrCodeStorageWrite, "creating lead database directory", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.NewStorageError(errors.ErrCodeStorageRead, "opening lead database", err).
			WithContext("path", path)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS leads (
			id         TEXT PRIMARY KEY,
			form_id    TEXT NOT NULL,
			fields     TEXT NOT NULL,
			client_ip  TEXT NOT NULL,
			user_agent TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS leads_created_at ON leads (created_at);`)
	if err != nil {
		db.Close()
		return nil, errors.NewStorageError(errors.ErrCodeStorageWrite, "creating leads table", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, lead *Lead) error {
	fields, err := json.Marshal(lead.Fields)
	if err != nil {
		return errors.NewInternalError(errors.ErrCodeInternalError, "encoding lead fields", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO leads (id, form_id, fields, client_ip, user_agent, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		lead.ID, lead.FormID, string(fields), lead.ClientIP, lead.UserAgent, lead.CreatedAt)
	if err != nil {
		return errors.NewStorageError(errors.ErrCodeStorageWrite, "saving lead", err).
			WithContext("lead_id", lead.ID)
	}

	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Lead, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, form_id, fields, client_ip, user_agent, created_at FROM leads WHERE id = ?`, id)

	lead, err := scanLead(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError(errors.ErrCodeLeadNotFound, "lead not found: "+id)
	}
	if err != nil {
		return nil, errors.NewStorageError(errors.ErrCodeStorageRead, "reading lead", err)
	}

	return lead, nil
}

// List returns the newest leads first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]*Lead, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, form_id, fields, client_ip, user_agent, created_at FROM leads ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.NewStorageError(errors.ErrCodeStorageRead, "listing leads", err)
	}
	defer rows.Close()

	var out []*Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, errors.NewStorageError(errors.ErrCodeStorageRead, "scanning lead", err)
		}
		out = append(out, lead)
	}

	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLead(row scanner) (*Lead, error) {
	var (
		lead   Lead
		fields string
	)
	if err := row.Scan(&lead.ID, &lead.FormID, &fields, &lead.ClientIP, &lead.UserAgent, &lead.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(fields), &lead.Fields); err != nil {
		return nil, err
	}

	return &lead, nil
}
