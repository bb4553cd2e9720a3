package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"collabnote/internal/document/model"
	"collabnote/pkg/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	content    TEXT NOT NULL DEFAULT '',
	category   TEXT NOT NULL DEFAULT '',
	version    BIGINT NOT NULL DEFAULT 1,
	owner_id   TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS cursor_positions (
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	user_id     TEXT NOT NULL,
	x           DOUBLE PRECISION NOT NULL,
	y           DOUBLE PRECISION NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (document_id, user_id)
);`

const documentColumns = `id, title, content, category, version, owner_id, created_at, updated_at`

type DocumentRepository struct {
	DB *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{DB: db}
}

// EnsureSchema creates the tables if they do not exist yet.
func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Create(ctx context.Context, doc *model.Document) error {
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO documents (id, title, content, category, version, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 1, $5, NOW(), NOW())
		RETURNING version, created_at, updated_at`,
		doc.ID, doc.Title, string(doc.Content), doc.Category, doc.OwnerID,
	).Scan(&doc.Version, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to create document: %v", err)
		return err
	}
	return nil
}

func (r *DocumentRepository) Get(ctx context.Context, docID string) (*model.Document, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, docID)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to get doc %s: %v", docID, err)
		return nil, err
	}
	return doc, nil
}

func (r *DocumentRepository) ListByOwner(ctx context.Context, ownerID string) ([]model.Document, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE owner_id = $1 ORDER BY updated_at DESC`, ownerID)
	if err != nil {
		logger.Sugar.Errorf("Failed to get documents for user %s: %v", ownerID, err)
		return nil, err
	}
	defer rows.Close()

	docs := []model.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// Update changes the non-nil fields of an owned document and bumps its
// version. It returns model.ErrNotFound when no owned document matches.
func (r *DocumentRepository) Update(ctx context.Context, docID, ownerID string, req model.UpdateDocRequest) (*model.Document, error) {
	row := r.DB.QueryRowContext(ctx,
		`UPDATE documents
		SET title = COALESCE($3, title), content = COALESCE($4, content), category = COALESCE($5, category),
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND owner_id = $2
		RETURNING `+documentColumns,
		docID, ownerID, nullString(req.Title), nullJSON(req.Content), nullString(req.Category))
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to update doc %s: %v", docID, err)
		return nil, err
	}
	return doc, nil
}

func (r *DocumentRepository) Delete(ctx context.Context, docID string) error {
	_, err := r.DB.ExecContext(ctx, "DELETE FROM documents WHERE id = $1", docID)
	if err != nil {
		logger.Sugar.Errorf("Failed to delete doc %s: %v", docID, err)
	}
	return err
}

func (r *DocumentRepository) UpsertCursor(ctx context.Context, c *model.CursorPosition) error {
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO cursor_positions (document_id, user_id, x, y, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (document_id, user_id) DO UPDATE SET x = EXCLUDED.x, y = EXCLUDED.y, updated_at = NOW()
		RETURNING updated_at`,
		c.DocumentID, c.UserID, c.X, c.Y,
	).Scan(&c.UpdatedAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to save cursor of %s in doc %s: %v", c.UserID, c.DocumentID, err)
	}
	return err
}

func (r *DocumentRepository) ListCursors(ctx context.Context, docID string) ([]model.CursorPosition, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT document_id, user_id, x, y, updated_at FROM cursor_positions WHERE document_id = $1 ORDER BY updated_at DESC`, docID)
	if err != nil {
		logger.Sugar.Errorf("Failed to get cursors for doc %s: %v", docID, err)
		return nil, err
	}
	defer rows.Close()

	cursors := []model.CursorPosition{}
	for rows.Next() {
		var c model.CursorPosition
		if err := rows.Scan(&c.DocumentID, &c.UserID, &c.X, &c.Y, &c.UpdatedAt); err != nil {
			return nil, err
		}
		cursors = append(cursors, c)
	}
	return cursors, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (*model.Document, error) {
	var doc model.Document
	var content string
	if err := s.Scan(&doc.ID, &doc.Title, &content, &doc.Category, &doc.Version, &doc.OwnerID, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return nil, err
	}
	if content != "" {
		doc.Content = json.RawMessage(content)
	}
	return &doc, nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
