package model

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("document not found")
	ErrForbidden    = errors.New("only the owner can change this document")
	ErrInvalidInput = errors.New("invalid input")
)

const DefaultTitle = "Untitled Document"

type Document struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Content   json.RawMessage `json:"content"`
	Category  string          `json:"category"`
	Version   int64           `json:"version"`
	OwnerID   string          `json:"owner_id"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type CreateDocRequest struct {
	Title    string          `json:"title"`
	Content  json.RawMessage `json:"content"`
	Category string          `json:"category"`
}

type CreateDocResponse struct {
	DocID string `json:"document_id"`
}

// UpdateDocRequest leaves fields that are nil untouched.
type UpdateDocRequest struct {
	Title    *string         `json:"title"`
	Content  json.RawMessage `json:"content"`
	Category *string         `json:"category"`
}

// CursorPosition is the last known cursor of a user in a document, kept so
// a cold load can place collaborators before any live cursor event arrives.
type CursorPosition struct {
	DocumentID string    `json:"document_id"`
	UserID     string    `json:"user_id"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type CursorRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}
