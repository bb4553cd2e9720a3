package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"collabnote/internal/document/model"
	"collabnote/internal/document/repository"

	"github.com/google/uuid"
)

// SessionCloser ends the live collaboration session of a document.
type SessionCloser interface {
	CloseDocument(docID string) int
}

type DocumentService struct {
	Repo     *repository.DocumentRepository
	Sessions SessionCloser
}

func NewDocumentService(repo *repository.DocumentRepository, sessions SessionCloser) *DocumentService {
	return &DocumentService{Repo: repo, Sessions: sessions}
}

func (s *DocumentService) CreateDocument(ctx context.Context, userID string, req model.CreateDocRequest) (*model.Document, error) {
	if err := validContent(req.Content); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = model.DefaultTitle
	}
	content := req.Content
	if len(content) == 0 {
		content = json.RawMessage(`""`)
	}

	doc := &model.Document{
		ID:       uuid.NewString(),
		Title:    title,
		Content:  content,
		Category: strings.TrimSpace(req.Category),
		OwnerID:  userID,
	}
	if err := s.Repo.Create(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *DocumentService) GetDocument(ctx context.Context, docID string) (*model.Document, error) {
	return s.Repo.Get(ctx, docID)
}

func (s *DocumentService) ListDocuments(ctx context.Context, userID string) ([]model.Document, error) {
	return s.Repo.ListByOwner(ctx, userID)
}

func (s *DocumentService) UpdateDocument(ctx context.Context, docID, userID string, req model.UpdateDocRequest) (*model.Document, error) {
	if err := validContent(req.Content); err != nil {
		return nil, err
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		return nil, fmt.Errorf("%w: title cannot be empty", model.ErrInvalidInput)
	}
	if err := s.requireOwner(ctx, docID, userID); err != nil {
		return nil, err
	}
	return s.Repo.Update(ctx, docID, userID, req)
}

// DeleteDocument removes an owned document and disconnects everyone who is
// still editing it.
func (s *DocumentService) DeleteDocument(ctx context.Context, docID, userID string) error {
	if err := s.requireOwner(ctx, docID, userID); err != nil {
		return err
	}
	if err := s.Repo.Delete(ctx, docID); err != nil {
		return err
	}
	if s.Sessions != nil {
		s.Sessions.CloseDocument(docID)
	}
	return nil
}

func (s *DocumentService) SaveCursor(ctx context.Context, docID, userID string, req model.CursorRequest) (*model.CursorPosition, error) {
	if _, err := s.Repo.Get(ctx, docID); err != nil {
		return nil, err
	}
	cursor := &model.CursorPosition{DocumentID: docID, UserID: userID, X: req.X, Y: req.Y}
	if err := s.Repo.UpsertCursor(ctx, cursor); err != nil {
		return nil, err
	}
	return cursor, nil
}

func (s *DocumentService) GetCursors(ctx context.Context, docID string) ([]model.CursorPosition, error) {
	return s.Repo.ListCursors(ctx, docID)
}

func (s *DocumentService) requireOwner(ctx context.Context, docID, userID string) error {
	doc, err := s.Repo.Get(ctx, docID)
	if err != nil {
		return err
	}
	if doc.OwnerID != userID {
		return model.ErrForbidden
	}
	return nil
}

func validContent(raw json.RawMessage) error {
	if len(raw) > 0 && !json.Valid(raw) {
		return fmt.Errorf("%w: content must be valid JSON", model.ErrInvalidInput)
	}
	return nil
}
