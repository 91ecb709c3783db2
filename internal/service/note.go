package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"notehub/internal/model"
	"notehub/internal/repository"
	"notehub/internal/validation"
)

const (
	DefaultPerPage = 12
	MaxPerPage     = 100
)

var (
	ErrIDRequired = errors.New("id is required")
	ErrNotFound   = errors.New("note not found")
	ErrValidation = errors.New("validation failed")
)

// ValidationError carries the per-field messages of a rejected create request.
type ValidationError struct {
	Fields validation.FieldErrors
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for f, msg := range e.Fields {
		parts = append(parts, f+": "+msg)
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NoteService defines the note use cases exposed by the API.
type NoteService interface {
	// List returns one page of notes filtered by search text and tag.
	List(ctx context.Context, p model.ListParams) (*model.NotesPage, error)

	// Get returns a single note by its ID.
	Get(ctx context.Context, id string) (*model.Note, error)

	// Create validates and stores a new note.
	Create(ctx context.Context, p model.CreateNoteParams) (*model.Note, error)

	// Delete removes a note and returns what was removed.
	Delete(ctx context.Context, id string) (*model.Note, error)
}

type noteService struct {
	repo repository.NoteRepository
	now  func() time.Time
}

// NewNoteService constructs a new NoteService.
func NewNoteService(repo repository.NoteRepository) NoteService {
	return &noteService{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// NormalizePaging applies the default page and page size and clamps both.
func NormalizePaging(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return page, perPage
}

// TotalPages never reports fewer than one page so an empty result still paginates.
func TotalPages(total, perPage int) int {
	if total <= 0 || perPage <= 0 {
		return 1
	}
	return (total + perPage - 1) / perPage
}

func (s *noteService) List(ctx context.Context, p model.ListParams) (*model.NotesPage, error) {
	if p.Tag != "" {
		if _, err := model.ParseTag(p.Tag); err != nil {
			return nil, err
		}
	}
	page, perPage := NormalizePaging(p.Page, p.PerPage)

	res, err := s.repo.List(ctx, repository.NoteQuery{
		Search: strings.TrimSpace(p.Search),
		Tag:    p.Tag,
		PageQuery: repository.PageQuery{
			Limit:  perPage,
			Offset: (page - 1) * perPage,
		},
	})
	if err != nil {
		return nil, err
	}
	return &model.NotesPage{Notes: res.Items, TotalPages: TotalPages(res.Total, perPage)}, nil
}

func (s *noteService) Get(ctx context.Context, id string) (*model.Note, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	note, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return note, nil
}

func (s *noteService) Create(ctx context.Context, p model.CreateNoteParams) (*model.Note, error) {
	p.Title = strings.TrimSpace(p.Title)
	if fields := validation.ValidateCreate(p); len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	now := s.now()
	note := &model.Note{
		ID:        uuid.NewString(),
		Title:     p.Title,
		Content:   p.Content,
		Tag:       model.NoteTag(p.Tag),
		CreatedAt: now,
		UpdatedAt: now,
	}
	stored, err := s.repo.Create(ctx, note)
	if err != nil {
		return nil, fmt.Errorf("db save failed: %w", err)
	}
	return stored, nil
}

func (s *noteService) Delete(ctx context.Context, id string) (*model.Note, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	note, err := s.repo.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return note, nil
}
