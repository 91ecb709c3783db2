package repository

import (
	"context"

	"notehub/internal/model"
)

// NoteRepository defines data access for notes using SQL queries only.
// No business logic here, strictly persistence operations.
type NoteRepository interface {
	// Create inserts a new note and returns the stored row.
	Create(ctx context.Context, note *model.Note) (*model.Note, error)

	// FindByID returns a note by its ID, or sql.ErrNoRows.
	FindByID(ctx context.Context, id string) (*model.Note, error)

	// List returns one page of notes matching the filter and the total match count.
	List(ctx context.Context, q NoteQuery) (*PageResult[model.Note], error)

	// Delete removes a note by ID and returns the removed row, or sql.ErrNoRows.
	Delete(ctx context.Context, id string) (*model.Note, error)
}

// NoteQuery filters and paginates a note listing. Empty Search and Tag match everything.
type NoteQuery struct {
	Search string
	Tag    string
	PageQuery
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
type PageResult[T any] struct {
	Items []T
	Total int
}
