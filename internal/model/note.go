package model

import (
	"errors"
	"fmt"
	"time"
)

// NoteTag is the fixed category set a note belongs to.
type NoteTag string

const (
	TagTodo     NoteTag = "Todo"
	TagWork     NoteTag = "Work"
	TagPersonal NoteTag = "Personal"
	TagMeeting  NoteTag = "Meeting"
	TagShopping NoteTag = "Shopping"
)

// TagAll is the filter path segment meaning "no tag filter".
const TagAll = "all"

var ErrInvalidTag = errors.New("invalid tag")

var allTags = []NoteTag{TagTodo, TagWork, TagPersonal, TagMeeting, TagShopping}

// AllTags returns the tags in display order.
func AllTags() []NoteTag {
	out := make([]NoteTag, len(allTags))
	copy(out, allTags)
	return out
}

// ParseTag matches s exactly against the tag set.
func ParseTag(s string) (NoteTag, error) {
	for _, t := range allTags {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTag, s)
}

// Note is a user-authored record owned by the notes API.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tag       NoteTag   `json:"tag"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NotesPage is one page of a list query.
type NotesPage struct {
	Notes      []Note `json:"notes"`
	TotalPages int    `json:"totalPages"`
}

// ListParams are the list query parameters understood by the API.
// Empty Search and Tag mean no filtering.
type ListParams struct {
	Search  string
	Page    int
	PerPage int
	Tag     string
}

// CreateNoteParams is the payload for creating a note.
type CreateNoteParams struct {
	Title   string `json:"title" form:"title" validate:"notblank,min=3,max=50"`
	Content string `json:"content" form:"content" validate:"max=500"`
	Tag     string `json:"tag" form:"tag" validate:"required,notetag"`
}
