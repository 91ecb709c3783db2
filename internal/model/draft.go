package model

import (
	"errors"
	"fmt"
)

var ErrUnknownDraftField = errors.New("unknown draft field")

// Draft is the unsaved state of the create-note form.
type Draft struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Tag     NoteTag `json:"tag"`
}

// InitialDraft is the form state before the first keystroke.
func InitialDraft() Draft {
	return Draft{Tag: TagTodo}
}

// Merge applies a single field update. Tag values are stored verbatim so the
// form can echo what the user picked; validation happens on submit.
func (d Draft) Merge(field, value string) (Draft, error) {
	switch field {
	case "title":
		d.Title = value
	case "content":
		d.Content = value
	case "tag":
		d.Tag = NoteTag(value)
	default:
		return d, fmt.Errorf("%w %q", ErrUnknownDraftField, field)
	}
	return d, nil
}

// Params converts the draft into a create payload.
func (d Draft) Params() CreateNoteParams {
	return CreateNoteParams{Title: d.Title, Content: d.Content, Tag: string(d.Tag)}
}
