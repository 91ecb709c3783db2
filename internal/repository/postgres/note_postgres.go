package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"notehub/internal/model"
	"notehub/internal/repository"
)

// NotePostgres is a PostgreSQL implementation of repository.NoteRepository.
type NotePostgres struct {
	db *sql.DB
}

// NewNotePostgres creates a new NotePostgres repository.
func NewNotePostgres(db *sql.DB) *NotePostgres {
	return &NotePostgres{db: db}
}

var _ repository.NoteRepository = (*NotePostgres)(nil)

const noteColumns = `id, title, content, tag, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(s scanner) (*model.Note, error) {
	var n model.Note
	var tag string
	if err := s.Scan(&n.ID, &n.Title, &n.Content, &tag, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	n.Tag = model.NoteTag(tag)
	return &n, nil
}

// Create inserts a new note row and returns the stored record.
func (r *NotePostgres) Create(ctx context.Context, note *model.Note) (*model.Note, error) {
	const q = `
		INSERT INTO notes (id, title, content, tag, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + noteColumns
	row := r.db.QueryRowContext(ctx, q,
		note.ID,
		note.Title,
		note.Content,
		string(note.Tag),
		note.CreatedAt,
		note.UpdatedAt,
	)
	return scanNote(row)
}

// FindByID fetches a single note by its ID.
func (r *NotePostgres) FindByID(ctx context.Context, id string) (*model.Note, error) {
	const q = `SELECT ` + noteColumns + ` FROM notes WHERE id = $1`
	return scanNote(r.db.QueryRowContext(ctx, q, id))
}

// List returns notes matching the filter using LIMIT/OFFSET pagination and a total count.
func (r *NotePostgres) List(ctx context.Context, nq repository.NoteQuery) (*repository.PageResult[model.Note], error) {
	where, args := buildFilter(nq)

	var total int
	qCount := `SELECT COUNT(*) FROM notes` + where
	if err := r.db.QueryRowContext(ctx, qCount, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count notes: %w", err)
	}

	qList := fmt.Sprintf(`SELECT %s FROM notes%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		noteColumns, where, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, qList, append(args, nq.Limit, nq.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	items := make([]model.Note, 0)
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		items = append(items, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Note]{
		Items: items,
		Total: total,
	}, nil
}

// Delete removes a note by ID and returns it.
func (r *NotePostgres) Delete(ctx context.Context, id string) (*model.Note, error) {
	const q = `DELETE FROM notes WHERE id = $1 RETURNING ` + noteColumns
	return scanNote(r.db.QueryRowContext(ctx, q, id))
}

// buildFilter renders the WHERE clause shared by the count and page queries.
func buildFilter(nq repository.NoteQuery) (string, []any) {
	var conds []string
	var args []any

	if nq.Tag != "" {
		args = append(args, nq.Tag)
		conds = append(conds, fmt.Sprintf("tag = $%d", len(args)))
	}
	if s := strings.TrimSpace(nq.Search); s != "" {
		args = append(args, "%"+escapeLike(s)+"%")
		conds = append(conds, fmt.Sprintf("(title ILIKE $%d OR content ILIKE $%d)", len(args), len(args)))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
