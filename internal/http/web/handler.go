// Package web is the server-rendered front-end. Pages are full HTML
// documents; list refreshes, the create modal and form errors are HTML
// fragments swapped in by htmx.
package web

import (
	"context"
	"errors"
	"html/template"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"notehub/internal/draft"
	"notehub/internal/http/middleware"
	"notehub/internal/model"
	"notehub/internal/notesapi"
	"notehub/internal/querycache"
	"notehub/internal/validation"
)

const (
	msgLoadFailed   = "Failed to load notes"
	msgCreateFailed = "Failed to create note"
	msgDeleteFailed = "Failed to delete note"

	eventNoteCreated = "note-created"
	eventNoteDeleted = "note-deleted"

	prefetchTimeout = 5 * time.Second
)

// Drafts is the draft behaviour the create form needs.
type Drafts interface {
	Current(ctx context.Context, sessionID string) (model.Draft, error)
	Update(ctx context.Context, sessionID, field, value string) (model.Draft, error)
	Clear(ctx context.Context, sessionID string) error
}

type Options struct {
	PerPage        int
	SearchDebounce time.Duration
}

type Handler struct {
	api    notesapi.Client
	cache  *querycache.Cache
	drafts Drafts
	views  *Views
	opts   Options
	log    zerolog.Logger
}

func NewHandler(api notesapi.Client, cache *querycache.Cache, drafts Drafts, views *Views, opts Options, log zerolog.Logger) *Handler {
	if opts.PerPage <= 0 {
		opts.PerPage = 12
	}
	if opts.SearchDebounce <= 0 {
		opts.SearchDebounce = 400 * time.Millisecond
	}
	return &Handler{api: api, cache: cache, drafts: drafts, views: views, opts: opts, log: log}
}

type layoutData struct {
	Title string
	State any
}

type notesData struct {
	layoutData
	Tag         string
	Tags        []model.NoteTag
	Search      string
	Page        int
	TotalPages  int
	Pages       []int
	Notes       []model.Note
	Error       string
	Placeholder bool
	Debounce    time.Duration
}

type formData struct {
	layoutData
	Modal  bool
	Values model.CreateNoteParams
	Errors validation.FieldErrors
	Alert  string
	Back   string
	Tags   []model.NoteTag
}

type noteData struct {
	layoutData
	Note    *model.Note
	Content template.HTML
}

// Notes renders the filter page: toolbar, sidebar and the first results.
func (h *Handler) Notes(c *fiber.Ctx) error {
	data, err := h.loadNotes(c)
	if err != nil {
		return err
	}
	state, derr := h.cache.Dehydrate(querycache.NotesKey(data.Search, data.Page, apiTag(data.Tag)))
	if derr != nil {
		h.log.Warn().Err(derr).Msg("dehydrate notes")
	} else {
		data.State = state
	}
	data.Title = "Notes"
	return h.page(c, fiber.StatusOK, "notes", data)
}

// NotesList renders only the results region for search and page changes.
func (h *Handler) NotesList(c *fiber.Ctx) error {
	data, err := h.loadNotes(c)
	if err != nil {
		return err
	}
	c.Set("HX-Push-Url", filterURL(data.Tag, data.Search, data.Page))
	return h.fragment(c, fiber.StatusOK, "notes-results", data)
}

func (h *Handler) loadNotes(c *fiber.Ctx) (*notesData, error) {
	tag := c.Params("tag")
	if tag != model.TagAll {
		if _, err := model.ParseTag(tag); err != nil {
			return nil, fiber.ErrNotFound
		}
	}
	search := strings.TrimSpace(c.Query("search"))
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}

	data := &notesData{
		Tag:      tag,
		Tags:     model.AllTags(),
		Search:   search,
		Page:     page,
		Debounce: h.opts.SearchDebounce,
	}

	ctx := c.UserContext()
	params := model.ListParams{Search: search, Page: page, PerPage: h.opts.PerPage, Tag: apiTag(tag)}
	key := querycache.NotesKey(search, page, params.Tag)

	res, err := querycache.Fetch(ctx, h.cache, key, func(ctx context.Context) (*model.NotesPage, error) {
		return h.api.GetNotes(ctx, params)
	})
	if err != nil {
		h.log.Error().Err(err).Str("request_id", middleware.RequestIDFromCtx(c)).Str("key", key.String()).Msg("list notes")
		data.Error = msgLoadFailed
		prev, ok := querycache.Previous[*model.NotesPage](h.cache, querycache.Key{"notes"})
		if !ok {
			data.TotalPages = 1
			return data, nil
		}
		res = prev
		data.Placeholder = true
	}

	data.Notes = res.Notes
	data.TotalPages = max(res.TotalPages, 1)
	data.Pages = pageWindow(data.Page, data.TotalPages, 5)

	if !data.Placeholder && page < res.TotalPages {
		h.prefetchNext(ctx, search, page+1, params)
	}
	return data, nil
}

// prefetchNext warms the following page so paging forward hits the cache.
func (h *Handler) prefetchNext(ctx context.Context, search string, page int, params model.ListParams) {
	params.Page = page
	key := querycache.NotesKey(search, page, params.Tag)
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), prefetchTimeout)
		defer cancel()
		querycache.Prefetch(ctx, h.cache, key, func(ctx context.Context) (*model.NotesPage, error) {
			return h.api.GetNotes(ctx, params)
		})
	}()
}

// NoteDetails renders one note with its content as Markdown.
func (h *Handler) NoteDetails(c *fiber.Ctx) error {
	id := c.Params("id")
	key := querycache.NoteKey(id)

	n, err := querycache.Fetch(c.UserContext(), h.cache, key, func(ctx context.Context) (*model.Note, error) {
		return h.api.GetNote(ctx, id)
	})
	if err != nil {
		if isNotFound(err) {
			return fiber.ErrNotFound
		}
		h.log.Error().Err(err).Str("request_id", middleware.RequestIDFromCtx(c)).Str("note_id", id).Msg("get note")
		return err
	}

	content, err := h.views.Markdown(n.Content)
	if err != nil {
		return err
	}
	data := noteData{Note: n, Content: content}
	data.Title = n.Title
	if state, err := h.cache.Dehydrate(key); err == nil {
		data.State = state
	}
	return h.page(c, fiber.StatusOK, "note", data)
}

// CreateForm renders the create surface: the modal fragment for htmx
// requests, otherwise the standalone page. Values come from the draft.
func (h *Handler) CreateForm(c *fiber.Ctx) error {
	d, err := h.drafts.Current(c.UserContext(), middleware.SessionID(c))
	if err != nil {
		h.log.Warn().Err(err).Msg("load draft")
	}
	data := formData{
		Modal:  isHTMX(c),
		Values: d.Params(),
		Back:   safeBack(c.Query("back")),
		Tags:   model.AllTags(),
	}
	if data.Modal {
		return h.fragment(c, fiber.StatusOK, "modal", data)
	}
	return h.renderForm(c, fiber.StatusOK, data)
}

// CreateNote validates and submits the form.
func (h *Handler) CreateNote(c *fiber.Ctx) error {
	var p model.CreateNoteParams
	if err := c.BodyParser(&p); err != nil {
		return fiber.ErrBadRequest
	}
	data := formData{
		Modal:  isHTMX(c),
		Values: p,
		Back:   safeBack(c.FormValue("back")),
		Tags:   model.AllTags(),
	}

	if fields := validation.ValidateCreate(p); len(fields) > 0 {
		data.Errors = fields
		return h.renderForm(c, fiber.StatusUnprocessableEntity, data)
	}

	ctx := c.UserContext()
	note, err := h.api.CreateNote(ctx, p)
	if err != nil {
		var ve *notesapi.ValidationError
		if errors.As(err, &ve) && len(ve.Fields) > 0 {
			data.Errors = ve.Fields
			return h.renderForm(c, fiber.StatusUnprocessableEntity, data)
		}
		h.log.Error().Err(err).Str("request_id", middleware.RequestIDFromCtx(c)).Msg("create note")
		data.Alert = msgCreateFailed
		return h.renderForm(c, fiber.StatusBadGateway, data)
	}

	if err := h.drafts.Clear(ctx, middleware.SessionID(c)); err != nil {
		h.log.Warn().Err(err).Msg("clear draft")
	}
	h.cache.Invalidate(querycache.Key{"notes"})
	h.log.Info().Str("note_id", note.ID).Str("tag", string(note.Tag)).Msg("note created")

	if data.Modal {
		c.Set("HX-Trigger", eventNoteCreated)
		return c.Status(fiber.StatusOK).Send(nil)
	}
	return c.Redirect(backOr(data.Back), fiber.StatusSeeOther)
}

// SaveDraft merges one form field into the session draft.
func (h *Handler) SaveDraft(c *fiber.Ctx) error {
	field := c.FormValue("field")
	if _, err := h.drafts.Update(c.UserContext(), middleware.SessionID(c), field, c.FormValue("value")); err != nil {
		if errors.Is(err, model.ErrUnknownDraftField) || errors.Is(err, draft.ErrSessionRequired) {
			h.log.Debug().Err(err).Str("field", field).Msg("draft update rejected")
			return fiber.ErrBadRequest
		}
		h.log.Error().Err(err).Str("request_id", middleware.RequestIDFromCtx(c)).Str("field", field).Msg("save draft")
		return fiber.ErrInternalServerError
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ResetDraft drops the session draft.
func (h *Handler) ResetDraft(c *fiber.Ctx) error {
	if err := h.drafts.Clear(c.UserContext(), middleware.SessionID(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// DeleteNote removes a note and drops every cached view of it.
func (h *Handler) DeleteNote(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := h.api.DeleteNote(c.UserContext(), id); err != nil && !isNotFound(err) {
		h.log.Error().Err(err).Str("request_id", middleware.RequestIDFromCtx(c)).Str("note_id", id).Msg("delete note")
		if isHTMX(c) {
			return h.fragment(c, fiber.StatusBadGateway, "alert", msgDeleteFailed)
		}
		return fiber.NewError(fiber.StatusBadGateway, msgDeleteFailed)
	}

	h.cache.Invalidate(querycache.Key{"notes"})
	h.cache.Invalidate(querycache.NoteKey(id))

	if isHTMX(c) {
		c.Set("HX-Trigger", eventNoteDeleted)
		return c.Status(fiber.StatusOK).Send(nil)
	}
	return c.Redirect(backOr(safeBack(c.FormValue("back"))), fiber.StatusSeeOther)
}

func (h *Handler) renderForm(c *fiber.Ctx, status int, data formData) error {
	if data.Modal {
		return h.fragment(c, status, "note-form", data)
	}
	data.Title = "Create note"
	return h.page(c, status, "create", data)
}

func (h *Handler) page(c *fiber.Ctx, status int, name string, data any) error {
	c.Status(status).Type("html", "utf-8")
	return h.views.Page(c, name, data)
}

func (h *Handler) fragment(c *fiber.Ctx, status int, name string, data any) error {
	c.Status(status).Type("html", "utf-8")
	return h.views.Fragment(c, name, data)
}

func apiTag(tag string) string {
	if tag == model.TagAll {
		return ""
	}
	return tag
}

func isHTMX(c *fiber.Ctx) bool {
	return c.Get("HX-Request") == "true"
}

// The API answers 400 for ids that are not UUIDs; for a page that is a
// missing note.
func isNotFound(err error) bool {
	if errors.Is(err, notesapi.ErrNotFound) {
		return true
	}
	var ae *notesapi.APIError
	return errors.As(err, &ae) && ae.Status == fiber.StatusBadRequest
}

// safeBack only accepts local paths so the redirect cannot leave the site.
func safeBack(back string) string {
	if !strings.HasPrefix(back, "/") || strings.HasPrefix(back, "//") || strings.HasPrefix(back, "/\\") {
		return ""
	}
	return back
}

func backOr(back string) string {
	if back == "" {
		return "/notes/filter/" + model.TagAll
	}
	return back
}

// pageWindow lists up to size page numbers centred on current.
func pageWindow(current, total, size int) []int {
	if total <= 1 {
		return nil
	}
	start := current - size/2
	if start < 1 {
		start = 1
	}
	end := start + size - 1
	if end > total {
		end = total
		start = max(end-size+1, 1)
	}
	out := make([]int, 0, end-start+1)
	for i := start; i <= end; i++ {
		out = append(out, i)
	}
	return out
}
