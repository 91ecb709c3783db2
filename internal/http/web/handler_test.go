package web

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"notehub/internal/draft"
	"notehub/internal/http/middleware"
	"notehub/internal/model"
	"notehub/internal/notesapi"
	"notehub/internal/notesapi/mocks"
	"notehub/internal/querycache"
)

type testEnv struct {
	app    *fiber.App
	api    *mocks.MockClient
	cache  *querycache.Cache
	drafts *draft.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, draft.NewMemoryStore())
}

func newTestEnvWithStore(t *testing.T, store draft.Store) *testEnv {
	t.Helper()
	views, err := NewViews(time.UTC)
	require.NoError(t, err)
	cache, err := querycache.New(querycache.Options{StaleTime: time.Minute}, zerolog.Nop())
	require.NoError(t, err)

	api := new(mocks.MockClient)
	drafts := draft.NewService(store)
	h := NewHandler(api, cache, drafts, views, Options{PerPage: 12, SearchDebounce: 400 * time.Millisecond}, zerolog.Nop())

	app := fiber.New(AppConfig(views, zerolog.Nop()))
	app.Use(middleware.RequestID())
	app.Use(middleware.Session())
	RegisterRoutes(app, h, "")

	return &testEnv{app: app, api: api, cache: cache, drafts: drafts}
}

func (e *testEnv) do(t *testing.T, req *http.Request) (*http.Response, string) {
	t.Helper()
	resp, err := e.app.Test(req)
	require.NoError(t, err)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(b)
}

func formRequest(method, target string, form url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func withSession(req *http.Request, sid string) *http.Request {
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: sid})
	return req
}

const testSession = "7d3c3a56-4c39-4d8e-9a37-6d4c1f7c9a11"

func samplePage(titles ...string) *model.NotesPage {
	p := &model.NotesPage{TotalPages: 1}
	for i, title := range titles {
		p.Notes = append(p.Notes, model.Note{ID: string(rune('a' + i)), Title: title, Content: "body", Tag: model.TagWork})
	}
	return p
}

func TestHomeRedirects(t *testing.T) {
	e := newTestEnv(t)
	for _, path := range []string{"/", "/notes", "/notes/filter"} {
		resp, _ := e.do(t, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, fiber.StatusFound, resp.StatusCode, path)
		assert.Equal(t, "/notes/filter/all", resp.Header.Get("Location"), path)
	}
}

func TestNotesPage(t *testing.T) {
	e := newTestEnv(t)
	e.api.On("GetNotes", mock.Anything, model.ListParams{Page: 1, PerPage: 12}).
		Return(samplePage("Buy milk"), nil).Once()

	resp, body := e.do(t, httptest.NewRequest(http.MethodGet, "/notes/filter/all", nil))

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, body, "<!DOCTYPE html>")
	assert.Contains(t, body, "Buy milk")
	assert.Contains(t, body, "Create note +")
	assert.Contains(t, body, `delay:400ms`)
	assert.Contains(t, body, `id="query-state"`)
	assert.Contains(t, body, `"queryKey":["notes","","1",""]`)
	assert.NotContains(t, body, `class="pagination"`)
	assert.NotEmpty(t, resp.Header.Get("Set-Cookie"))
	e.api.AssertExpectations(t)
}

func TestNotesPage_TagSearchAndPagination(t *testing.T) {
	e := newTestEnv(t)
	page := samplePage("Quarterly plan")
	page.TotalPages = 2
	e.api.On("GetNotes", mock.Anything, model.ListParams{Search: "plan", Page: 2, PerPage: 12, Tag: "Work"}).
		Return(page, nil).Once()

	resp, body := e.do(t, httptest.NewRequest(http.MethodGet, "/notes/filter/Work?search=plan&page=2", nil))

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Quarterly plan")
	assert.Contains(t, body, `class="pagination"`)
	assert.Contains(t, body, `aria-current="page">2<`)
	assert.Contains(t, body, `href="/notes/filter/Work?search=plan"`)
	e.api.AssertExpectations(t)
}

func TestNotesPage_KeysOutliveTheirRequest(t *testing.T) {
	e := newTestEnv(t)
	e.api.On("GetNotes", mock.Anything, model.ListParams{Search: "milk", Page: 1, PerPage: 12, Tag: "Work"}).
		Return(samplePage("Milk run"), nil).Once()
	e.api.On("GetNotes", mock.Anything, model.ListParams{Search: "QQQQ", Page: 1, PerPage: 12, Tag: "Todo"}).
		Return(samplePage("Nothing"), nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/notes/filter/Work/list?search=milk", nil)
	req.Header.Set("HX-Request", "true")
	resp, _ := e.do(t, req)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp, _ = e.do(t, httptest.NewRequest(http.MethodGet, "/notes/filter/Todo?search=QQQQ", nil))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	st, err := e.cache.Dehydrate()
	require.NoError(t, err)
	keys := make([]querycache.Key, 0, len(st.Queries))
	for _, q := range st.Queries {
		keys = append(keys, q.Key)
	}
	assert.ElementsMatch(t, []querycache.Key{
		querycache.NotesKey("milk", 1, "Work"),
		querycache.NotesKey("QQQQ", 1, "Todo"),
	}, keys)

	assert.Equal(t, 1, e.cache.Invalidate(querycache.Key{"notes", "milk"}))
	e.api.AssertExpectations(t)
}

func TestNotesPage_UnknownTag(t *testing.T) {
	e := newTestEnv(t)

	resp, body := e.do(t, httptest.NewRequest(http.MethodGet, "/notes/filter/Hobby", nil))

	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "Page not found")
	e.api.AssertNotCalled(t, "GetNotes", mock.Anything, mock.Anything)
}

func TestNotesPage_ServedFromCache(t *testing.T) {
	e := newTestEnv(t)
	e.api.On("GetNotes", mock.Anything, mock.Anything).Return(samplePage("Cached"), nil).Once()

	e.do(t, httptest.NewRequest(http.MethodGet, "/notes/filter/all", nil))
	_, body := e.do(t, httptest.NewRequest(http.MethodGet, "/notes/filter/all/list", nil))

	assert.Contains(t, body, "Cached")
	e.api.AssertNumberOfCalls(t, "GetNotes", 1)
}

func TestNotesPage_ErrorWithoutPlaceholder(t *testing.T) {
	e := newTestEnv(t)
	e.api.On("GetNotes", mock.Anything, mock.Anything).Return(nil, errors.New("api down"))

	resp, body := e.do(t, httptest.NewRequest(http.MethodGet, "/notes/filter/all", nil))

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Failed to load notes")
	assert.NotContains(t, body, "api down")
}

func TestNotesList_PlaceholderOnError(t *testing.T) {
	e := newTestEnv(t)
	e.api.On("GetNotes", mock.Anything, model.ListParams{Page: 1, PerPage: 12}).Return(samplePage("Earlier result"), nil).Once()
	e.api.On("GetNotes", mock.Anything, model.ListParams{Search: "x", Page: 1, PerPage: 12}).Return(nil, errors.New("timeout")).Once()

	e.do(t, httptest.NewRequest(http.MethodGet, "/notes/filter/all", nil))
	resp, body := e.do(t, httptest.NewRequest(http.MethodGet, "/notes/filter/all/list?search=x", nil))

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotContains(t, body, "<!DOCTYPE html>")
	assert.Contains(t, body, "Failed to load notes")
	assert.Contains(t, body, "Earlier result")
	assert.Equal(t, "/notes/filter/all?search=x", resp.Header.Get("HX-Push-Url"))
}

func TestNoteDetails(t *testing.T) {
	e := newTestEnv(t)
	e.api.On("GetNote", mock.Anything, "n1").Return(&model.Note{
		ID:        "n1",
		Title:     "Recipe",
		Content:   "**Eggs** and <script>alert(1)</script>",
		Tag:       model.TagPersonal,
		CreatedAt: time.Date(2024, 3, 9, 10, 30, 0, 0, time.UTC),
	}, nil).Once()

	resp, body := e.do(t, httptest.NewRequest(http.MethodGet, "/notes/n1", nil))

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "<strong>Eggs</strong>")
	assert.NotContains(t, body, "<script>alert(1)</script>")
	assert.Contains(t, body, "09 Mar 2024, 10:30")
	assert.Contains(t, body, `"queryKey":["note","n1"]`)
}

func TestNoteDetails_NotFound(t *testing.T) {
	e := newTestEnv(t)
	e.api.On("GetNote", mock.Anything, "missing").Return(nil, notesapi.ErrNotFound)
	e.api.On("GetNote", mock.Anything, "bad-id").Return(nil, &notesapi.APIError{Status: 400, Code: "INVALID_ID"})
	e.api.On("GetNote", mock.Anything, "boom").Return(nil, &notesapi.APIError{Status: 500})

	resp, _ := e.do(t, httptest.NewRequest(http.MethodGet, "/notes/missing", nil))
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, _ = e.do(t, httptest.NewRequest(http.MethodGet, "/notes/bad-id", nil))
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, body := e.do(t, httptest.NewRequest(http.MethodGet, "/notes/boom", nil))
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, body, "Something went wrong")
}

func TestCreateForm_UsesDraft(t *testing.T) {
	e := newTestEnv(t)

	resp, _ := e.do(t, withSession(formRequest(http.MethodPost, "/notes/draft", url.Values{"field": {"title"}, "value": {"Half-written"}}), testSession))
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	resp, _ = e.do(t, withSession(formRequest(http.MethodPost, "/notes/draft", url.Values{"field": {"tag"}, "value": {"Meeting"}}), testSession))
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	req := withSession(httptest.NewRequest(http.MethodGet, "/notes/action/create", nil), testSession)
	req.Header.Set("HX-Request", "true")
	resp, body := e.do(t, req)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotContains(t, body, "<!DOCTYPE html>")
	assert.Contains(t, body, `class="backdrop"`)
	assert.Contains(t, body, `value="Half-written"`)
	assert.Contains(t, body, `<option value="Meeting" selected>`)
	assert.Contains(t, body, "data-close-modal")

	resp, body = e.do(t, withSession(httptest.NewRequest(http.MethodGet, "/notes/action/create?back=/notes/filter/Work", nil), testSession))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "<!DOCTYPE html>")
	assert.Contains(t, body, `href="/notes/filter/Work"`)
}

func TestCreateForm_InitialDraft(t *testing.T) {
	e := newTestEnv(t)

	_, body := e.do(t, httptest.NewRequest(http.MethodGet, "/notes/action/create", nil))

	assert.Contains(t, body, `<option value="Todo" selected>`)
	assert.Contains(t, body, `href="/notes/filter/all"`)
}

type unavailableStore struct{}

func (unavailableStore) Get(context.Context, string) (model.Draft, error) {
	return model.Draft{}, draft.ErrNoDraft
}

func (unavailableStore) Save(context.Context, string, model.Draft) error {
	return errors.New("bucket unavailable")
}

func (unavailableStore) Clear(context.Context, string) error { return nil }

func TestSaveDraft_StorageFailure(t *testing.T) {
	e := newTestEnvWithStore(t, unavailableStore{})

	req := withSession(formRequest(http.MethodPost, "/notes/draft", url.Values{"field": {"title"}, "value": {"x"}}), testSession)
	req.Header.Set("HX-Request", "true")
	resp, _ := e.do(t, req)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	resp, _ = e.do(t, withSession(formRequest(http.MethodPost, "/notes/draft", url.Values{"field": {"colour"}, "value": {"red"}}), testSession))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestDraftEndpoints(t *testing.T) {
	e := newTestEnv(t)

	resp, _ := e.do(t, withSession(formRequest(http.MethodPost, "/notes/draft", url.Values{"field": {"colour"}, "value": {"red"}}), testSession))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = e.do(t, withSession(formRequest(http.MethodPost, "/notes/draft", url.Values{"field": {"content"}, "value": {"x"}}), testSession))
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	resp, _ = e.do(t, withSession(httptest.NewRequest(http.MethodDelete, "/notes/draft", nil), testSession))
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}

func TestCreateNote_ValidationErrors(t *testing.T) {
	e := newTestEnv(t)
	req := formRequest(http.MethodPost, "/notes/action/create", url.Values{"title": {"ab"}, "content": {""}, "tag": {"Hobby"}})
	req.Header.Set("HX-Request", "true")

	resp, body := e.do(t, req)

	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "Min 3")
	assert.Contains(t, body, "Must be one of: Todo, Work, Personal, Meeting, Shopping")
	assert.Contains(t, body, `value="ab"`)
	e.api.AssertNotCalled(t, "CreateNote", mock.Anything, mock.Anything)
}

func TestCreateNote_SuccessRedirects(t *testing.T) {
	e := newTestEnv(t)
	params := model.CreateNoteParams{Title: "Standup", Content: "notes", Tag: "Meeting"}
	e.api.On("CreateNote", mock.Anything, params).Return(&model.Note{ID: "n9", Title: "Standup", Tag: model.TagMeeting}, nil).Once()
	e.api.On("GetNotes", mock.Anything, mock.Anything).Return(samplePage("Standup"), nil).Twice()

	e.do(t, httptest.NewRequest(http.MethodGet, "/notes/filter/all", nil))
	e.do(t, withSession(formRequest(http.MethodPost, "/notes/draft", url.Values{"field": {"title"}, "value": {"Stand"}}), testSession))

	form := url.Values{"title": {"Standup"}, "content": {"notes"}, "tag": {"Meeting"}, "back": {"/notes/filter/Meeting"}}
	resp, _ := e.do(t, withSession(formRequest(http.MethodPost, "/notes/action/create", form), testSession))

	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/notes/filter/Meeting", resp.Header.Get("Location"))

	d, err := e.drafts.Current(t.Context(), testSession)
	require.NoError(t, err)
	assert.Equal(t, model.InitialDraft(), d)

	e.do(t, httptest.NewRequest(http.MethodGet, "/notes/filter/all", nil))
	e.api.AssertNumberOfCalls(t, "GetNotes", 2)
}

func TestCreateNote_ModalSuccess(t *testing.T) {
	e := newTestEnv(t)
	e.api.On("CreateNote", mock.Anything, mock.Anything).Return(&model.Note{ID: "n1"}, nil).Once()

	req := formRequest(http.MethodPost, "/notes/action/create", url.Values{"title": {"Valid title"}, "tag": {"Todo"}, "back": {"//evil.example"}})
	req.Header.Set("HX-Request", "true")
	resp, body := e.do(t, req)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "note-created", resp.Header.Get("HX-Trigger"))
	assert.Empty(t, body)
}

func TestCreateNote_UnsafeBackFallsBack(t *testing.T) {
	e := newTestEnv(t)
	e.api.On("CreateNote", mock.Anything, mock.Anything).Return(&model.Note{ID: "n1"}, nil).Once()

	resp, _ := e.do(t, formRequest(http.MethodPost, "/notes/action/create", url.Values{"title": {"Valid title"}, "tag": {"Todo"}, "back": {"//evil.example"}}))

	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/notes/filter/all", resp.Header.Get("Location"))
}

func TestCreateNote_APIFailures(t *testing.T) {
	e := newTestEnv(t)
	e.api.On("CreateNote", mock.Anything, model.CreateNoteParams{Title: "Rejected", Tag: "Todo"}).
		Return(nil, &notesapi.ValidationError{Fields: map[string]string{"title": "Max 50"}}).Once()
	e.api.On("CreateNote", mock.Anything, model.CreateNoteParams{Title: "Broken", Tag: "Todo"}).
		Return(nil, &notesapi.APIError{Status: 500, Code: "INTERNAL_ERROR"}).Once()

	req := formRequest(http.MethodPost, "/notes/action/create", url.Values{"title": {"Rejected"}, "tag": {"Todo"}})
	req.Header.Set("HX-Request", "true")
	resp, body := e.do(t, req)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "Max 50")

	req = formRequest(http.MethodPost, "/notes/action/create", url.Values{"title": {"Broken"}, "tag": {"Todo"}})
	req.Header.Set("HX-Request", "true")
	resp, body = e.do(t, req)
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, body, "Failed to create note")
	assert.Contains(t, body, `value="Broken"`)
}

func TestDeleteNote(t *testing.T) {
	e := newTestEnv(t)
	e.api.On("DeleteNote", mock.Anything, "n1").Return(&model.Note{ID: "n1"}, nil).Once()
	e.api.On("DeleteNote", mock.Anything, "n2").Return(nil, errors.New("down")).Once()

	resp, _ := e.do(t, formRequest(http.MethodPost, "/notes/n1/delete", url.Values{"back": {"/notes/filter/Work?page=2"}}))
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/notes/filter/Work?page=2", resp.Header.Get("Location"))

	e.api.On("DeleteNote", mock.Anything, "n3").Return(&model.Note{ID: "n3"}, nil).Once()
	req := formRequest(http.MethodPost, "/notes/n3/delete", nil)
	req.Header.Set("HX-Request", "true")
	resp, body := e.do(t, req)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "note-deleted", resp.Header.Get("HX-Trigger"))
	assert.Empty(t, body)

	req = formRequest(http.MethodPost, "/notes/n2/delete", nil)
	req.Header.Set("HX-Request", "true")
	resp, body = e.do(t, req)
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, body, "Failed to delete note")
}

func TestStaticAssets(t *testing.T) {
	e := newTestEnv(t)

	resp, body := e.do(t, httptest.NewRequest(http.MethodGet, "/static/app.js", nil))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "/notes/draft")
	assert.Contains(t, body, `addEventListener("submit"`)
	assert.Contains(t, body, "cancelDraftSaves")
}

func TestPageWindow(t *testing.T) {
	assert.Nil(t, pageWindow(1, 1, 5))
	assert.Equal(t, []int{1, 2, 3}, pageWindow(1, 3, 5))
	assert.Equal(t, []int{1, 2, 3, 4, 5}, pageWindow(2, 10, 5))
	assert.Equal(t, []int{4, 5, 6, 7, 8}, pageWindow(6, 10, 5))
	assert.Equal(t, []int{6, 7, 8, 9, 10}, pageWindow(10, 10, 5))
}

func TestSafeBack(t *testing.T) {
	assert.Equal(t, "/notes/filter/Work", safeBack("/notes/filter/Work"))
	assert.Empty(t, safeBack("https://evil.example"))
	assert.Empty(t, safeBack("//evil.example"))
	assert.Empty(t, safeBack(`/\evil.example`))
	assert.Empty(t, safeBack(""))
}
