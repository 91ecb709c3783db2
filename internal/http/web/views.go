package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"notehub/internal/model"
)

//go:embed templates
var templatesFS embed.FS

//go:embed static
var staticFS embed.FS

// StaticFS is the embedded /static tree.
func StaticFS() fs.FS {
	sub, _ := fs.Sub(staticFS, "static")
	return sub
}

// Views holds the parsed page templates. Fragments are rendered from the
// shared partial set, pages from a clone with their own "content" block.
type Views struct {
	partials *template.Template
	pages    map[string]*template.Template
	md       goldmark.Markdown
	loc      *time.Location
}

func NewViews(loc *time.Location) (*Views, error) {
	if loc == nil {
		loc = time.UTC
	}
	v := &Views{
		pages: make(map[string]*template.Template),
		md:    goldmark.New(goldmark.WithExtensions(extension.GFM)),
		loc:   loc,
	}

	base, err := template.New("base").Funcs(v.funcs()).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	v.partials = base

	pages, err := fs.Glob(templatesFS, "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	for _, p := range pages {
		clone, err := base.Clone()
		if err != nil {
			return nil, err
		}
		t, err := clone.ParseFS(templatesFS, p)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", p, err)
		}
		v.pages[strings.TrimSuffix(path.Base(p), ".html")] = t
	}
	return v, nil
}

// Page renders a full document using the layout.
func (v *Views) Page(w io.Writer, name string, data any) error {
	t, ok := v.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	return execute(w, t, "layout", data)
}

// Fragment renders a named partial without the layout.
func (v *Views) Fragment(w io.Writer, name string, data any) error {
	return execute(w, v.partials, name, data)
}

// Markdown renders note content. Raw HTML in the source is omitted.
func (v *Views) Markdown(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := v.md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

func execute(w io.Writer, t *template.Template, name string, data any) error {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

func (v *Views) funcs() template.FuncMap {
	return template.FuncMap{
		"add": func(a, b int) int { return a + b },
		"sub": func(a, b int) int { return a - b },
		"date": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.In(v.loc).Format("02 Jan 2006, 15:04")
		},
		"excerpt": func(s string, n int) string {
			r := []rune(s)
			if len(r) <= n {
				return s
			}
			return strings.TrimSpace(string(r[:n])) + "…"
		},
		"filterURL": filterURL,
		"listURL":   listURL,
		"ms": func(d time.Duration) int64 { return d.Milliseconds() },
	}
}

// filterURL builds /notes/filter/<tag>?search=&page= for full-page links.
func filterURL(tag, search string, page int) string {
	return withQuery("/notes/filter/"+url.PathEscape(tagOrAll(tag)), search, page)
}

// listURL is the fragment endpoint behind filterURL.
func listURL(tag, search string, page int) string {
	return withQuery("/notes/filter/"+url.PathEscape(tagOrAll(tag))+"/list", search, page)
}

func tagOrAll(tag string) string {
	if tag == "" {
		return model.TagAll
	}
	return tag
}

func withQuery(u, search string, page int) string {
	q := url.Values{}
	if search != "" {
		q.Set("search", search)
	}
	if page > 1 {
		q.Set("page", strconv.Itoa(page))
	}
	if enc := q.Encode(); enc != "" {
		return u + "?" + enc
	}
	return u
}
