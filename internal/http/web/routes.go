package web

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/rs/zerolog"

	"notehub/internal/model"
)

// AppConfig is the fiber configuration the front-end runs under. Handlers
// keep path, query and form values past the request in cache keys and
// drafts, so request strings must not alias fasthttp's reused buffers.
func AppConfig(views *Views, log zerolog.Logger) fiber.Config {
	return fiber.Config{
		AppName:               "notehub-web",
		ErrorHandler:          ErrorHandler(views, log),
		DisableStartupMessage: true,
		Immutable:             true,
	}
}

// RegisterRoutes attaches the front-end routes. Static files come from dir
// when set, otherwise from the embedded assets.
func RegisterRoutes(app *fiber.App, h *Handler, staticDir string) {
	if staticDir != "" {
		app.Static("/static", staticDir)
	} else {
		app.Use("/static", filesystem.New(filesystem.Config{
			Root: http.FS(StaticFS()),
		}))
	}

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	home := func(c *fiber.Ctx) error {
		return c.Redirect("/notes/filter/"+model.TagAll, fiber.StatusFound)
	}
	app.Get("/", home)
	app.Get("/notes", home)
	app.Get("/notes/filter", home)

	app.Post("/notes/draft", h.SaveDraft)
	app.Delete("/notes/draft", h.ResetDraft)

	app.Get("/notes/action/create", h.CreateForm)
	app.Post("/notes/action/create", h.CreateNote)

	app.Get("/notes/filter/:tag/list", h.NotesList)
	app.Get("/notes/filter/:tag", h.Notes)

	app.Get("/notes/:id", h.NoteDetails)
	app.Post("/notes/:id/delete", h.DeleteNote)
}
