package handler

import (
	"context"
	_ "embed"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"notehub/internal/http/middleware"
	"notehub/internal/model"
	"notehub/internal/service"
)

// Pinger is the part of *sql.DB the health check needs.
type Pinger interface {
	PingContext(ctx context.Context) error
}

var _ Pinger = (*sql.DB)(nil)

//go:embed openapi.yaml
var openAPISpec []byte

// RegisterRoutes attaches the notes API routes to app.
func RegisterRoutes(app *fiber.App, db Pinger, noteSvc service.NoteService, log zerolog.Logger) {
	app.Get("/openapi.yaml", func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, "application/yaml")
		return c.Send(openAPISpec)
	})
	app.Get("/docs", func(c *fiber.Ctx) error {
		return c.Redirect("/docs/index.html", fiber.StatusMovedPermanently)
	})
	app.Get("/docs/*", swagger.New(swagger.Config{
		URL:   "/openapi.yaml",
		Title: "NoteHub API",
	}))

	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	app.Get("/notes", ListNotes(noteSvc, log))
	app.Post("/notes", CreateNote(noteSvc, log))
	app.Get("/notes/:id", GetNote(noteSvc, log))
	app.Delete("/notes/:id", DeleteNote(noteSvc, log))
}

// HealthCheck reports healthy only when the database answers a ping.
func HealthCheck(db Pinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe answers 200 as long as the process serves requests.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// ListNotes serves GET /notes?search=&page=&perPage=&tag=.
func ListNotes(svc service.NoteService, log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		page, err := strconv.Atoi(c.Query("page", "1"))
		if err != nil || page < 1 {
			return writeError(c, fiber.StatusBadRequest, "INVALID_PAGE", "invalid page")
		}
		perPage, err := strconv.Atoi(c.Query("perPage", strconv.Itoa(service.DefaultPerPage)))
		if err != nil || perPage < 1 {
			return writeError(c, fiber.StatusBadRequest, "INVALID_PER_PAGE", "invalid perPage")
		}

		res, err := svc.List(c.UserContext(), model.ListParams{
			Search:  c.Query("search"),
			Page:    page,
			PerPage: perPage,
			Tag:     c.Query("tag"),
		})
		if err != nil {
			if errors.Is(err, model.ErrInvalidTag) {
				return writeError(c, fiber.StatusBadRequest, "INVALID_TAG", "invalid tag")
			}
			log.Error().Err(err).Str("request_id", middleware.RequestIDFromCtx(c)).Msg("list notes failed")
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(res)
	}
}

// CreateNote serves POST /notes with a JSON body.
func CreateNote(svc service.NoteService, log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in model.CreateNoteParams
		if err := c.BodyParser(&in); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}

		note, err := svc.Create(c.UserContext(), in)
		if err != nil {
			var verr *service.ValidationError
			if errors.As(err, &verr) {
				return writeValidationError(c, verr.Fields)
			}
			log.Error().Err(err).Str("request_id", middleware.RequestIDFromCtx(c)).Msg("create note failed")
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.Status(fiber.StatusCreated).JSON(note)
	}
}

// GetNote serves GET /notes/:id.
func GetNote(svc service.NoteService, log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		note, err := svc.Get(c.UserContext(), id)
		if err != nil {
			if errors.Is(err, service.ErrNotFound) {
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "note not found")
			}
			log.Error().Err(err).Str("request_id", middleware.RequestIDFromCtx(c)).Msg("get note failed")
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(note)
	}
}

// DeleteNote serves DELETE /notes/:id and returns the removed note.
func DeleteNote(svc service.NoteService, log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		note, err := svc.Delete(c.UserContext(), id)
		if err != nil {
			if errors.Is(err, service.ErrNotFound) {
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "note not found")
			}
			log.Error().Err(err).Str("request_id", middleware.RequestIDFromCtx(c)).Msg("delete note failed")
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(note)
	}
}
