package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"notehub/internal/http/middleware"
)

type errorData struct {
	layoutData
	Status  int
	Message string
}

// ErrorHandler renders failures as HTML. htmx requests get the alert
// fragment, browsers get a full page.
func ErrorHandler(views *Views, log zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}

		msg := "Something went wrong"
		switch {
		case status == fiber.StatusNotFound:
			msg = "Page not found"
		case fe != nil && status != fiber.StatusInternalServerError:
			msg = fe.Message
		}
		if status >= fiber.StatusInternalServerError {
			log.Error().Err(err).Str("request_id", middleware.RequestIDFromCtx(c)).Str("path", c.Path()).Msg("request failed")
		}

		c.Status(status).Type("html", "utf-8")
		if c.Get("HX-Request") == "true" {
			return views.Fragment(c, "alert", msg)
		}
		data := errorData{Status: status, Message: msg}
		data.Title = msg
		if rerr := views.Page(c, "error", data); rerr != nil {
			return c.SendString(msg)
		}
		return nil
	}
}
