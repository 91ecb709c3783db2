package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	// SessionCookie identifies a browser across requests; drafts are keyed by it.
	SessionCookie = "notehub_session"
	// SessionLocalKey is the Fiber locals key holding the session ID.
	SessionLocalKey = "session_id"

	sessionTTL = 30 * 24 * time.Hour
)

// Session makes sure every request carries a session ID, issuing a cookie
// for browsers that do not have a valid one yet.
func Session() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Cookies(SessionCookie)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
			c.Cookie(&fiber.Cookie{
				Name:     SessionCookie,
				Value:    id,
				Path:     "/",
				Expires:  time.Now().Add(sessionTTL),
				HTTPOnly: true,
				SameSite: fiber.CookieSameSiteLaxMode,
			})
		}
		c.Locals(SessionLocalKey, id)
		return c.Next()
	}
}

// SessionID returns the session ID stored by Session.
func SessionID(c *fiber.Ctx) string {
	id, _ := c.Locals(SessionLocalKey).(string)
	return id
}
