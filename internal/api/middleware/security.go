package middleware

import (
	"github.com/gin-gonic/gin"
)

// SecurityHeaders hardens JSON, xlsx and iCalendar replies. Nothing here is
// meant to be framed or rendered as a page.
//
// HSTS is sent only when the request arrived over TLS, directly or through a
// proxy that says so, so plain-http development setups keep working.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Cross-Origin-Resource-Policy", "same-site")
		// shift data is personal; no shared cache may keep it
		h.Set("Cache-Control", "no-store")

		if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
			h.Set("Strict-Transport-Security", "max-age=31536000")
		}

		c.Next()
	}
}
