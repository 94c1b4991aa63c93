package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// CORS returns a CORS middleware for the given origins ("*" allows any).
// Preflight requests are answered here with 204 and never reach
// authentication or the upstream. Requested headers are reflected.
func CORS(origins []string) echo.MiddlewareFunc {
	return echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{
			http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		ExposeHeaders: []string{echo.HeaderXRequestID},
		MaxAge:        600,
	})
}
