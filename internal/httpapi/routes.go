package httpapi

import (
	"github.com/labstack/echo/v4"
)

func (a *API) registerRoutes(e *echo.Echo) {
	e.GET("/", a.handler.Index)
	e.GET("/healthz", a.handler.Health)

	e.GET("/view/:id", a.handler.View)
	e.GET("/download/:id", a.handler.Download)
	e.POST("/upload", a.handler.Upload)
}
