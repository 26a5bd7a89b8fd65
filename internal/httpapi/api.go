package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"filedrop/internal/config"
	"filedrop/internal/httpapi/handlers"
	"filedrop/internal/httpapi/middlewares"
	"filedrop/internal/ratelimit"
	"filedrop/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type API struct {
	cfg     config.Config
	logger  *slog.Logger
	handler *handlers.Handler
}

func New(cfg config.Config, svc *service.Service, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		cfg:     cfg,
		logger:  logger,
		handler: handlers.New(svc, logger),
	}
}

func (a *API) NewEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = a.cfg.Debug
	e.HTTPErrorHandler = handlers.ErrorHandler(a.logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(a.requestLoggerConfig()))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: a.cfg.CORSAllowedOrigins,
		AllowMethods: []string{
			http.MethodGet,
			http.MethodHead,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderAccept,
			echo.HeaderContentType,
			echo.HeaderAuthorization,
			"X-API-Token",
		},
		ExposeHeaders: []string{
			echo.HeaderContentDisposition,
			"RateLimit-Limit",
			"RateLimit-Remaining",
			"X-RateLimit-Limit",
			"X-RateLimit-Remaining",
			"Retry-After",
		},
		MaxAge: 600,
	}))
	e.Use(middlewares.NewRateLimitMiddleware(ratelimit.Config{
		Read:  ratelimit.Rule{RPS: a.cfg.RateLimitRPS, Burst: a.cfg.RateLimitBurst},
		Write: ratelimit.Rule{RPS: a.cfg.UploadRateRPS, Burst: a.cfg.UploadRateBurst},
	}))

	a.registerRoutes(e)
	return e
}

// requestLoggerConfig logs one line per request. Headers are not logged, so
// API keys never reach the log.
func (a *API) requestLoggerConfig() middleware.RequestLoggerConfig {
	return middleware.RequestLoggerConfig{
		LogMethod:       true,
		LogURIPath:      true,
		LogStatus:       true,
		LogLatency:      true,
		LogRemoteIP:     true,
		LogRequestID:    true,
		LogResponseSize: true,
		LogError:        true,
		HandleError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("path", v.URIPath),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", v.RemoteIP),
				slog.String("request_id", v.RequestID),
				slog.Int64("bytes_out", v.ResponseSize),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			a.logger.LogAttrs(context.Background(), level, "request", attrs...)
			return nil
		},
	}
}
