package handlers

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"filedrop/internal/auth"
	"filedrop/internal/service"

	"github.com/labstack/echo/v4"
)

// multipartOverhead is the slack allowed on top of the upload ceiling for
// multipart boundaries and part headers.
const multipartOverhead = 1 << 20

func (h *Handler) Index(c echo.Context) error {
	return c.String(http.StatusOK, "filedrop")
}

func (h *Handler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := h.svc.Healthy(ctx); err != nil {
		h.logger.WarnContext(ctx, "health check failed", "error", err)
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"ok":        false,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"ok":        true,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) View(c echo.Context) error {
	return h.serve(c, h.svc.View)
}

func (h *Handler) Download(c echo.Context) error {
	return h.serve(c, h.svc.Download)
}

func (h *Handler) serve(c echo.Context, open func(context.Context, string) (*service.Transfer, error)) error {
	tr, err := open(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(err)
	}
	defer tr.Close()

	contentType := tr.ContentType
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	header := c.Response().Header()
	header.Set(echo.HeaderContentDisposition, tr.ContentDisposition())
	header.Set(echo.HeaderXContentTypeOptions, "nosniff")
	if tr.Size >= 0 {
		header.Set(echo.HeaderContentLength, strconv.FormatInt(tr.Size, 10))
	}
	return c.Stream(http.StatusOK, contentType, tr.Body)
}

func (h *Handler) Upload(c echo.Context) error {
	req := c.Request()
	credential := auth.ExtractToken(req)

	var file multipart.File
	defer func() {
		if file != nil {
			_ = file.Close()
		}
	}()

	id, err := h.svc.Upload(req.Context(), credential, func() (service.Payload, error) {
		req.Body = http.MaxBytesReader(c.Response(), req.Body, h.svc.MaxUploadBytes()+multipartOverhead)
		fh, err := c.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return service.Payload{}, fmt.Errorf("read multipart form: %w", service.ErrPayloadTooLarge)
			}
			return service.Payload{}, fmt.Errorf("%w: a multipart file field named \"file\" is required", service.ErrInvalidInput)
		}
		f, err := fh.Open()
		if err != nil {
			return service.Payload{}, fmt.Errorf("open multipart file: %w", err)
		}
		file = f
		return service.Payload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get(echo.HeaderContentType),
			Size:        fh.Size,
			Body:        f,
		}, nil
	})
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"error":   false,
		"file_id": id,
	})
}
