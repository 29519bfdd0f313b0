package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/example/ai-detector/internal/apperr"
	"github.com/example/ai-detector/internal/auth"
	"github.com/example/ai-detector/internal/usecase"
)

type detectionHandler struct {
	detections    DetectionService
	maxUploadSize int64
}

func (h *detectionHandler) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize+multipartOverhead)

	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds the upload limit"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if file.Size > h.maxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds the upload limit"})
		return
	}
	contentType := file.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "only image uploads are supported"})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open file"})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read file"})
		return
	}

	ctx := c.Request.Context()
	detection, err := h.detections.Submit(ctx, usecase.Upload{
		Data:        data,
		Filename:    file.Filename,
		ContentType: contentType,
	}, auth.OptionalUser(ctx))
	if err != nil {
		if detection != nil {
			_ = c.Error(err)
			c.JSON(apperr.HTTPStatus(err), gin.H{"error": apperr.Message(err), "id": detection.ID})
			return
		}
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, newDetectionResponse(detection))
}

func (h *detectionHandler) get(c *gin.Context) {
	detection, err := h.detections.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newDetectionResponse(detection))
}

func (h *detectionHandler) history(c *gin.Context) {
	ctx := c.Request.Context()
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		writeError(c, err)
		return
	}

	detections, err := h.detections.ListHistory(ctx, userID)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]detectionResponse, 0, len(detections))
	for i := range detections {
		out = append(out, newDetectionResponse(&detections[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (h *detectionHandler) stats(c *gin.Context) {
	ctx := c.Request.Context()
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		writeError(c, err)
		return
	}

	summary, err := h.detections.Stats(ctx, userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *detectionHandler) delete(c *gin.Context) {
	ctx := c.Request.Context()
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		writeError(c, err)
		return
	}

	if err := h.detections.Delete(ctx, c.Param("id"), userID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
