package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/zatekoja/attendance-relay/internal/domain/entities"
	"github.com/zatekoja/attendance-relay/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/attendance-relay/pkg/errors"
)

// FrameService defines the frame proxy operation used by the handler.
type FrameService interface {
	ForwardFrame(ctx context.Context, image []byte, detProbThreshold, facePlugins string) (*entities.RecognitionResult, error)
}

// FrameHandler proxies recognition requests.
type FrameHandler struct {
	service  FrameService
	maxBytes int64
}

// NewFrameHandler creates a new frame handler. maxBytes bounds the upload.
func NewFrameHandler(service FrameService, maxBytes int64) *FrameHandler {
	return &FrameHandler{service: service, maxBytes: maxBytes}
}

// RecognizeFrame handles POST /recognize-frame
func (h *FrameHandler) RecognizeFrame(w http.ResponseWriter, r *http.Request) {
	image, status, err := h.readFrame(w, r)
	if err != nil {
		respondWithError(w, status, err.Error())
		return
	}

	query := r.URL.Query()
	result, err := h.service.ForwardFrame(r.Context(), image, query.Get("det_prob_threshold"), query.Get("face_plugins"))
	if err != nil {
		if appErr, ok := apperrors.As(err); ok && appErr.Type == apperrors.ErrorTypeExternal && appErr.StatusCode != 0 {
			writeRaw(w, appErr.StatusCode, appErr.ContentType, appErr.Body)
			return
		}
		respondWithFailure(w, err)
		return
	}

	writeRaw(w, result.StatusCode, result.ContentType, result.Body)
}

func (h *FrameHandler) readFrame(w http.ResponseWriter, r *http.Request) ([]byte, int, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			return nil, http.StatusRequestEntityTooLarge, errors.New("file is too large")
		}
		return nil, http.StatusBadRequest, errors.New("file is required")
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, http.StatusBadRequest, errors.New("file is required")
	}
	defer file.Close()

	image, err := io.ReadAll(file)
	if err != nil {
		return nil, http.StatusBadRequest, errors.New("failed to read file")
	}
	if len(image) == 0 {
		return nil, http.StatusBadRequest, errors.New("file is required")
	}
	return image, http.StatusOK, nil
}

func writeRaw(w http.ResponseWriter, statusCode int, contentType string, body []byte) {
	if contentType == "" {
		contentType = "application/json"
	}
	if statusCode == 0 {
		statusCode = http.StatusOK
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(statusCode)
	if _, err := w.Write(body); err != nil {
		observability.GetLogger().Warn().Err(err).Msg("failed to write recognition response")
	}
}
