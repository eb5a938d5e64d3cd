package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/zatekoja/attendance-relay/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/attendance-relay/pkg/errors"
)

// Helper functions
func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		observability.GetLogger().Warn().Err(err).Msg("failed to write response")
	}
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// respondWithFailure maps a relay error onto the response shapes callers
// expect: 400 {error} for validation, 500 {success:false, error, details}
// for upstream and internal failures.
func respondWithFailure(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		respondWithJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	if appErr.Type == apperrors.ErrorTypeValidation {
		respondWithError(w, http.StatusBadRequest, appErr.Message)
		return
	}

	payload := map[string]interface{}{
		"success": false,
		"error":   failureMessage(appErr),
	}
	if appErr.Type == apperrors.ErrorTypeExternal && appErr.Body != nil {
		payload["details"] = upstreamDetails(appErr.Body)
	}
	respondWithJSON(w, appErr.HTTPStatus(), payload)
}

func failureMessage(appErr *apperrors.AppError) string {
	if appErr.Err != nil {
		return fmt.Sprintf("%s: %v", appErr.Message, appErr.Err)
	}
	return appErr.Message
}

// upstreamDetails embeds an upstream body as JSON when it is JSON and as a
// string otherwise.
func upstreamDetails(body []byte) interface{} {
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	return string(body)
}
