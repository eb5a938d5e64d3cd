package compreface

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/attendance-relay/internal/domain/entities"
	"github.com/zatekoja/attendance-relay/pkg/config"
	apperrors "github.com/zatekoja/attendance-relay/pkg/errors"
)

var jpegBytes = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(&config.CompreFaceConfig{BaseURL: server.URL, APIKey: "cf-secret"}, nil)
	require.NoError(t, err)
	return client
}

func TestClient_Recognize_DefaultsAndMultipart(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, recognizePath, r.URL.Path)
		assert.Equal(t, "cf-secret", r.Header.Get("x-api-key"))

		q := r.URL.Query()
		assert.Equal(t, "1", q.Get("prediction_count"))
		assert.Equal(t, "0", q.Get("limit"))
		assert.Equal(t, "0.7", q.Get("det_prob_threshold"))
		assert.Equal(t, "true", q.Get("status"))
		assert.Equal(t, "age,gender", q.Get("face_plugins"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "frame.jpg", header.Filename)
		assert.Equal(t, "image/jpeg", header.Header.Get("Content-Type"))
		data, _ := io.ReadAll(file)
		assert.Equal(t, jpegBytes, data)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":[{"subjects":[{"subject":"Abaan","similarity":0.97}]}]}`))
	})

	result, err := client.Recognize(context.Background(), &entities.Frame{Image: jpegBytes})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, "application/json", result.ContentType)
	assert.JSONEq(t, `{"result":[{"subjects":[{"subject":"Abaan","similarity":0.97}]}]}`, string(result.Body))
}

func TestClient_Recognize_CallerParameters(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0.9", r.URL.Query().Get("det_prob_threshold"))
		assert.Equal(t, "landmarks", r.URL.Query().Get("face_plugins"))
		_, _ = w.Write([]byte(`{"result":[]}`))
	})

	_, err := client.Recognize(context.Background(), &entities.Frame{
		Image:            jpegBytes,
		DetProbThreshold: "0.9",
		FacePlugins:      "landmarks",
	})
	require.NoError(t, err)
}

func TestClient_Recognize_PassesThroughErrorStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"No face is found in the given image","code":28}`))
	})

	_, err := client.Recognize(context.Background(), &entities.Frame{Image: jpegBytes})

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, appErr.StatusCode)
	assert.JSONEq(t, `{"message":"No face is found in the given image","code":28}`, string(appErr.Body))
	assert.Equal(t, "application/json; charset=utf-8", appErr.ContentType)
}

func TestClient_Recognize_EmptyImage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("backend must not be called")
	})

	_, err := client.Recognize(context.Background(), &entities.Frame{})
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}
