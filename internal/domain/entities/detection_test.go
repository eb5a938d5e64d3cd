package entities

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDetectionRecord(t *testing.T) {
	acceptedAt := time.Date(2026, 3, 2, 9, 0, 0, 100999999, time.FixedZone("WAT", 3600))
	record := NewDetectionRecord(&DetectionEvent{Name: "Zara"}, acceptedAt)

	assert.Equal(t, DefaultSourceID, record.CameraID)
	assert.Equal(t, DefaultConfidence, record.Confidence)
	assert.Equal(t, time.Date(2026, 3, 2, 8, 0, 0, 100000000, time.UTC), record.Timestamp)

	raw, err := json.Marshal(record)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"timestamp":"2026-03-02T08:00:00.100Z"`)

	var decoded DetectionRecord
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, record.ID, decoded.ID)
	assert.True(t, record.Timestamp.Equal(decoded.Timestamp))
}
