package entities

const (
	// DefaultDetProbThreshold is the face detection probability threshold used
	// when the caller does not provide one.
	DefaultDetProbThreshold = "0.7"

	// DefaultFacePlugins are the recognition plugins requested by default.
	DefaultFacePlugins = "age,gender"
)

// Frame is an image submitted for recognition.
type Frame struct {
	Image            []byte
	DetProbThreshold string
	FacePlugins      string
}

// RecognitionResult is the recognition backend's response, passed through untouched.
type RecognitionResult struct {
	StatusCode  int
	ContentType string
	Body        []byte
}
