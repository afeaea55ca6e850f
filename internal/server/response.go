package server

import "github.com/ytget/streamproxy/types"

// StreamResponse is the body of a successful /get_stream call.
type StreamResponse struct {
	Success   bool   `json:"success" jsonschema:"const=true"`
	VideoID   string `json:"video_id"`
	URL       string `json:"url" jsonschema:"description=Direct playable media URL"`
	Title     string `json:"title" jsonschema:"default=Unknown"`
	Duration  int    `json:"duration" jsonschema:"description=Length in seconds,minimum=0"`
	Thumbnail string `json:"thumbnail"`
	Uploader  string `json:"uploader" jsonschema:"default=Unknown"`
	ViewCount int64  `json:"view_count" jsonschema:"minimum=0"`
}

// ErrorResponse is the body of every failed call.
type ErrorResponse struct {
	Success bool   `json:"success" jsonschema:"const=false"`
	Error   string `json:"error"`
	VideoID string `json:"video_id,omitempty"`
}

// InfoResponse is the body of GET /.
type InfoResponse struct {
	Status    string            `json:"status"`
	Message   string            `json:"message"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// NewStreamResponse renders a resolved stream.
func NewStreamResponse(s *types.ResolvedStream) StreamResponse {
	return StreamResponse{
		Success:   true,
		VideoID:   s.VideoID,
		URL:       s.URL,
		Title:     s.Title,
		Duration:  s.Duration,
		Thumbnail: s.Thumbnail,
		Uploader:  s.Uploader,
		ViewCount: s.ViewCount,
	}
}
