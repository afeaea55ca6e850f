package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ytget/streamproxy"
	"github.com/ytget/streamproxy/errs"
)

var endpoints = map[string]string{
	"/get_stream/<video_id>": "Get direct stream URL for a video",
	"/health":                "Health check endpoint",
}

func (s *Server) handleInfo(c *gin.Context) {
	c.JSON(http.StatusOK, InfoResponse{
		Status:    "running",
		Message:   "YouTube Stream Proxy API",
		Version:   streamproxy.Version,
		Endpoints: endpoints,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy"})
}

func (s *Server) handleGetStream(c *gin.Context) {
	videoID := c.Param("video_id")

	stream, err := s.resolver.Resolve(c.Request.Context(), videoID)
	if err != nil {
		status := StatusFor(errs.KindOf(err))
		fields := map[string]interface{}{
			"video_id":   videoID,
			"status":     status,
			"error":      err.Error(),
			"request_id": c.GetString(requestIDKey),
		}
		if status >= http.StatusInternalServerError {
			s.log.Error("stream request failed", fields)
		} else {
			s.log.Warn("stream request failed", fields)
		}
		c.JSON(status, ErrorResponse{Error: errs.MessageOf(err), VideoID: videoID})
		return
	}

	c.JSON(http.StatusOK, NewStreamResponse(stream))
}

func (s *Server) handleNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, ErrorResponse{Error: "Not found"})
}

// StatusFor maps a failure kind to its HTTP status.
func StatusFor(k errs.Kind) int {
	switch k {
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindAccessDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
