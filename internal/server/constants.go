package server

import "time"

// Server constants
const (
	// Maximum accepted multipart upload size for a comparison request.
	MaxUploadBytes = 32 << 20

	// WebSocket rate limiting: max messages per sliding window.
	RateLimitMessages = 10
	RateLimitWindow   = time.Second

	// Default number of records returned by the history endpoint.
	HistoryDefaultLimit = 50
)
