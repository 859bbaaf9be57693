package link

import (
	"errors"

	"avaneesh/rcopy-go/pkg/frame"
	"avaneesh/rcopy-go/pkg/internal/logger"
)

// Config contains configuration for a link
type Config struct {
	MaxFrame   int           // Largest frame on the wire
	MaxRetries int           // Iteration bound of the retry loops (0 = unbounded)
	Logger     logger.Logger // Defaults to the package default logger
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		MaxFrame:   frame.DefaultMaxSize,
		MaxRetries: 0,
	}
}

// Errors
var (
	// ErrRetryLimit is returned only when Config.MaxRetries is set and a retry
	// loop exceeds it. Protocol logic never produces it otherwise.
	ErrRetryLimit = errors.New("retry limit exceeded")
	ErrNilChannel = errors.New("link requires a channel")
	ErrNilCodec   = errors.New("link requires a codec")
)
