package errx

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
	// UpstreamUnavailableMessage describes an unreachable catalog service.
	UpstreamUnavailableMessage = "catalog service unreachable"
	// UpstreamErrorMessage describes a non-success catalog response.
	UpstreamErrorMessage = "catalog service returned an error"
	// EmbeddingErrorMessage describes a failing embedding provider.
	EmbeddingErrorMessage = "embedding service failed"
	// DimensionMismatchMessage describes a vector that does not fit the collection.
	DimensionMismatchMessage = "embedding dimension mismatch"
	// ConfigErrorMessage describes invalid configuration.
	ConfigErrorMessage = "invalid configuration"
)

// Error kinds. Match with errors.Is.
var (
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrUpstream            = errors.New("upstream error")
	ErrEmbeddingService    = errors.New("embedding service error")
	ErrDimensionMismatch   = errors.New("dimension mismatch")
	ErrConfig              = errors.New("config error")
	// ErrNoResults marks an empty result. It is a valid outcome, not a failure.
	ErrNoResults = errors.New("no results found")
)

// AppError wraps an underlying error with a status and safe message.
type AppError struct {
	Err     error
	Kind    error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether the target matches the error kind or the underlying error.
func (e *AppError) Is(target error) bool {
	if e.Kind != nil && target == e.Kind {
		return true
	}
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return errors.As(e.Err, target)
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// UpstreamUnavailable marks a transport-level failure talking to the catalog.
func UpstreamUnavailable(err error) error {
	return &AppError{
		Err:     err,
		Kind:    ErrUpstreamUnavailable,
		Status:  http.StatusServiceUnavailable,
		Message: UpstreamUnavailableMessage,
	}
}

// Upstream marks a non-success response from the catalog. body is kept for operators.
func Upstream(status int, body string) error {
	return &AppError{
		Err:     fmt.Errorf("status %d: %s", status, body),
		Kind:    ErrUpstream,
		Status:  http.StatusBadGateway,
		Message: UpstreamErrorMessage,
	}
}

// Embedding marks a failing embedding provider.
func Embedding(err error) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Err:     err,
		Kind:    ErrEmbeddingService,
		Status:  http.StatusBadGateway,
		Message: EmbeddingErrorMessage,
	}
}

// DimensionMismatch reports a vector of length got where want was expected.
func DimensionMismatch(got, want int) error {
	return &AppError{
		Err:     fmt.Errorf("got %d, collection expects %d", got, want),
		Kind:    ErrDimensionMismatch,
		Status:  http.StatusInternalServerError,
		Message: DimensionMismatchMessage,
	}
}

// Config reports invalid configuration.
func Config(format string, args ...any) error {
	return &AppError{
		Err:     fmt.Errorf(format, args...),
		Kind:    ErrConfig,
		Status:  http.StatusInternalServerError,
		Message: ConfigErrorMessage,
	}
}

// WrapRedis maps Redis errors to AppError with appropriate status codes.
func WrapRedis(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return New(err, http.StatusNotFound, RedisNotFoundMessage)
	}
	return New(err, http.StatusBadGateway, RedisErrorMessage)
}
