package models

import (
	"errors"
	"fmt"
)

var ErrCollectionNotFound = errors.New("collection not found")

// DocumentLoadError reports an unreadable, corrupt or empty input document.
type DocumentLoadError struct {
	Path string
	Err  error
}

func (e *DocumentLoadError) Error() string {
	return fmt.Sprintf("failed to load document %q: %v", e.Path, e.Err)
}

func (e *DocumentLoadError) Unwrap() error { return e.Err }

// EmbeddingServiceError reports a failed call to the embedding service.
type EmbeddingServiceError struct {
	Op  string
	Err error
}

func (e *EmbeddingServiceError) Error() string {
	return fmt.Sprintf("embedding service: %s: %v", e.Op, e.Err)
}

func (e *EmbeddingServiceError) Unwrap() error { return e.Err }

// GenerationServiceError reports a failed call to the generation service.
type GenerationServiceError struct {
	Model string
	Err   error
}

func (e *GenerationServiceError) Error() string {
	return fmt.Sprintf("generation service (model %s): %v", e.Model, e.Err)
}

func (e *GenerationServiceError) Unwrap() error { return e.Err }

// ConfigurationError reports a missing credential or an invalid parameter.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}
