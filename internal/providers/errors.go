package providers

import "errors"

var (
	// ErrUnknownModel is returned when a model identifier is not in the catalog.
	ErrUnknownModel = errors.New("unknown model")

	// ErrNoContent is returned by adapters when the provider reply carries no usable text.
	ErrNoContent = errors.New("no content in response")

	// ErrProviderNotRegistered is returned when the catalog names a provider with no adapter.
	ErrProviderNotRegistered = errors.New("provider not registered")
)
