package driver

import "errors"

var (
	// ErrUnsupported is returned by a Driver method the backend does not
	// implement (e.g. Embed on a text-only completion endpoint).
	ErrUnsupported = errors.New("driver: operation not supported by this backend")

	// ErrUnknownProvider is returned by Registry.New for an unregistered
	// provider name.
	ErrUnknownProvider = errors.New("driver: unknown provider")

	// ErrMissingAPIKey is available for a registered provider Factory to
	// return when it requires network credentials and was not given one.
	// Registry.New and the bundled local driver never return it.
	ErrMissingAPIKey = errors.New("driver: provider requires an API key")
)
