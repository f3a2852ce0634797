package config

import "errors"

var (
	// ErrNotStructPointer indicates ExpandStrings was handed something
	// other than a non-nil struct pointer.
	ErrNotStructPointer = errors.New("config: target must be a non-nil struct pointer")

	// ErrMissingEnvVars indicates ${VAR} references to unset
	// environment variables.
	ErrMissingEnvVars = errors.New("config: missing required environment variables")

	// ErrMissingListenAddress indicates an empty server listen address.
	ErrMissingListenAddress = errors.New("config: server listen address is required")

	// ErrMissingUpstreamEndpoint indicates an empty upstream endpoint.
	ErrMissingUpstreamEndpoint = errors.New("config: upstream endpoint is required")

	// ErrInvalidUpstreamEndpoint indicates an upstream endpoint without
	// a scheme and host.
	ErrInvalidUpstreamEndpoint = errors.New("config: upstream endpoint must be an absolute URL")

	// ErrInvalidStoreBackend indicates an unknown counter store
	// backend.
	ErrInvalidStoreBackend = errors.New("config: invalid counter store backend")

	// ErrMissingRedisAddr indicates the redis backend was selected
	// without an address.
	ErrMissingRedisAddr = errors.New("config: redis address is required")

	// ErrInvalidKeyStrategy indicates a key strategy the file cannot
	// express.
	ErrInvalidKeyStrategy = errors.New("config: invalid rate limit key strategy")

	// ErrRuleSelectsNothing indicates a rate limit rule with neither a
	// path prefix nor methods.
	ErrRuleSelectsNothing = errors.New("config: rate limit rule selects no requests")
)
