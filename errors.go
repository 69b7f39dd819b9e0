package shorthair

import "errors"

// Sentinel errors returned by the engine. Callers should use errors.Is to
// classify a failure rather than comparing against these directly, since
// they are frequently wrapped with call-site context.
var (
	// ErrConfigInvalid is returned by Initialize when settings are out of
	// range or the cipher rejects the supplied key.
	ErrConfigInvalid = errors.New("shorthair: invalid configuration")

	// ErrPayloadTooLarge is returned by Send/SendOOB when the plaintext
	// exceeds the room left after headers and cipher overhead.
	ErrPayloadTooLarge = errors.New("shorthair: payload exceeds max_data_size")

	// ErrNotInitialized is returned by any engine-supplied operation
	// invoked before a successful Initialize.
	ErrNotInitialized = errors.New("shorthair: endpoint not initialized")

	// errEnvelopeInvalid classifies a Recv drop due to failed
	// authentication or a too-short envelope. Never returned to the
	// caller: Recv drops silently per spec, this is for internal logging.
	errEnvelopeInvalid = errors.New("shorthair: envelope authentication failed")

	// errPayloadMalformed classifies a Recv drop due to an unknown
	// reserved type code or inconsistent group parameters.
	errPayloadMalformed = errors.New("shorthair: malformed payload")
)
