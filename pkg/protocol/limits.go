package protocol

const (
	// MaxMessageSize bounds a single inbound command. Larger frames are
	// rejected by the transport before decoding.
	MaxMessageSize = 64 * 1024

	// MaxArgsDepth limits nesting produced by expanding dotted implicit
	// argument names such as "item.tags.0".
	MaxArgsDepth = 16
)
