package codec

import "github.com/go-faster/errors"

var (
	// ErrNoCodec is returned when neither a codec nor a collection shape
	// of registered elements matches the value type.
	ErrNoCodec = errors.New("codec: no codec for type")
	// ErrOutOfRange is returned before any byte is written.
	ErrOutOfRange  = errors.New("codec: value out of range")
	ErrPacked      = errors.New("codec: payload is packed")
	ErrShortBuffer = errors.New("codec: short buffer")
	ErrFrozen      = errors.New("codec: registry is frozen")
	ErrDuplicate   = errors.New("codec: type already registered")
)
