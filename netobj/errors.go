package netobj

import "github.com/go-faster/errors"

var (
	// ErrSchemaMismatch means both ends disagree on a member table
	ErrSchemaMismatch = errors.New("netobj: schema mismatch")
	ErrCompile        = errors.New("netobj: compile failed")
	ErrDecode         = errors.New("netobj: decode failed")
	ErrPoolExhausted  = errors.New("netobj: update pool exhausted")
	ErrNoMember       = errors.New("netobj: no such member")
	ErrUnknownType    = errors.New("netobj: unknown object type")
	ErrIDInUse        = errors.New("netobj: object id in use")
	ErrBadState       = errors.New("netobj: illegal state transition")
	ErrFactory        = errors.New("netobj: object factory failed")
)
