package codec

import (
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"

	"github.com/liangmanlin/netsync/kernel"
)

type Options struct {
	DecimalPrecision  int
	QuantizeRotations bool
	Text              encoding.Encoding
}

func DefaultOptions() Options {
	return Options{DecimalPrecision: 4, QuantizeRotations: true, Text: unicode.UTF8}
}

func OptionsFromEnv(env *kernel.EnvConfig) (Options, error) {
	enc, err := LookupEncoding(env.StringEncoding)
	if err != nil {
		return Options{}, err
	}
	return Options{
		DecimalPrecision:  env.DecimalPrecision,
		QuantizeRotations: env.QuantizeRotations,
		Text:              enc,
	}, nil
}

// NewDefault registers every builtin codec, the caller may add its own
// before Freeze. Both peers must build it with the same Options.
func NewDefault(opt Options) *Registry {
	r := NewRegistry()
	if opt.Text != nil {
		r.text = opt.Text
	}
	return r.MustRegister(
		Erase(Bool),
		Erase(Int8),
		Erase(Uint8),
		Erase(Int16),
		Erase(Uint16),
		Erase(Int32),
		Erase(Uint32),
		Erase(Int64),
		Erase(Uint64),
		Erase(Float32),
		Erase(Float64),
		Erase(Int),
		Erase(DecimalCodec(opt.DecimalPrecision)),
		Erase(StringCodec[Str8](1, r.text)),
		Erase(StringCodec[Str16](2, r.text)),
		Erase(StringCodec[string](2, r.text)),
		Erase(Vector2Codec),
		Erase(Vector3Codec),
		Erase(Vector4Codec),
		Erase(QuaternionCodec(opt.QuantizeRotations)),
	)
}

// FromEnv builds and freezes the process registry from kernel.Env
func FromEnv(env *kernel.EnvConfig) (*Registry, error) {
	opt, err := OptionsFromEnv(env)
	if err != nil {
		return nil, err
	}
	return NewDefault(opt).Freeze(), nil
}
