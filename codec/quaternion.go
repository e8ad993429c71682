package codec

import (
	"math"
	"math/bits"

	"github.com/liangmanlin/netsync/gutil"
)

type Quaternion struct{ X, Y, Z, W float32 }

var Identity = Quaternion{W: 1}

func (q Quaternion) comps() [4]float64 {
	return [4]float64{float64(q.X), float64(q.Y), float64(q.Z), float64(q.W)}
}

func (q Quaternion) Dot(o Quaternion) float64 {
	a, b := q.comps(), o.comps()
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] + a[3]*b[3]
}

// Normalize returns the zero quaternion unchanged
func (q Quaternion) Normalize() Quaternion {
	n := math.Sqrt(q.Dot(q))
	if n == 0 {
		return q
	}
	c := q.comps()
	return Quaternion{float32(c[0] / n), float32(c[1] / n), float32(c[2] / n), float32(c[3] / n)}
}

// Angle is the rotation angle in radians between q and o, both normalized
func (q Quaternion) Angle(o Quaternion) float64 {
	d := math.Abs(q.Normalize().Dot(o.Normalize()))
	return 2 * math.Acos(math.Min(d, 1))
}

/*
	quaternion header, smallest three

	16           zero quaternion
	32           identity
	otherwise    bits0-3 one-hot index of the omitted component (x,y,z,w),
	             bit7 its sign
*/
const (
	quatZero     = 16
	quatIdentity = 32
	quatSign     = 0x80
)

// QuantizeError is the advertised worst case error per component of the
// quantized codec
const QuantizeError = 0.0156

type quaternionResolver struct {
	quantized bool
}

// QuaternionCodec sends the three smallest components as float32, or as one
// byte each when quantized. q and -q are the same rotation, the identity
// always decodes with w = +1.
func QuaternionCodec(quantized bool) Resolver[Quaternion] {
	return quaternionResolver{quantized: quantized}
}

func (r quaternionResolver) Size() int { return -1 }

func (r quaternionResolver) AutoAdvance() bool { return false }

func (r quaternionResolver) compSize() int {
	if r.quantized {
		return 1
	}
	return 4
}

func (r quaternionResolver) Write(p *BytePayload, q Quaternion) error {
	if q == (Quaternion{}) {
		return p.WriteByte(quatZero)
	}
	n := q.Normalize()
	c := [4]float32{n.X, n.Y, n.Z, n.W}
	if c[0] == 0 && c[1] == 0 && c[2] == 0 {
		return p.WriteByte(quatIdentity)
	}
	largest := 0
	for i := 1; i < 4; i++ {
		if abs32(c[i]) > abs32(c[largest]) {
			largest = i
		}
	}
	size := r.compSize()
	w, err := p.Slot(1 + 3*size)
	if err != nil {
		return err
	}
	w[0] = 1 << largest
	if c[largest] < 0 {
		w[0] |= quatSign
	}
	off := 1
	for i, x := range c {
		if i == largest {
			continue
		}
		if r.quantized {
			w[off] = quantize(x)
		} else {
			le.PutUint32(w[off:], math.Float32bits(x))
		}
		off += size
	}
	p.Advance(len(w))
	return nil
}

func (r quaternionResolver) Read(p *BytePayload) (q Quaternion, res ReadResult) {
	mark := p.Offset()
	h, err := p.ReadByte()
	if err != nil {
		return q, Failed
	}
	switch h {
	case quatZero:
		return Quaternion{}, Success
	case quatIdentity:
		return Identity, Success
	}
	idx := h &^ quatSign
	if idx == 0 || idx > 8 || bits.OnesCount8(idx) != 1 {
		p.seek(mark)
		return q, Failed
	}
	largest := bits.TrailingZeros8(idx)
	size := r.compSize()
	b, err := p.Next(3 * size)
	if err != nil {
		p.seek(mark)
		return q, Failed
	}
	var c [4]float32
	var sum float64
	off := 0
	for i := 0; i < 4; i++ {
		if i == largest {
			continue
		}
		if r.quantized {
			c[i] = dequantize(b[off])
		} else {
			c[i] = math.Float32frombits(le.Uint32(b[off:]))
		}
		sum += float64(c[i]) * float64(c[i])
		off += size
	}
	omitted := float32(math.Sqrt(math.Max(0, 1-sum)))
	if h&quatSign != 0 {
		omitted = -omitted
	}
	c[largest] = omitted
	return Quaternion{c[0], c[1], c[2], c[3]}, Success
}

// quantize maps [-1,1] to [0,255]
func quantize(x float32) byte {
	return byte(gutil.Clamp(math.Round((float64(x)+1)*127.5), 0, 255))
}

func dequantize(b byte) float32 {
	return float32(float64(b)/127.5 - 1)
}

func abs32(x float32) float32 {
	return float32(math.Abs(float64(x)))
}
