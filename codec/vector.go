package codec

import (
	"math"
)

type Vector2 struct{ X, Y float32 }

type Vector3 struct{ X, Y, Z float32 }

type Vector4 struct{ X, Y, Z, W float32 }

func (a Vector2) Add(b Vector2) Vector2 { return Vector2{a.X + b.X, a.Y + b.Y} }
func (a Vector2) Sub(b Vector2) Vector2 { return Vector2{a.X - b.X, a.Y - b.Y} }

func (a Vector3) Add(b Vector3) Vector3 { return Vector3{a.X + b.X, a.Y + b.Y, a.Z + b.Z} }
func (a Vector3) Sub(b Vector3) Vector3 { return Vector3{a.X - b.X, a.Y - b.Y, a.Z - b.Z} }

func (a Vector4) Add(b Vector4) Vector4 {
	return Vector4{a.X + b.X, a.Y + b.Y, a.Z + b.Z, a.W + b.W}
}
func (a Vector4) Sub(b Vector4) Vector4 {
	return Vector4{a.X - b.X, a.Y - b.Y, a.Z - b.Z, a.W - b.W}
}

/*
	vector header, bit 0 = LSB

	0            zero vector
	64 + axis    unit vector on +X/+Y/+Z/+W
	absolute     bit0 = 1, bits1-2 = component type, nothing else set (1,3,5,7)
	delta        bit7 = 1, bits1-2 = component type, bits3-6 = presence mask X,Y,Z,W
	             an all zero delta is 0x80
*/
const (
	vecZero     = 0
	vecUnit     = 64
	vecAbsolute = 0x01
	vecDelta    = 0x80
)

type compType uint8

const (
	compInt8 compType = iota
	compInt16
	compInt32
	compFloat
)

var compSize = [4]int{1, 2, 4, 4}

type vecHeader struct {
	special  bool
	axis     int // -1 for the zero vector
	absolute bool
	typ      compType
	mask     uint8
}

func encodeVecHeader(h vecHeader) byte {
	switch {
	case h.special && h.axis < 0:
		return vecZero
	case h.special:
		return vecUnit + byte(h.axis)
	case h.absolute:
		return vecAbsolute | byte(h.typ)<<1
	default:
		return vecDelta | h.mask<<3 | byte(h.typ)<<1
	}
}

func decodeVecHeader(b byte) (h vecHeader, ok bool) {
	switch {
	case b == vecZero:
		return vecHeader{special: true, axis: -1}, true
	case b >= vecUnit && b < vecUnit+4:
		return vecHeader{special: true, axis: int(b - vecUnit)}, true
	case b&vecDelta != 0:
		if b&vecAbsolute != 0 {
			return h, false
		}
		h.typ = compType(b>>1) & 3
		h.mask = (b >> 3) & 0x0f
		// an empty delta has exactly one spelling
		if h.mask == 0 && h.typ != compInt8 {
			return h, false
		}
		return h, true
	case b&vecAbsolute != 0 && b < 8:
		return vecHeader{absolute: true, typ: compType(b>>1) & 3}, true
	}
	return h, false
}

// pickType returns the narrowest component type holding every value exactly,
// any fraction forces float for all of them
func pickType(cs []float32) compType {
	t := compInt8
	for _, v := range cs {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
			return compFloat
		}
		switch {
		case f >= math.MinInt8 && f <= math.MaxInt8:
		case f >= math.MinInt16 && f <= math.MaxInt16:
			t = max(t, compInt16)
		case f >= math.MinInt32 && f <= math.MaxInt32:
			t = max(t, compInt32)
		default:
			return compFloat
		}
	}
	return t
}

func putComp(w []byte, t compType, v float32) {
	switch t {
	case compInt8:
		w[0] = byte(int8(v))
	case compInt16:
		le.PutUint16(w, uint16(int16(v)))
	case compInt32:
		le.PutUint32(w, uint32(int32(v)))
	default:
		le.PutUint32(w, math.Float32bits(v))
	}
}

func getComp(b []byte, t compType) float32 {
	switch t {
	case compInt8:
		return float32(int8(b[0]))
	case compInt16:
		return float32(int16(le.Uint16(b)))
	case compInt32:
		return float32(int32(le.Uint32(b)))
	default:
		return math.Float32frombits(le.Uint32(b))
	}
}

type vectorResolver[V any] struct {
	dim  int
	to   func(V) [4]float32
	from func([4]float32) V
}

var (
	Vector2Codec Resolver[Vector2] = vectorResolver[Vector2]{2,
		func(v Vector2) [4]float32 { return [4]float32{v.X, v.Y} },
		func(c [4]float32) Vector2 { return Vector2{c[0], c[1]} }}

	Vector3Codec Resolver[Vector3] = vectorResolver[Vector3]{3,
		func(v Vector3) [4]float32 { return [4]float32{v.X, v.Y, v.Z} },
		func(c [4]float32) Vector3 { return Vector3{c[0], c[1], c[2]} }}

	Vector4Codec Resolver[Vector4] = vectorResolver[Vector4]{4,
		func(v Vector4) [4]float32 { return [4]float32{v.X, v.Y, v.Z, v.W} },
		func(c [4]float32) Vector4 { return Vector4{c[0], c[1], c[2], c[3]} }}
)

func (r vectorResolver[V]) Size() int { return -1 }

func (r vectorResolver[V]) AutoAdvance() bool { return false }

// Write sends v in absolute mode
func (r vectorResolver[V]) Write(p *BytePayload, v V) error {
	c := r.to(v)
	cs := c[:r.dim]
	if axis, ok := specialAxis(cs); ok {
		return p.WriteByte(encodeVecHeader(vecHeader{special: true, axis: axis}))
	}
	t := pickType(cs)
	size := compSize[t]
	w, err := p.Slot(1 + r.dim*size)
	if err != nil {
		return err
	}
	w[0] = encodeVecHeader(vecHeader{absolute: true, typ: t})
	for i, x := range cs {
		putComp(w[1+i*size:], t, x)
	}
	p.Advance(len(w))
	return nil
}

// WriteDelta sends only the non zero components of d
func (r vectorResolver[V]) WriteDelta(p *BytePayload, d V) error {
	c := r.to(d)
	var mask uint8
	present := make([]float32, 0, 4)
	for i := 0; i < r.dim; i++ {
		if c[i] != 0 {
			mask |= 1 << i
			present = append(present, c[i])
		}
	}
	t := compInt8
	if mask != 0 {
		t = pickType(present)
	}
	size := compSize[t]
	w, err := p.Slot(1 + len(present)*size)
	if err != nil {
		return err
	}
	w[0] = encodeVecHeader(vecHeader{typ: t, mask: mask})
	for i, x := range present {
		putComp(w[1+i*size:], t, x)
	}
	p.Advance(len(w))
	return nil
}

func (r vectorResolver[V]) Read(p *BytePayload) (v V, res ReadResult) {
	mark := p.Offset()
	b, err := p.ReadByte()
	if err != nil {
		return v, Failed
	}
	h, ok := decodeVecHeader(b)
	if !ok {
		p.seek(mark)
		return v, Failed
	}
	var c [4]float32
	switch {
	case h.special:
		if h.axis >= r.dim {
			p.seek(mark)
			return v, Failed
		}
		if h.axis >= 0 {
			c[h.axis] = 1
		}
		return r.from(c), Success
	case h.absolute:
		if !r.readComps(p, &c, 1<<r.dim-1, h.typ) {
			p.seek(mark)
			return v, Failed
		}
		return r.from(c), Success
	default:
		if h.mask >= 1<<r.dim || !r.readComps(p, &c, h.mask, h.typ) {
			p.seek(mark)
			return v, Failed
		}
		return r.from(c), SuccessDelta
	}
}

func (r vectorResolver[V]) readComps(p *BytePayload, c *[4]float32, mask uint8, t compType) bool {
	size := compSize[t]
	for i := 0; i < r.dim; i++ {
		if mask&(1<<i) == 0 {
			continue
		}
		b, err := p.Next(size)
		if err != nil {
			return false
		}
		c[i] = getComp(b, t)
	}
	return true
}

func (r vectorResolver[V]) Sub(a, b V) V {
	ca, cb := r.to(a), r.to(b)
	for i := range ca {
		ca[i] -= cb[i]
	}
	return r.from(ca)
}

func (r vectorResolver[V]) Add(a, b V) V {
	ca, cb := r.to(a), r.to(b)
	for i := range ca {
		ca[i] += cb[i]
	}
	return r.from(ca)
}

// specialAxis reports the zero vector as -1 and a positive unit axis as its index
func specialAxis(cs []float32) (int, bool) {
	axis := -1
	for i, x := range cs {
		switch {
		case x == 0:
		case x == 1 && axis < 0:
			axis = i
		default:
			return 0, false
		}
	}
	return axis, true
}
