package particle

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrCountMismatch is returned when a payload does not hold exactly the number
// of particles it claims to.
var ErrCountMismatch = errors.New("particle: record count mismatch")

const headerSize = 4

// AppendRecord appends the fixed-width encoding of p to buf.
func AppendRecord(buf []byte, p Particle) []byte {
	for _, v := range [Words]float64{p.X, p.Y, p.VX, p.VY, p.AX, p.AY} {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
	}
	return buf
}

// AppendRecords appends the records for ps without a count header.
func AppendRecords(buf []byte, ps []Particle) []byte {
	for _, p := range ps {
		buf = AppendRecord(buf, p)
	}
	return buf
}

// DecodeRecords decodes a headerless payload. Its length must be a whole
// number of records.
func DecodeRecords(b []byte) ([]Particle, error) {
	if len(b)%Size != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrCountMismatch, len(b), Size)
	}
	out := make([]Particle, len(b)/Size)
	for i := range out {
		out[i] = readRecord(b[i*Size:])
	}
	return out, nil
}

// Encoder builds a counted payload: a uint32 record count followed by the
// records. The count is patched in by Bytes.
type Encoder struct {
	buf []byte
	n   int
}

// NewEncoder starts a counted payload in buf, which is truncated first.
func NewEncoder(buf []byte) *Encoder {
	return &Encoder{buf: append(buf[:0], 0, 0, 0, 0)}
}

func (e *Encoder) Add(p Particle) {
	e.buf = AppendRecord(e.buf, p)
	e.n++
}

func (e *Encoder) Len() int { return e.n }

// Bytes returns the finished payload.
func (e *Encoder) Bytes() []byte {
	binary.LittleEndian.PutUint32(e.buf, uint32(e.n))
	return e.buf
}

// Decode reads a counted payload produced by an Encoder. The announced count
// and the payload length must agree.
func Decode(b []byte) ([]Particle, error) {
	if len(b) < headerSize {
		return nil, fmt.Errorf("%w: payload of %d bytes has no header", ErrCountMismatch, len(b))
	}
	n := int(binary.LittleEndian.Uint32(b))
	body := b[headerSize:]
	if len(body) != n*Size {
		return nil, fmt.Errorf("%w: announced %d particles, received %d bytes", ErrCountMismatch, n, len(body))
	}
	return DecodeRecords(body)
}

func readRecord(b []byte) Particle {
	var w [Words]float64
	for i := range w {
		w[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return Particle{X: w[0], Y: w[1], VX: w[2], VY: w[3], AX: w[4], AY: w[5]}
}
