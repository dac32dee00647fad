package slice

import (
	"github.com/AlexxIT/go2avc/pkg/bits"
	"github.com/AlexxIT/go2avc/pkg/h264"
)

// TraceFunc - receives every syntax element with bit position of its first bit
type TraceFunc func(name string, pos int, value int64)

// Reader - bits.Reader over slice NAL unit payload with named syntax elements
type Reader struct {
	*bits.Reader

	NALU  *h264.NALUnit
	Trace TraceFunc
}

func NewReader(n *h264.NALUnit, trace TraceFunc) *Reader {
	return &Reader{Reader: n.Reader(), NALU: n, Trace: trace}
}

func (r *Reader) ue(name string) uint32 {
	pos := r.BitPos()
	v := r.ReadUEGolomb()
	if r.Trace != nil {
		r.Trace(name, pos, int64(v))
	}
	return v
}

func (r *Reader) se(name string) int32 {
	pos := r.BitPos()
	v := r.ReadSEGolomb()
	if r.Trace != nil {
		r.Trace(name, pos, int64(v))
	}
	return v
}

func (r *Reader) u(n byte, name string) uint32 {
	pos := r.BitPos()
	v := r.ReadBits(n)
	if r.Trace != nil {
		r.Trace(name, pos, int64(v))
	}
	return v
}

func (r *Reader) flag(name string) bool {
	return r.u(1, name) != 0
}
