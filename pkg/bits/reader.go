package bits

import "github.com/pkg/errors"

// ErrExhausted - reading past the end of the RBSP
var ErrExhausted = errors.New("bitstream exhausted")

type Reader struct {
	EOF bool // if end of buffer raised during reading

	buf  []byte // total buf
	byte byte   // current byte
	bits byte   // bits left in byte
	pos  int    // current pos in buf
}

func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// NewReaderAt - start reading from byte offset, used after NAL unit header
func NewReaderAt(b []byte, offset int) *Reader {
	if offset > len(b) {
		return &Reader{buf: b, pos: len(b), EOF: true}
	}
	return &Reader{buf: b, pos: offset}
}

// Err - sticky error, stays set after first read past the end
func (r *Reader) Err() error {
	if r.EOF {
		return ErrExhausted
	}
	return nil
}

//goland:noinspection GoStandardMethods
func (r *Reader) ReadByte() byte {
	if r.bits != 0 {
		return r.ReadBits8(8)
	}

	if r.pos >= len(r.buf) {
		r.EOF = true
		return 0
	}

	b := r.buf[r.pos]
	r.pos++
	return b
}

func (r *Reader) ReadUint16() uint16 {
	if r.bits != 0 {
		return r.ReadBits16(16)
	}
	return uint16(r.ReadByte())<<8 | uint16(r.ReadByte())
}

func (r *Reader) ReadUint32() uint32 {
	if r.bits != 0 {
		return r.ReadBits(32)
	}
	return uint32(r.ReadByte())<<24 | uint32(r.ReadByte())<<16 | uint32(r.ReadByte())<<8 | uint32(r.ReadByte())
}

func (r *Reader) ReadBit() byte {
	if r.bits == 0 {
		if r.pos >= len(r.buf) {
			r.EOF = true
			return 0
		}
		r.byte = r.buf[r.pos]
		r.pos++
		r.bits = 7
	} else {
		r.bits--
	}

	return (r.byte >> r.bits) & 0b1
}

func (r *Reader) ReadFlag() bool {
	return r.ReadBit() == 1
}

// ReadBits - read up to 32 bits MSB first, n=0 returns 0
func (r *Reader) ReadBits(n byte) (res uint32) {
	for i := n - 1; i != 255; i-- {
		res |= uint32(r.ReadBit()) << i
	}
	return
}

func (r *Reader) ReadBits8(n byte) (res uint8) {
	for i := n - 1; i != 255; i-- {
		res |= r.ReadBit() << i
	}
	return
}

func (r *Reader) ReadBits16(n byte) (res uint16) {
	for i := n - 1; i != 255; i-- {
		res |= uint16(r.ReadBit()) << i
	}
	return
}

func (r *Reader) ReadBits64(n byte) (res uint64) {
	for i := n - 1; i != 255; i-- {
		res |= uint64(r.ReadBit()) << i
	}
	return
}

// ReadUEGolomb - ReadExponentialGolomb (unsigned)
func (r *Reader) ReadUEGolomb() uint32 {
	var size byte
	for size = 0; size < 32; size++ {
		if b := r.ReadBit(); b != 0 || r.EOF {
			break
		}
	}
	if size == 32 {
		// codeNum doesn't fit uint32, only possible in broken stream
		r.EOF = true
		return 0
	}
	return r.ReadBits(size) + (1 << size) - 1
}

// ReadSEGolomb - ReadSignedExponentialGolomb
func (r *Reader) ReadSEGolomb() int32 {
	if b := r.ReadUEGolomb(); b%2 == 0 {
		return -int32(b >> 1)
	} else {
		return int32(b>>1) + 1
	}
}

func (r *Reader) Skip(n int) {
	for ; n > 0; n-- {
		_ = r.ReadBit()
	}
}

// BitPos - number of bits consumed from the start of buf
func (r *Reader) BitPos() int {
	return r.pos*8 - int(r.bits)
}

func (r *Reader) ByteAligned() bool {
	return r.bits == 0
}

// MoreRBSPData - true if there is data before rbsp_stop_one_bit
func (r *Reader) MoreRBSPData() bool {
	if r.EOF {
		return false
	}

	last := len(r.buf) - 1
	for last >= 0 && r.buf[last] == 0 {
		last--
	}
	if last < 0 {
		return false
	}

	// position of stop bit from the start of buf
	stop := last*8 + 7
	for b := r.buf[last]; b&1 == 0; b >>= 1 {
		stop--
	}

	return r.BitPos() < stop
}

func (r *Reader) Left() []byte {
	return r.buf[r.pos:]
}
