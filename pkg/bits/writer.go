package bits

import "math/bits"

type Writer struct {
	buf  []byte // total buf
	bits byte   // bits used in last byte, 0 means byte aligned
}

func NewWriter() *Writer {
	return &Writer{}
}

func (w *Writer) WriteBit(b byte) {
	if w.bits == 0 {
		w.buf = append(w.buf, 0)
	}
	w.buf[len(w.buf)-1] |= (b & 1) << (7 - w.bits)
	if w.bits++; w.bits == 8 {
		w.bits = 0
	}
}

func (w *Writer) WriteFlag(b bool) {
	if b {
		w.WriteBit(1)
	} else {
		w.WriteBit(0)
	}
}

func (w *Writer) WriteBits(v uint32, n byte) {
	for i := n - 1; i != 255; i-- {
		w.WriteBit(byte(v>>i) & 0b1)
	}
}

func (w *Writer) WriteBits8(v, n byte) {
	for i := n - 1; i != 255; i-- {
		w.WriteBit((v >> i) & 0b1)
	}
}

func (w *Writer) WriteByte(b byte) {
	w.WriteBits8(b, 8)
}

func (w *Writer) WriteUEGolomb(v uint32) {
	u := uint64(v) + 1
	n := byte(bits.Len64(u))
	for i := byte(1); i < n; i++ {
		w.WriteBit(0)
	}
	for i := n - 1; i != 255; i-- {
		w.WriteBit(byte(u>>i) & 0b1)
	}
}

func (w *Writer) WriteSEGolomb(v int32) {
	if v > 0 {
		w.WriteUEGolomb(uint32(v)*2 - 1)
	} else {
		w.WriteUEGolomb(uint32(-int64(v)) * 2)
	}
}

// WriteRBSPTrailing - rbsp_stop_one_bit and alignment zero bits
func (w *Writer) WriteRBSPTrailing() {
	w.WriteBit(1)
	for w.bits != 0 {
		w.WriteBit(0)
	}
}

func (w *Writer) BitLen() int {
	if w.bits == 0 {
		return len(w.buf) * 8
	}
	return (len(w.buf)-1)*8 + int(w.bits)
}

func (w *Writer) Bytes() []byte {
	return w.buf
}
