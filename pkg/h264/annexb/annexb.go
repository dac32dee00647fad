// Package annexb - H264 byte stream format (Annex B), start code delimited NAL units
package annexb

import (
	"bufio"
	"bytes"
	"io"

	"github.com/AlexxIT/go2avc/pkg/h264"
	"github.com/pkg/errors"
)

const StartCode = "\x00\x00\x00\x01"

const readSize = 1 << 16

// Reader - pull iterator over NAL units from Annex B stream
// Every NAL unit is returned without start code and trailing zero bytes.
type Reader struct {
	rd  *bufio.Reader
	buf []byte
	eof bool

	started bool
}

func NewReader(rd io.Reader) *Reader {
	return &Reader{rd: bufio.NewReaderSize(rd, readSize)}
}

// NextNALU - returns h264.ErrEndOfStream when there are no more units
func (r *Reader) NextNALU() ([]byte, error) {
	if !r.started {
		if err := r.skipFirstStartCode(); err != nil {
			return nil, err
		}
		r.started = true
	}

	for {
		// search next start code in collected data
		if i, n := IndexStartCode(r.buf, 0); i >= 0 {
			unit := trimZeros(r.buf[:i])
			r.buf = r.buf[i+n:]
			if len(unit) == 0 {
				continue // 00 00 01 00 00 01
			}
			return unit, nil
		}

		if r.eof {
			if len(r.buf) == 0 {
				return nil, h264.ErrEndOfStream
			}
			unit := trimZeros(r.buf)
			r.buf = nil
			if len(unit) == 0 {
				return nil, h264.ErrEndOfStream
			}
			return unit, nil
		}

		if err := r.fill(); err != nil {
			return nil, err
		}
	}
}

func (r *Reader) fill() error {
	chunk := make([]byte, readSize)
	n, err := r.rd.Read(chunk)
	r.buf = append(r.buf, chunk[:n]...)
	if err == io.EOF {
		r.eof = true
		return nil
	}
	return err
}

// stream must begin with zero bytes and 0x01 (leading_zero_8bits allowed)
func (r *Reader) skipFirstStartCode() error {
	var zeros int
	for {
		b, err := r.rd.ReadByte()
		if err != nil {
			if err == io.EOF {
				if zeros == 0 {
					return h264.ErrEndOfStream
				}
				return errors.Wrap(h264.ErrMalformedNalUnit, "truncated start code")
			}
			return err
		}

		switch {
		case b == 0:
			zeros++
		case b == 1 && zeros >= 2:
			return nil
		default:
			return errors.Wrapf(h264.ErrMalformedNalUnit, "no start code, byte=%02X", b)
		}
	}
}

// IndexStartCode - position and length of the first 3 byte start code,
// 4 byte start codes are handled by trimming trailing zeros of previous unit
func IndexStartCode(b []byte, from int) (int, int) {
	for i := from; i+2 < len(b); {
		// check "start code" (first 2 bytes)
		if b[i+1] != 0 {
			i += 2
			continue
		}
		if b[i] != 0 {
			i++
			continue
		}
		if b[i+2] == 1 {
			return i, 3
		}
		i++
	}
	return -1, 0
}

func trimZeros(b []byte) []byte {
	return bytes.TrimRight(b, "\x00")
}

// Split - all NAL units from memory buffer
func Split(b []byte) (units [][]byte, err error) {
	r := NewReader(bytes.NewReader(b))
	for {
		unit, err := r.NextNALU()
		if err != nil {
			if err == h264.ErrEndOfStream {
				return units, nil
			}
			return units, err
		}
		units = append(units, unit)
	}
}

// Join - NAL units with 4 byte start codes
func Join(units ...[]byte) []byte {
	var b []byte
	for _, unit := range units {
		b = append(b, StartCode...)
		b = append(b, unit...)
	}
	return b
}
