package h264

import (
	"fmt"

	"github.com/AlexxIT/go2avc/pkg/bits"
	"github.com/pkg/errors"
)

// NALUnit - one NAL unit with emulation prevention bytes removed
type NALUnit struct {
	Type      byte
	RefIdc    uint8
	Forbidden bool

	// RBSP - header bytes + payload without emulation prevention bytes
	RBSP []byte
	// HeaderLen - payload parsing starts from this byte
	HeaderLen int

	// SVCExtension - svc_extension_flag from prefix or slice extension unit
	SVCExtension bool
	MVC          *MVCExtension
}

// MVCExtension - nal_unit_header_mvc_extension, H.7.3.1.1
type MVCExtension struct {
	NonIDR     bool
	PriorityID uint8
	ViewID     uint16
	TemporalID uint8
	Anchor     bool
	InterView  bool
}

func ParseNALUnit(b []byte) (*NALUnit, error) {
	if len(b) == 0 {
		return nil, errors.Wrap(ErrMalformedNalUnit, "empty")
	}

	n := &NALUnit{
		Forbidden: b[0]&0x80 != 0,
		RefIdc:    (b[0] >> 5) & 0b11,
		Type:      b[0] & 0x1F,
		HeaderLen: 1,
	}

	if n.Forbidden {
		return nil, errors.Wrapf(ErrMalformedNalUnit, "forbidden_zero_bit, type=%d", n.Type)
	}

	switch n.Type {
	case NALUTypePrefix, NALUTypeSliceExt:
		if len(b) < 4 {
			return nil, errors.Wrapf(ErrMalformedNalUnit, "short extension header, type=%d", n.Type)
		}

		r := bits.NewReader(b[1:4])
		n.SVCExtension = r.ReadFlag()
		if !n.SVCExtension {
			n.MVC = &MVCExtension{
				NonIDR:     r.ReadFlag(),
				PriorityID: r.ReadBits8(6),
				ViewID:     r.ReadBits16(10),
				TemporalID: r.ReadBits8(3),
				Anchor:     r.ReadFlag(),
				InterView:  r.ReadFlag(),
			}
			_ = r.ReadBit() // reserved_one_bit
		}
		n.HeaderLen = 4
	case NALUTypeSliceDepth:
		if len(b) < 4 {
			return nil, errors.Wrapf(ErrMalformedNalUnit, "short extension header, type=%d", n.Type)
		}
		n.HeaderLen = 4
	}

	payload := EmulationPreventionRemove(b[n.HeaderLen:])
	if len(payload) == len(b)-n.HeaderLen {
		n.RBSP = b
	} else {
		n.RBSP = make([]byte, n.HeaderLen+len(payload))
		copy(n.RBSP, b[:n.HeaderLen])
		copy(n.RBSP[n.HeaderLen:], payload)
	}

	return n, nil
}

// Reader - bit reader positioned right after NAL unit header
func (n *NALUnit) Reader() *bits.Reader {
	return bits.NewReaderAt(n.RBSP, n.HeaderLen)
}

// Payload - RBSP without header bytes
func (n *NALUnit) Payload() []byte {
	return n.RBSP[n.HeaderLen:]
}

func (n *NALUnit) IsIDR() bool {
	if n.Type == NALUTypeIFrame {
		return true
	}
	return n.MVC != nil && n.Type == NALUTypeSliceExt && !n.MVC.NonIDR
}

func (n *NALUnit) String() string {
	s := fmt.Sprintf("%s ref=%d size=%d", NALUTypeName(n.Type), n.RefIdc, len(n.RBSP))
	if n.MVC != nil {
		s += fmt.Sprintf(" view=%d anchor=%t inter=%t", n.MVC.ViewID, n.MVC.Anchor, n.MVC.InterView)
	}
	return s
}

// Marshal - header byte(s) + payload with emulation prevention, without start code
func (n *NALUnit) Marshal() []byte {
	b := make([]byte, 0, len(n.RBSP)+8)
	b = append(b, n.RBSP[:n.HeaderLen]...)
	return append(b, EmulationPreventionInsert(n.RBSP[n.HeaderLen:])...)
}
