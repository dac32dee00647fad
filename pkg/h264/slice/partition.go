package slice

import (
	"github.com/AlexxIT/go2avc/pkg/h264"
	"github.com/AlexxIT/go2avc/pkg/h264/ps"
	"github.com/pkg/errors"
)

// ParseSliceID - slice_id after slice_header of data partition A, 7.3.2.8
func ParseSliceID(r *Reader, h *Header) error {
	if h.Entropy.IsCABAC() {
		return errors.Wrap(h264.ErrMalformedNalUnit, "slice: data partition with CABAC")
	}
	h.SliceID = r.ue("NALU: DP_A slice_id")
	return errors.Wrap(r.Err(), "slice: data partition A")
}

// Partition - header of slice_data_partition_b or slice_data_partition_c, 7.3.2.9, 7.3.2.10
type Partition struct {
	Type            byte
	SliceID         uint32
	ColourPlaneID   uint32
	RedundantPicCnt uint32

	// slice_data position
	DataBits int
}

func ParsePartition(r *Reader, sps *ps.SPS, pps *ps.PPS) (*Partition, error) {
	p := &Partition{Type: r.NALU.Type}

	var name string
	switch p.Type {
	case h264.NALUTypeDPB:
		name = "NALU: DP_B "
	case h264.NALUTypeDPC:
		name = "NALU: DP_C "
	default:
		return nil, errors.Errorf("slice: wrong partition type=%d", p.Type)
	}

	p.SliceID = r.ue(name + "slice_id")
	if sps.SeparateColourPlane {
		p.ColourPlaneID = r.u(2, name+"colour_plane_id")
	}
	if pps.RedundantPicCntPresent {
		p.RedundantPicCnt = r.ue(name + "redundant_pic_cnt")
	}

	if err := r.Err(); err != nil {
		return nil, errors.Wrap(err, "slice: data partition")
	}

	p.DataBits = r.BitPos()
	return p, nil
}

// Matches - partition belongs to slice from partition A
func (p *Partition) Matches(h *Header) bool {
	return p.SliceID == h.SliceID && p.ColourPlaneID == h.ColourPlaneID
}
