package ps

import (
	"github.com/AlexxIT/go2avc/pkg/bits"
	"github.com/AlexxIT/go2avc/pkg/h264"
	"github.com/pkg/errors"
)

// PPS - pic_parameter_set_rbsp, 7.3.2.2
type PPS struct {
	Valid bool

	ID                                uint32
	SPSID                             uint32
	EntropyCodingMode                 bool // CABAC
	BottomFieldPicOrderInFramePresent bool

	NumSliceGroupsMinus1       uint32
	SliceGroupMapType          uint32
	RunLengthMinus1            []uint32
	TopLeft                    []uint32
	BottomRight                []uint32
	SliceGroupChangeDirection  bool
	SliceGroupChangeRateMinus1 uint32
	PicSizeInMapUnitsMinus1    uint32
	SliceGroupID               []uint32

	NumRefIdxL0DefaultActiveMinus1 uint32
	NumRefIdxL1DefaultActiveMinus1 uint32
	WeightedPred                   bool
	WeightedBipredIDC              uint32
	PicInitQPMinus26               int32
	PicInitQSMinus26               int32
	ChromaQPIndexOffset            int32
	DeblockingFilterControlPresent bool
	ConstrainedIntraPred           bool
	RedundantPicCntPresent         bool

	// more_rbsp_data() part
	Transform8x8Mode          bool
	ScalingMatrixPresent      bool
	Scaling                   ScalingMatrix
	SecondChromaQPIndexOffset int32
}

// DecodePPS - parse PPS NAL unit with header byte, chromaFormatIDC from referenced SPS
func DecodePPS(nalu []byte, chromaFormatIDC uint32) (*PPS, error) {
	n, err := h264.ParseNALUnit(nalu)
	if err != nil {
		return nil, err
	}
	if n.Type != h264.NALUTypePPS {
		return nil, errors.New("not PPS data")
	}
	return ParsePPS(n.Reader(), chromaFormatIDC)
}

func ParsePPS(r *bits.Reader, chromaFormatIDC uint32) (*PPS, error) {
	p := &PPS{}

	p.ID = r.ReadUEGolomb()
	p.SPSID = r.ReadUEGolomb()
	p.EntropyCodingMode = r.ReadFlag()
	p.BottomFieldPicOrderInFramePresent = r.ReadFlag()

	p.NumSliceGroupsMinus1 = r.ReadUEGolomb()
	if p.NumSliceGroupsMinus1 >= h264.MaxSliceGroups {
		return nil, errors.Errorf("pps: wrong num_slice_groups_minus1=%d", p.NumSliceGroupsMinus1)
	}

	if p.NumSliceGroupsMinus1 > 0 {
		p.SliceGroupMapType = r.ReadUEGolomb()
		switch p.SliceGroupMapType {
		case 0:
			p.RunLengthMinus1 = make([]uint32, p.NumSliceGroupsMinus1+1)
			for i := range p.RunLengthMinus1 {
				p.RunLengthMinus1[i] = r.ReadUEGolomb()
			}
		case 2:
			p.TopLeft = make([]uint32, p.NumSliceGroupsMinus1)
			p.BottomRight = make([]uint32, p.NumSliceGroupsMinus1)
			for i := range p.TopLeft {
				p.TopLeft[i] = r.ReadUEGolomb()
				p.BottomRight[i] = r.ReadUEGolomb()
			}
		case 3, 4, 5:
			p.SliceGroupChangeDirection = r.ReadFlag()
			p.SliceGroupChangeRateMinus1 = r.ReadUEGolomb()
		case 6:
			p.PicSizeInMapUnitsMinus1 = r.ReadUEGolomb()
			if p.PicSizeInMapUnitsMinus1 > 139264 {
				return nil, errors.Errorf("pps: wrong pic_size_in_map_units_minus1=%d", p.PicSizeInMapUnitsMinus1)
			}
			n := CeilLog2(p.NumSliceGroupsMinus1 + 1)
			p.SliceGroupID = make([]uint32, p.PicSizeInMapUnitsMinus1+1)
			for i := range p.SliceGroupID {
				p.SliceGroupID[i] = r.ReadBits(n)
			}
		}
	}

	p.NumRefIdxL0DefaultActiveMinus1 = r.ReadUEGolomb()
	p.NumRefIdxL1DefaultActiveMinus1 = r.ReadUEGolomb()
	p.WeightedPred = r.ReadFlag()
	p.WeightedBipredIDC = r.ReadBits(2)
	p.PicInitQPMinus26 = r.ReadSEGolomb()
	p.PicInitQSMinus26 = r.ReadSEGolomb()
	p.ChromaQPIndexOffset = r.ReadSEGolomb()
	p.DeblockingFilterControlPresent = r.ReadFlag()
	p.ConstrainedIntraPred = r.ReadFlag()
	p.RedundantPicCntPresent = r.ReadFlag()

	p.SecondChromaQPIndexOffset = p.ChromaQPIndexOffset

	if r.MoreRBSPData() {
		p.Transform8x8Mode = r.ReadFlag()
		p.ScalingMatrixPresent = r.ReadFlag()
		if p.ScalingMatrixPresent {
			n := 6
			if p.Transform8x8Mode {
				if chromaFormatIDC == 3 {
					n += 6
				} else {
					n += 2
				}
			}
			p.Scaling.parse(r, n)
		}
		p.SecondChromaQPIndexOffset = r.ReadSEGolomb()
	}

	if err := r.Err(); err != nil {
		return nil, errors.Wrap(err, "pps")
	}

	if p.ID >= h264.MaxPPSCount || p.SPSID >= h264.MaxSPSCount {
		return nil, errors.Wrapf(h264.ErrInvalidParameterSet, "pps: wrong id=%d sps_id=%d", p.ID, p.SPSID)
	}
	if p.NumRefIdxL0DefaultActiveMinus1 >= h264.MaxRefs || p.NumRefIdxL1DefaultActiveMinus1 >= h264.MaxRefs {
		return nil, errors.New("pps: wrong num_ref_idx_default_active")
	}

	p.Valid = true
	return p, nil
}

// SliceGroupChangeRate - slice_group_change_rate_minus1 + 1
func (p *PPS) SliceGroupChangeRate() uint32 {
	return p.SliceGroupChangeRateMinus1 + 1
}

// HasSliceGroupChangeCycle - slice header carries slice_group_change_cycle
func (p *PPS) HasSliceGroupChangeCycle() bool {
	return p.NumSliceGroupsMinus1 > 0 && p.SliceGroupMapType >= 3 && p.SliceGroupMapType <= 5
}

// Equal - PPS with the same id must not change current picture
func (p *PPS) Equal(o *PPS) bool {
	if p == nil || o == nil {
		return p == o
	}
	return p.ID == o.ID && p.SPSID == o.SPSID &&
		p.EntropyCodingMode == o.EntropyCodingMode &&
		p.BottomFieldPicOrderInFramePresent == o.BottomFieldPicOrderInFramePresent &&
		p.NumSliceGroupsMinus1 == o.NumSliceGroupsMinus1 &&
		p.SliceGroupMapType == o.SliceGroupMapType &&
		equalUint32(p.RunLengthMinus1, o.RunLengthMinus1) &&
		equalUint32(p.TopLeft, o.TopLeft) && equalUint32(p.BottomRight, o.BottomRight) &&
		p.SliceGroupChangeDirection == o.SliceGroupChangeDirection &&
		p.SliceGroupChangeRateMinus1 == o.SliceGroupChangeRateMinus1 &&
		p.PicSizeInMapUnitsMinus1 == o.PicSizeInMapUnitsMinus1 &&
		equalUint32(p.SliceGroupID, o.SliceGroupID) &&
		p.NumRefIdxL0DefaultActiveMinus1 == o.NumRefIdxL0DefaultActiveMinus1 &&
		p.NumRefIdxL1DefaultActiveMinus1 == o.NumRefIdxL1DefaultActiveMinus1 &&
		p.WeightedPred == o.WeightedPred && p.WeightedBipredIDC == o.WeightedBipredIDC &&
		p.PicInitQPMinus26 == o.PicInitQPMinus26 && p.PicInitQSMinus26 == o.PicInitQSMinus26 &&
		p.ChromaQPIndexOffset == o.ChromaQPIndexOffset &&
		p.DeblockingFilterControlPresent == o.DeblockingFilterControlPresent &&
		p.ConstrainedIntraPred == o.ConstrainedIntraPred &&
		p.RedundantPicCntPresent == o.RedundantPicCntPresent &&
		p.Transform8x8Mode == o.Transform8x8Mode &&
		p.ScalingMatrixPresent == o.ScalingMatrixPresent && p.Scaling == o.Scaling &&
		p.SecondChromaQPIndexOffset == o.SecondChromaQPIndexOffset
}

func equalUint32(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// CeilLog2 - Ceil(Log2(v)), 0 for v <= 1
func CeilLog2(v uint32) byte {
	var n byte
	if v <= 1 {
		return 0
	}
	for v--; v > 0; v >>= 1 {
		n++
	}
	return n
}
