package slice

import (
	"math"

	"github.com/AlexxIT/go2avc/pkg/h264/ps"
)

// OldSliceParams - fields of previous slice that identify its picture, 7.4.1.2.4
type OldSliceParams struct {
	PPSID       uint32
	FrameNum    uint32
	FieldPic    bool
	BottomField bool
	NalRefIdc   uint32
	IdrFlag     bool // IDR of any view, non_idr_flag for MVC
	IdrPicID    uint32

	PicOrderCntLsb         uint32
	DeltaPicOrderCntBottom int32
	DeltaPicOrderCnt       [2]int32

	ViewID    uint32
	InterView bool
	Anchor    bool
	LayerID   int
}

// Reset - values that never match any slice, so next slice starts new picture
func (o *OldSliceParams) Reset() {
	*o = OldSliceParams{
		PPSID:                  math.MaxUint32,
		FrameNum:               math.MaxUint32,
		NalRefIdc:              math.MaxUint32,
		PicOrderCntLsb:         math.MaxUint32,
		DeltaPicOrderCntBottom: math.MaxInt32,
		DeltaPicOrderCnt:       [2]int32{math.MaxInt32, math.MaxInt32},
	}
}

// Copy - remember slice, POC fields are taken only for POC type that has them
func (o *OldSliceParams) Copy(h *Header, sps *ps.SPS) {
	o.PPSID = h.PPSID
	o.FrameNum = h.FrameNum
	o.FieldPic = h.FieldPic
	if h.FieldPic {
		o.BottomField = h.BottomField
	}

	o.NalRefIdc = uint32(h.NalRefIdc)
	o.IdrFlag = h.IsIDRView()
	if o.IdrFlag {
		o.IdrPicID = h.IdrPicID
	}

	switch sps.PicOrderCntType {
	case 0:
		o.PicOrderCntLsb = h.PicOrderCntLsb
		o.DeltaPicOrderCntBottom = h.DeltaPicOrderCntBottom
	case 1:
		o.DeltaPicOrderCnt = h.DeltaPicOrderCnt
	}

	o.ViewID = h.ViewID
	o.InterView = h.InterView
	o.Anchor = h.Anchor
	o.LayerID = h.LayerID
}

// IsNewPicture - slice is the first VCL NAL unit of a new picture
func IsNewPicture(hasActivePicture bool, h *Header, o *OldSliceParams, sps *ps.SPS, pps *ps.PPS) bool {
	result := !hasActivePicture

	result = result || o.PPSID != h.PPSID
	result = result || o.FrameNum != h.FrameNum
	result = result || o.FieldPic != h.FieldPic

	if h.FieldPic && o.FieldPic {
		result = result || o.BottomField != h.BottomField
	}

	refIdc := uint32(h.NalRefIdc)
	result = result || (o.NalRefIdc != refIdc && (o.NalRefIdc == 0 || refIdc == 0))
	idr := h.IsIDRView()
	result = result || o.IdrFlag != idr

	if idr && o.IdrFlag {
		result = result || o.IdrPicID != h.IdrPicID
	}

	switch sps.PicOrderCntType {
	case 0:
		result = result || o.PicOrderCntLsb != h.PicOrderCntLsb
		if pps.BottomFieldPicOrderInFramePresent && !h.FieldPic {
			result = result || o.DeltaPicOrderCntBottom != h.DeltaPicOrderCntBottom
		}
	case 1:
		if !sps.DeltaPicOrderAlwaysZero {
			result = result || o.DeltaPicOrderCnt[0] != h.DeltaPicOrderCnt[0]
			if pps.BottomFieldPicOrderInFramePresent && !h.FieldPic {
				result = result || o.DeltaPicOrderCnt[1] != h.DeltaPicOrderCnt[1]
			}
		}
	}

	result = result || h.ViewID != o.ViewID
	result = result || h.InterView != o.InterView
	result = result || h.Anchor != o.Anchor
	result = result || h.LayerID != o.LayerID

	return result
}
