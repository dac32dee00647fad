// Package slice - slice header syntax (7.3.3) and detection of the first slice of a picture
package slice

import (
	"fmt"

	"github.com/AlexxIT/go2avc/pkg/h264"
)

// Header - slice_header with values derived from NAL unit and active parameter sets
type Header struct {
	// from NAL unit
	NalType   byte
	NalRefIdc uint8
	IdrFlag   bool // nal_unit_type == 5

	// MVC, from slice extension or prefix NAL unit
	SVCExtension bool
	MVC          bool // coded slice extension with nal_unit_header_mvc_extension
	NonIDR       bool
	ViewID       uint32
	InterView    bool
	Anchor       bool
	LayerID      int // view order index

	// first part
	FirstMbInSlice uint32
	SliceType      uint32 // 0..4
	SliceTypeRaw   uint32 // 0..9, 5..9 - all slices of picture have same type
	PPSID          uint32
	ColourPlaneID  uint32

	FrameNum    uint32
	FieldPic    bool
	BottomField bool
	Structure   h264.PictureStructure
	MbAff       bool

	IdrPicID uint32

	PicOrderCntLsb         uint32
	DeltaPicOrderCntBottom int32
	DeltaPicOrderCnt       [2]int32

	RedundantPicCnt     uint32
	DirectSpatialMvPred bool

	NumRefIdxActiveOverride bool
	NumRefIdxActive         [2]uint32

	RefPicListModificationFlag [2]bool
	RefPicListModification     [2][]RefPicListMod

	PredWeightTable *PredWeightTable

	DecRefPicMarking DecRefPicMarking

	CabacInitIDC uint32
	SliceQPDelta int32
	QP           int32

	SPForSwitch  bool
	SliceQSDelta int32
	QS           int32

	DisableDeblockingFilterIDC uint32
	SliceAlphaC0OffsetDiv2     int32
	SliceBetaOffsetDiv2        int32

	SliceGroupChangeCycle uint32

	// data partition A
	SliceID uint32

	Entropy EntropyMode

	// bits used by header, for instrumentation
	HeaderBits int
}

// RefPicListMod - one command of ref_pic_list_modification or ref_pic_list_mvc_modification
type RefPicListMod struct {
	IDC uint32 // modification_of_pic_nums_idc

	AbsDiffPicNumMinus1  uint32 // IDC 0, 1
	LongTermPicNum       uint32 // IDC 2
	AbsDiffViewIdxMinus1 uint32 // IDC 4, 5
}

// PredWeightTable - pred_weight_table, 7.3.3.2, absent weights have default values
type PredWeightTable struct {
	LumaLog2WeightDenom   uint32
	ChromaLog2WeightDenom uint32

	Luma   [2][]Weight
	Chroma [2][][2]Weight // Cb, Cr
}

type Weight struct {
	Flag   bool
	Weight int32
	Offset int32
}

// DecRefPicMarking - dec_ref_pic_marking, 7.3.3.3
type DecRefPicMarking struct {
	// IDR pictures
	NoOutputOfPriorPics bool
	LongTermReference   bool

	// non IDR pictures
	AdaptiveRefPicMarking bool
	MMCO                  []MMCO // without terminating zero operation
}

// MMCO - memory_management_control_operation with its operands
type MMCO struct {
	Op uint32

	DifferenceOfPicNumsMinus1 uint32 // 1, 3
	LongTermPicNum            uint32 // 2
	LongTermFrameIdx          uint32 // 3, 6
	MaxLongTermFrameIdxPlus1  uint32 // 4
}

// HasMMCO5 - marking contains memory_management_control_operation equal to 5
func (m *DecRefPicMarking) HasMMCO5() bool {
	for _, op := range m.MMCO {
		if op.Op == 5 {
			return true
		}
	}
	return false
}

// EntropyMode - entropy decoder variant for slice data
type EntropyMode byte

const (
	CAVLC EntropyMode = iota
	CAVLCLossless
	CABAC
	CABACLossless
)

func (e EntropyMode) IsCABAC() bool {
	return e == CABAC || e == CABACLossless
}

func (e EntropyMode) IsLossless() bool {
	return e == CAVLCLossless || e == CABACLossless
}

func (e EntropyMode) String() string {
	switch e {
	case CAVLC:
		return "CAVLC"
	case CAVLCLossless:
		return "CAVLC-lossless"
	case CABAC:
		return "CABAC"
	case CABACLossless:
		return "CABAC-lossless"
	}
	return "???"
}

// IsIDRView - IDR picture or IDR view component of non-base view
func (h *Header) IsIDRView() bool {
	return h.IdrFlag || (h.MVC && !h.NonIDR)
}

// IsReference - nal_ref_idc != 0
func (h *Header) IsReference() bool {
	return h.NalRefIdc != 0
}

// MaxPicNum - MaxFrameNum for frames, 2 * MaxFrameNum for fields
func (h *Header) MaxPicNum(maxFrameNum uint32) uint32 {
	if h.Structure == h264.Frame {
		return maxFrameNum
	}
	return 2 * maxFrameNum
}

// CurrPicNum - frame_num for frames, 2 * frame_num + 1 for fields
func (h *Header) CurrPicNum() int32 {
	if h.Structure == h264.Frame {
		return int32(h.FrameNum)
	}
	return 2*int32(h.FrameNum) + 1
}

func (h *Header) String() string {
	s := fmt.Sprintf(
		"%s %s frame_num=%d pps=%d qp=%d refs=%d/%d",
		h264.SliceTypeName(h.SliceType), h.Structure, h.FrameNum, h.PPSID, h.QP,
		h.NumRefIdxActive[0], h.NumRefIdxActive[1],
	)
	if h.IdrFlag {
		s += fmt.Sprintf(" idr=%d", h.IdrPicID)
	}
	if h.MVC || h.ViewID != 0 {
		s += fmt.Sprintf(" view=%d", h.ViewID)
	}
	return s
}
