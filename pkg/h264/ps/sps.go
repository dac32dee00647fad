package ps

import (
	"fmt"

	"github.com/AlexxIT/go2avc/pkg/bits"
	"github.com/AlexxIT/go2avc/pkg/h264"
	"github.com/pkg/errors"
)

// Google to "h264 specification pdf"
// https://www.itu.int/rec/dologin_pub.asp?lang=e&id=T-REC-H.264-201602-S!!PDF-E&type=items

// SPS - seq_parameter_set_data, 7.3.2.1.1
type SPS struct {
	Valid bool

	ProfileIDC  uint8
	Constraints uint8 // constraint_set0_flag..constraint_set5_flag + reserved_zero_2bits
	LevelIDC    uint8
	ID          uint32

	ChromaFormatIDC       uint32
	SeparateColourPlane   bool
	BitDepthLumaMinus8    uint32
	BitDepthChromaMinus8  uint32
	QpprimeYZeroTransform bool

	ScalingMatrixPresent bool
	Scaling              ScalingMatrix

	Log2MaxFrameNumMinus4          uint32
	PicOrderCntType                uint32
	Log2MaxPicOrderCntLsbMinus4    uint32
	DeltaPicOrderAlwaysZero        bool
	OffsetForNonRefPic             int32
	OffsetForTopToBottomField      int32
	NumRefFramesInPicOrderCntCycle uint32
	OffsetForRefFrame              []int32

	NumRefFrames          uint32
	GapsInFrameNumAllowed bool

	PicWidthInMbsMinus1       uint32
	PicHeightInMapUnitsMinus1 uint32
	FrameMbsOnly              bool
	MbAdaptiveFrameField      bool
	Direct8x8Inference        bool

	FrameCropping    bool
	FrameCropLeft    uint32
	FrameCropRight   uint32
	FrameCropTop     uint32
	FrameCropBottom  uint32
	VUIParamsPresent bool
	VUI              VUI
}

// VUI - vui_parameters, E.1.1
type VUI struct {
	AspectRatioInfoPresent bool
	AspectRatioIDC         uint8
	SarWidth               uint16
	SarHeight              uint16

	OverscanInfoPresent bool
	OverscanAppropriate bool

	VideoSignalTypePresent   bool
	VideoFormat              uint8
	VideoFullRange           bool
	ColourDescriptionPresent bool
	ColourPrimaries          uint8
	TransferCharacteristics  uint8
	MatrixCoefficients       uint8

	ChromaLocInfoPresent  bool
	ChromaSampleLocTop    uint32
	ChromaSampleLocBottom uint32
	TimingInfoPresent     bool
	NumUnitsInTick        uint32
	TimeScale             uint32
	FixedFrameRate        bool
	NalHRDPresent         bool
	NalHRD                HRD
	VclHRDPresent         bool
	VclHRD                HRD
	LowDelayHRD           bool
	PicStructPresent      bool
	BitstreamRestriction  bool
	MotionVectorsOverPic  bool
	MaxBytesPerPicDenom   uint32
	MaxBitsPerMbDenom     uint32
	Log2MaxMvLengthHor    uint32
	Log2MaxMvLengthVer    uint32
	MaxNumReorderFrames   uint32
	MaxDecFrameBuffering  uint32
}

// HRD - hrd_parameters, E.1.2
type HRD struct {
	CpbCntMinus1       uint32
	BitRateScale       uint8
	CpbSizeScale       uint8
	BitRateValueMinus1 []uint32
	CpbSizeValueMinus1 []uint32
	CbrFlag            []bool

	InitialCpbRemovalDelayLengthMinus1 uint8
	CpbRemovalDelayLengthMinus1        uint8
	DpbOutputDelayLengthMinus1         uint8
	TimeOffsetLength                   uint8
}

// ScalingMatrix - lists in zig-zag scan order, 6 4x4 lists and up to 6 8x8 lists
type ScalingMatrix struct {
	Present    [12]bool
	UseDefault [12]bool
	List4x4    [6][16]int32
	List8x8    [6][64]int32
}

// DecodeSPS - parse SPS NAL unit with header byte
func DecodeSPS(nalu []byte) (*SPS, error) {
	n, err := h264.ParseNALUnit(nalu)
	if err != nil {
		return nil, err
	}
	if n.Type != h264.NALUTypeSPS {
		return nil, errors.New("not SPS data")
	}
	return ParseSPS(n.Reader())
}

func ParseSPS(r *bits.Reader) (*SPS, error) {
	s := &SPS{}
	s.parseData(r)
	if err := r.Err(); err != nil {
		return nil, errors.Wrap(err, "sps")
	}
	if err := s.check(); err != nil {
		return nil, errors.Wrap(err, "sps")
	}
	s.Valid = true
	return s, nil
}

// check - ranges of 7.4.2.1.1 that the rest of decoding relies on
func (s *SPS) check() error {
	switch {
	case s.ID >= h264.MaxSPSCount:
		return errors.Wrapf(h264.ErrInvalidParameterSet, "wrong id=%d", s.ID)
	case s.Log2MaxFrameNumMinus4 > 12:
		return errors.Wrapf(h264.ErrInvalidParameterSet, "wrong log2_max_frame_num_minus4=%d", s.Log2MaxFrameNumMinus4)
	case s.PicOrderCntType > 2:
		return errors.Wrapf(h264.ErrInvalidParameterSet, "wrong pic_order_cnt_type=%d", s.PicOrderCntType)
	case s.Log2MaxPicOrderCntLsbMinus4 > 12:
		return errors.Wrapf(h264.ErrInvalidParameterSet, "wrong log2_max_pic_order_cnt_lsb_minus4=%d", s.Log2MaxPicOrderCntLsbMinus4)
	}
	return nil
}

func (s *SPS) parseData(r *bits.Reader) {
	s.ProfileIDC = r.ReadByte()
	s.Constraints = r.ReadByte()
	s.LevelIDC = r.ReadByte()
	s.ID = r.ReadUEGolomb()

	s.ChromaFormatIDC = 1

	if h264.IsFRExtProfile(s.ProfileIDC) {
		s.ChromaFormatIDC = r.ReadUEGolomb()
		if s.ChromaFormatIDC == 3 {
			s.SeparateColourPlane = r.ReadFlag()
		}

		s.BitDepthLumaMinus8 = r.ReadUEGolomb()
		s.BitDepthChromaMinus8 = r.ReadUEGolomb()
		s.QpprimeYZeroTransform = r.ReadFlag()

		s.ScalingMatrixPresent = r.ReadFlag()
		if s.ScalingMatrixPresent {
			n := 8
			if s.ChromaFormatIDC == 3 {
				n = 12
			}
			s.Scaling.parse(r, n)
		}
	}

	s.Log2MaxFrameNumMinus4 = r.ReadUEGolomb()

	s.PicOrderCntType = r.ReadUEGolomb()
	switch s.PicOrderCntType {
	case 0:
		s.Log2MaxPicOrderCntLsbMinus4 = r.ReadUEGolomb()
	case 1:
		s.DeltaPicOrderAlwaysZero = r.ReadFlag()
		s.OffsetForNonRefPic = r.ReadSEGolomb()
		s.OffsetForTopToBottomField = r.ReadSEGolomb()

		s.NumRefFramesInPicOrderCntCycle = r.ReadUEGolomb()
		if s.NumRefFramesInPicOrderCntCycle > 255 {
			r.EOF = true // broken stream
			return
		}
		s.OffsetForRefFrame = make([]int32, s.NumRefFramesInPicOrderCntCycle)
		for i := range s.OffsetForRefFrame {
			s.OffsetForRefFrame[i] = r.ReadSEGolomb()
		}
	}

	s.NumRefFrames = r.ReadUEGolomb()
	s.GapsInFrameNumAllowed = r.ReadFlag()

	s.PicWidthInMbsMinus1 = r.ReadUEGolomb()
	s.PicHeightInMapUnitsMinus1 = r.ReadUEGolomb()

	s.FrameMbsOnly = r.ReadFlag()
	if !s.FrameMbsOnly {
		s.MbAdaptiveFrameField = r.ReadFlag()
	}

	s.Direct8x8Inference = r.ReadFlag()

	s.FrameCropping = r.ReadFlag()
	if s.FrameCropping {
		s.FrameCropLeft = r.ReadUEGolomb()
		s.FrameCropRight = r.ReadUEGolomb()
		s.FrameCropTop = r.ReadUEGolomb()
		s.FrameCropBottom = r.ReadUEGolomb()
	}

	s.VUIParamsPresent = r.ReadFlag()
	if s.VUIParamsPresent {
		s.VUI.parse(r)
	}
}

func (v *VUI) parse(r *bits.Reader) {
	v.AspectRatioInfoPresent = r.ReadFlag()
	if v.AspectRatioInfoPresent {
		v.AspectRatioIDC = r.ReadByte()
		if v.AspectRatioIDC == 255 { // Extended_SAR
			v.SarWidth = r.ReadUint16()
			v.SarHeight = r.ReadUint16()
		}
	}

	v.OverscanInfoPresent = r.ReadFlag()
	if v.OverscanInfoPresent {
		v.OverscanAppropriate = r.ReadFlag()
	}

	v.VideoSignalTypePresent = r.ReadFlag()
	if v.VideoSignalTypePresent {
		v.VideoFormat = r.ReadBits8(3)
		v.VideoFullRange = r.ReadFlag()

		v.ColourDescriptionPresent = r.ReadFlag()
		if v.ColourDescriptionPresent {
			v.ColourPrimaries = r.ReadByte()
			v.TransferCharacteristics = r.ReadByte()
			v.MatrixCoefficients = r.ReadByte()
		}
	}

	v.ChromaLocInfoPresent = r.ReadFlag()
	if v.ChromaLocInfoPresent {
		v.ChromaSampleLocTop = r.ReadUEGolomb()
		v.ChromaSampleLocBottom = r.ReadUEGolomb()
	}

	v.TimingInfoPresent = r.ReadFlag()
	if v.TimingInfoPresent {
		v.NumUnitsInTick = r.ReadUint32()
		v.TimeScale = r.ReadUint32()
		v.FixedFrameRate = r.ReadFlag()
	}

	v.NalHRDPresent = r.ReadFlag()
	if v.NalHRDPresent {
		v.NalHRD.parse(r)
	}

	v.VclHRDPresent = r.ReadFlag()
	if v.VclHRDPresent {
		v.VclHRD.parse(r)
	}

	if v.NalHRDPresent || v.VclHRDPresent {
		v.LowDelayHRD = r.ReadFlag()
	}

	v.PicStructPresent = r.ReadFlag()

	v.BitstreamRestriction = r.ReadFlag()
	if v.BitstreamRestriction {
		v.MotionVectorsOverPic = r.ReadFlag()
		v.MaxBytesPerPicDenom = r.ReadUEGolomb()
		v.MaxBitsPerMbDenom = r.ReadUEGolomb()
		v.Log2MaxMvLengthHor = r.ReadUEGolomb()
		v.Log2MaxMvLengthVer = r.ReadUEGolomb()
		v.MaxNumReorderFrames = r.ReadUEGolomb()
		v.MaxDecFrameBuffering = r.ReadUEGolomb()
	}
}

func (h *HRD) parse(r *bits.Reader) {
	h.CpbCntMinus1 = r.ReadUEGolomb()
	if h.CpbCntMinus1 >= 32 {
		r.EOF = true // broken stream
		return
	}

	h.BitRateScale = r.ReadBits8(4)
	h.CpbSizeScale = r.ReadBits8(4)

	n := h.CpbCntMinus1 + 1
	h.BitRateValueMinus1 = make([]uint32, n)
	h.CpbSizeValueMinus1 = make([]uint32, n)
	h.CbrFlag = make([]bool, n)
	for i := uint32(0); i < n; i++ {
		h.BitRateValueMinus1[i] = r.ReadUEGolomb()
		h.CpbSizeValueMinus1[i] = r.ReadUEGolomb()
		h.CbrFlag[i] = r.ReadFlag()
	}

	h.InitialCpbRemovalDelayLengthMinus1 = r.ReadBits8(5)
	h.CpbRemovalDelayLengthMinus1 = r.ReadBits8(5)
	h.DpbOutputDelayLengthMinus1 = r.ReadBits8(5)
	h.TimeOffsetLength = r.ReadBits8(5)
}

// parse - scaling_list() for n lists, 7.3.2.1.1.1
func (m *ScalingMatrix) parse(r *bits.Reader, n int) {
	for i := 0; i < n; i++ {
		m.Present[i] = r.ReadFlag()
		if !m.Present[i] {
			continue
		}
		if i < 6 {
			m.UseDefault[i] = scalingList(r, m.List4x4[i][:])
		} else {
			m.UseDefault[i] = scalingList(r, m.List8x8[i-6][:])
		}
	}
}

func scalingList(r *bits.Reader, list []int32) (useDefault bool) {
	lastScale := int32(8)
	nextScale := int32(8)
	for j := range list {
		if nextScale != 0 {
			delta := r.ReadSEGolomb()
			nextScale = (lastScale + delta + 256) % 256
			useDefault = j == 0 && nextScale == 0
		}
		if nextScale != 0 {
			list[j] = nextScale
		} else {
			list[j] = lastScale
		}
		lastScale = list[j]
	}
	return
}

func (s *SPS) MaxFrameNum() uint32 {
	return 1 << (s.Log2MaxFrameNumMinus4 + 4)
}

func (s *SPS) MaxPicOrderCntLsb() uint32 {
	return 1 << (s.Log2MaxPicOrderCntLsbMinus4 + 4)
}

func (s *SPS) PicWidthInMbs() uint32 {
	return s.PicWidthInMbsMinus1 + 1
}

func (s *SPS) FrameHeightInMbs() uint32 {
	if s.FrameMbsOnly {
		return s.PicHeightInMapUnitsMinus1 + 1
	}
	return 2 * (s.PicHeightInMapUnitsMinus1 + 1)
}

func (s *SPS) PicSizeInMapUnits() uint32 {
	return (s.PicWidthInMbsMinus1 + 1) * (s.PicHeightInMapUnitsMinus1 + 1)
}

// QpBdOffsetY - 6 * bit_depth_luma_minus8
func (s *SPS) QpBdOffsetY() int32 {
	return 6 * int32(s.BitDepthLumaMinus8)
}

// ExpectedDeltaPerPicOrderCntCycle - sum of offset_for_ref_frame
func (s *SPS) ExpectedDeltaPerPicOrderCntCycle() (delta int32) {
	for _, offset := range s.OffsetForRefFrame {
		delta += offset
	}
	return
}

// ConstraintSet3 - for level 1b detection on Baseline/Main/Extended
func (s *SPS) ConstraintSet3() bool {
	return s.Constraints&0b0001_0000 != 0
}

func (s *SPS) Width() uint16 {
	width := 16 * s.PicWidthInMbs()
	crop := 2 * (s.FrameCropLeft + s.FrameCropRight)
	return uint16(width - crop)
}

func (s *SPS) Height() uint16 {
	height := 16 * s.FrameHeightInMbs()
	crop := 2 * (s.FrameCropTop + s.FrameCropBottom)
	if !s.FrameMbsOnly {
		crop *= 2
	}
	return uint16(height - crop)
}

func (s *SPS) Profile() string {
	switch s.ProfileIDC {
	case 0x42:
		return "Baseline"
	case 0x4D:
		return "Main"
	case 0x58:
		return "Extended"
	case 0x64:
		return "High"
	case 0x76:
		return "Multiview High"
	case 0x80:
		return "Stereo High"
	}
	return fmt.Sprintf("0x%02X", s.ProfileIDC)
}

func (s *SPS) String() string {
	return fmt.Sprintf(
		"%s %d.%d, %dx%d, refs=%d",
		s.Profile(), s.LevelIDC/10, s.LevelIDC%10, s.Width(), s.Height(), s.NumRefFrames,
	)
}

// Equal - compare fields that matter for decoding process
func (s *SPS) Equal(o *SPS) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.ProfileIDC == o.ProfileIDC && s.Constraints == o.Constraints &&
		s.LevelIDC == o.LevelIDC && s.ID == o.ID &&
		s.ChromaFormatIDC == o.ChromaFormatIDC && s.SeparateColourPlane == o.SeparateColourPlane &&
		s.BitDepthLumaMinus8 == o.BitDepthLumaMinus8 && s.BitDepthChromaMinus8 == o.BitDepthChromaMinus8 &&
		s.ScalingMatrixPresent == o.ScalingMatrixPresent && s.Scaling == o.Scaling &&
		s.Log2MaxFrameNumMinus4 == o.Log2MaxFrameNumMinus4 && s.PicOrderCntType == o.PicOrderCntType &&
		s.Log2MaxPicOrderCntLsbMinus4 == o.Log2MaxPicOrderCntLsbMinus4 &&
		s.DeltaPicOrderAlwaysZero == o.DeltaPicOrderAlwaysZero &&
		s.OffsetForNonRefPic == o.OffsetForNonRefPic &&
		s.OffsetForTopToBottomField == o.OffsetForTopToBottomField &&
		equalInt32(s.OffsetForRefFrame, o.OffsetForRefFrame) &&
		s.NumRefFrames == o.NumRefFrames && s.GapsInFrameNumAllowed == o.GapsInFrameNumAllowed &&
		s.PicWidthInMbsMinus1 == o.PicWidthInMbsMinus1 &&
		s.PicHeightInMapUnitsMinus1 == o.PicHeightInMapUnitsMinus1 &&
		s.FrameMbsOnly == o.FrameMbsOnly && s.MbAdaptiveFrameField == o.MbAdaptiveFrameField &&
		s.Direct8x8Inference == o.Direct8x8Inference &&
		s.FrameCropping == o.FrameCropping && s.FrameCropLeft == o.FrameCropLeft &&
		s.FrameCropRight == o.FrameCropRight && s.FrameCropTop == o.FrameCropTop &&
		s.FrameCropBottom == o.FrameCropBottom &&
		s.VUI.BitstreamRestriction == o.VUI.BitstreamRestriction &&
		s.VUI.MaxDecFrameBuffering == o.VUI.MaxDecFrameBuffering
}

func equalInt32(a, b []int32) bool {
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
