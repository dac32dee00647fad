package slice

import (
	"testing"

	"github.com/AlexxIT/go2avc/pkg/h264"
	"github.com/AlexxIT/go2avc/pkg/h264/ps"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

func testSPS() *ps.SPS {
	return &ps.SPS{
		Valid:                       true,
		ProfileIDC:                  77,
		LevelIDC:                    30,
		ChromaFormatIDC:             1,
		Log2MaxFrameNumMinus4:       0,
		PicOrderCntType:             0,
		Log2MaxPicOrderCntLsbMinus4: 2,
		NumRefFrames:                4,
		PicWidthInMbsMinus1:         15,
		PicHeightInMapUnitsMinus1:   8,
		FrameMbsOnly:                true,
	}
}

func testPPS() *ps.PPS {
	return &ps.PPS{
		Valid:                          true,
		NumRefIdxL0DefaultActiveMinus1: 2,
		DeblockingFilterControlPresent: true,
	}
}

func parse(t *testing.T, b []byte, sps *ps.SPS, pps *ps.PPS, trace TraceFunc) (*Header, error) {
	n, err := h264.ParseNALUnit(b)
	require.Nil(t, err)

	r := NewReader(n, trace)
	h, err := ParseFirstPart(r)
	if err != nil {
		return nil, err
	}
	return h, ParseRest(r, h, sps, pps)
}

func TestParseIDR(t *testing.T) {
	sps, pps := testSPS(), testPPS()

	src := &Header{
		NalType:      h264.NALUTypeIFrame,
		NalRefIdc:    3,
		IdrFlag:      true,
		SliceType:    h264.SliceI,
		SliceTypeRaw: 7,
		IdrPicID:     3,

		DecRefPicMarking: DecRefPicMarking{
			NoOutputOfPriorPics: true,
			LongTermReference:   true,
		},
		SliceQPDelta:               -2,
		DisableDeblockingFilterIDC: 1,
	}

	var names []string
	h, err := parse(t, src.Marshal(sps, pps), sps, pps, func(name string, pos int, value int64) {
		if len(names) == 0 {
			require.Equal(t, 8, pos)
		}
		names = append(names, name)
	})
	require.Nil(t, err)

	require.Equal(t, uint32(h264.SliceI), h.SliceType)
	require.Equal(t, h264.Frame, h.Structure)
	require.Equal(t, uint32(3), h.IdrPicID)
	require.Equal(t, int32(24), h.QP)
	require.Equal(t, uint32(3), h.NumRefIdxActive[0])
	require.Equal(t, uint32(0), h.NumRefIdxActive[1])
	require.True(t, h.DecRefPicMarking.LongTermReference)
	require.Equal(t, CAVLC, h.Entropy)
	require.Greater(t, h.HeaderBits, 0)

	require.Equal(t, []string{
		"SH: first_mb_in_slice", "SH: slice_type", "SH: pic_parameter_set_id",
		"SH: frame_num", "SH: idr_pic_id", "SH: pic_order_cnt_lsb",
		"SH: no_output_of_prior_pics_flag", "SH: long_term_reference_flag",
		"SH: slice_qp_delta", "SH: disable_deblocking_filter_idc",
	}, names)
}

func TestParseRoundTrip(t *testing.T) {
	sps, pps := testSPS(), testPPS()
	sps.FrameMbsOnly = false
	sps.MbAdaptiveFrameField = true
	sps.PicOrderCntType = 1
	sps.Log2MaxFrameNumMinus4 = 4
	pps.BottomFieldPicOrderInFramePresent = true
	pps.WeightedBipredIDC = 1
	pps.EntropyCodingMode = true
	pps.RedundantPicCntPresent = true

	src := &Header{
		NalType:                 h264.NALUTypePFrame,
		NalRefIdc:               2,
		FirstMbInSlice:          40,
		SliceType:               h264.SliceB,
		SliceTypeRaw:            h264.SliceB,
		FrameNum:                77,
		FieldPic:                true,
		BottomField:             true,
		Structure:               h264.BottomField,
		DeltaPicOrderCnt:        [2]int32{-3, 0},
		RedundantPicCnt:         1,
		DirectSpatialMvPred:     true,
		NumRefIdxActiveOverride: true,
		NumRefIdxActive:         [2]uint32{2, 1},

		RefPicListModificationFlag: [2]bool{true, true},
		RefPicListModification: [2][]RefPicListMod{
			{{IDC: 0, AbsDiffPicNumMinus1: 4}, {IDC: 2, LongTermPicNum: 1}},
			{{IDC: 1, AbsDiffPicNumMinus1: 0}},
		},
		PredWeightTable: &PredWeightTable{
			LumaLog2WeightDenom:   5,
			ChromaLog2WeightDenom: 3,
			Luma: [2][]Weight{
				{{Flag: true, Weight: 30, Offset: -2}, {Weight: 32}},
				{{Weight: 32}},
			},
			Chroma: [2][][2]Weight{
				{{{Weight: 8}, {Weight: 8}}, {{Flag: true, Weight: 7, Offset: 1}, {Flag: true, Weight: 9, Offset: -1}}},
				{{{Weight: 8}, {Weight: 8}}},
			},
		},
		DecRefPicMarking: DecRefPicMarking{
			AdaptiveRefPicMarking: true,
			MMCO: []MMCO{
				{Op: 1, DifferenceOfPicNumsMinus1: 2},
				{Op: 3, DifferenceOfPicNumsMinus1: 0, LongTermFrameIdx: 1},
				{Op: 4, MaxLongTermFrameIdxPlus1: 3},
				{Op: 6, LongTermFrameIdx: 2},
			},
		},
		CabacInitIDC:           2,
		SliceQPDelta:           4,
		QP:                     30,
		SliceAlphaC0OffsetDiv2: -1,
		SliceBetaOffsetDiv2:    2,
		Entropy:                CABAC,
	}

	h, err := parse(t, src.Marshal(sps, pps), sps, pps, nil)
	require.Nil(t, err)

	diff := cmp.Diff(src, h, cmpopts.EquateEmpty(), cmpopts.IgnoreFields(Header{}, "HeaderBits"))
	require.Empty(t, diff)

	require.Equal(t, int32(155), h.CurrPicNum())
	require.Equal(t, uint32(512), h.MaxPicNum(256))
	require.False(t, h.MbAff)
}

func TestParseMVC(t *testing.T) {
	sps, pps := testSPS(), testPPS()

	src := &Header{
		NalType:   h264.NALUTypeSliceExt,
		NalRefIdc: 1,
		MVC:       true,
		ViewID:    3,
		Anchor:    true,
		SliceType: h264.SliceP,
		IdrPicID:  1,

		RefPicListModificationFlag: [2]bool{true},
		RefPicListModification: [2][]RefPicListMod{
			{{IDC: 5, AbsDiffViewIdxMinus1: 0}},
		},
		DecRefPicMarking: DecRefPicMarking{LongTermReference: false},
	}

	h, err := parse(t, src.Marshal(sps, pps), sps, pps, nil)
	require.Nil(t, err)
	require.True(t, h.MVC)
	require.False(t, h.IdrFlag)
	require.True(t, h.IsIDRView())
	require.Equal(t, uint32(3), h.ViewID)
	require.Equal(t, uint32(1), h.IdrPicID)
	require.Equal(t, src.RefPicListModification[0], h.RefPicListModification[0])

	// view index modification is not allowed in base view
	src.NalType = h264.NALUTypePFrame
	src.MVC = false
	src.NonIDR = true
	_, err = parse(t, src.Marshal(sps, pps), sps, pps, nil)
	require.ErrorIs(t, err, h264.ErrMalformedNalUnit)
}

func TestParseErrors(t *testing.T) {
	sps, pps := testSPS(), testPPS()

	h := &Header{
		NalType:      h264.NALUTypePFrame,
		NalRefIdc:    1,
		SliceType:    h264.SliceP,
		SliceQPDelta: 30,
	}
	_, err := parse(t, h.Marshal(sps, pps), sps, pps, nil)
	require.ErrorIs(t, err, h264.ErrInvalidSliceQp)

	h.SliceQPDelta = -27
	_, err = parse(t, h.Marshal(sps, pps), sps, pps, nil)
	require.ErrorIs(t, err, h264.ErrInvalidSliceQp)

	// high bit depth allows negative QP
	sps.BitDepthLumaMinus8 = 2
	_, err = parse(t, h.Marshal(sps, pps), sps, pps, nil)
	require.Nil(t, err)
	sps.BitDepthLumaMinus8 = 0

	h.SliceQPDelta = 0
	b := h.Marshal(sps, pps)
	_, err = parse(t, b[:2], sps, pps, nil)
	require.ErrorIs(t, err, h264.ErrBitstreamExhausted)

	_, err = parse(t, []byte{0x41, 0b1_0001011}, sps, pps, nil) // slice_type=10
	require.ErrorIs(t, err, h264.ErrUnsupported)

	h.DecRefPicMarking.AdaptiveRefPicMarking = true
	for i := 0; i < h264.MaxMMCOCount+1; i++ {
		h.DecRefPicMarking.MMCO = append(h.DecRefPicMarking.MMCO, MMCO{Op: 4, MaxLongTermFrameIdxPlus1: 1})
	}
	_, err = parse(t, h.Marshal(sps, pps), sps, pps, nil)
	require.ErrorIs(t, err, h264.ErrMalformedNalUnit)
}

func TestSliceGroupChangeCycle(t *testing.T) {
	sps, pps := testSPS(), testPPS()
	pps.NumSliceGroupsMinus1 = 1
	pps.SliceGroupMapType = 4
	pps.SliceGroupChangeRateMinus1 = 9

	// 144 map units / 10 -> 15, Ceil(Log2(16)) = 4
	require.Equal(t, byte(4), SliceGroupChangeCycleBits(sps, pps))

	src := &Header{
		NalType:               h264.NALUTypePFrame,
		SliceType:             h264.SliceI,
		SliceGroupChangeCycle: 13,
	}
	h, err := parse(t, src.Marshal(sps, pps), sps, pps, nil)
	require.Nil(t, err)
	require.Equal(t, uint32(13), h.SliceGroupChangeCycle)
}

func TestDataPartition(t *testing.T) {
	sps, pps := testSPS(), testPPS()
	pps.RedundantPicCntPresent = true

	src := &Header{
		NalType:   h264.NALUTypeDPA,
		NalRefIdc: 1,
		SliceType: h264.SliceP,
		SliceID:   7,
	}

	n, err := h264.ParseNALUnit(src.Marshal(sps, pps))
	require.Nil(t, err)
	r := NewReader(n, nil)
	h, err := ParseFirstPart(r)
	require.Nil(t, err)
	require.Nil(t, ParseRest(r, h, sps, pps))
	require.Nil(t, ParseSliceID(r, h))
	require.Equal(t, uint32(7), h.SliceID)

	// slice_id=7, redundant_pic_cnt=0
	n, err = h264.ParseNALUnit([]byte{0x23, 0b0001000_1, 0b1000_0000})
	require.Nil(t, err)
	p, err := ParsePartition(NewReader(n, nil), sps, pps)
	require.Nil(t, err)
	require.Equal(t, byte(h264.NALUTypeDPB), p.Type)
	require.True(t, p.Matches(h))

	h.SliceID = 8
	require.False(t, p.Matches(h))
}

func TestIsNewPicture(t *testing.T) {
	sps, pps := testSPS(), testPPS()

	var old OldSliceParams
	old.Reset()

	// first IDR slice of stream
	idr := &Header{NalType: h264.NALUTypeIFrame, NalRefIdc: 3, IdrFlag: true, SliceType: h264.SliceI}
	require.True(t, IsNewPicture(false, idr, &old, sps, pps))
	require.True(t, IsNewPicture(true, idr, &old, sps, pps))

	old.Copy(idr, sps)
	require.False(t, IsNewPicture(true, idr, &old, sps, pps))

	// second slice of multi slice frame
	s1 := &Header{NalType: h264.NALUTypePFrame, NalRefIdc: 2, FrameNum: 1, PicOrderCntLsb: 4, SliceType: h264.SliceP}
	s2 := *s1
	s2.NalRefIdc = 1
	s2.FirstMbInSlice = 70
	s2.SliceType = h264.SliceI

	require.True(t, IsNewPicture(true, s1, &old, sps, pps))
	old.Copy(s1, sps)
	require.False(t, IsNewPicture(true, &s2, &old, sps, pps))

	tests := []func(h *Header){
		func(h *Header) { h.PPSID = 1 },
		func(h *Header) { h.FrameNum = 2 },
		func(h *Header) { h.FieldPic = true },
		func(h *Header) { h.NalRefIdc = 0 },
		func(h *Header) { h.IdrFlag = true },
		func(h *Header) { h.PicOrderCntLsb = 6 },
		func(h *Header) { h.ViewID = 1 },
		func(h *Header) { h.InterView = true },
		func(h *Header) { h.Anchor = true },
		func(h *Header) { h.LayerID = 1 },
	}
	for i, test := range tests {
		h := *s1
		test(&h)
		require.True(t, IsNewPicture(true, &h, &old, sps, pps), i)
	}

	// delta_pic_order_cnt_bottom only with flag in PPS
	h := *s1
	h.DeltaPicOrderCntBottom = 1
	require.False(t, IsNewPicture(true, &h, &old, sps, pps))
	pps.BottomFieldPicOrderInFramePresent = true
	require.True(t, IsNewPicture(true, &h, &old, sps, pps))

	// fields of one frame
	top := &Header{FrameNum: 3, FieldPic: true, NalRefIdc: 1}
	bot := &Header{FrameNum: 3, FieldPic: true, BottomField: true, NalRefIdc: 1}
	old.Copy(top, sps)
	require.True(t, IsNewPicture(true, bot, &old, sps, pps))

	// different idr_pic_id of consecutive IDR pictures
	old.Copy(idr, sps)
	idr2 := *idr
	idr2.IdrPicID = 1
	require.True(t, IsNewPicture(true, &idr2, &old, sps, pps))

	// same for non-base view IDR, non_idr_flag=0 in NAL header extension
	view := &Header{NalType: h264.NALUTypeSliceExt, NalRefIdc: 3, MVC: true, ViewID: 1, LayerID: 1, SliceType: h264.SliceI}
	old.Copy(view, sps)
	require.False(t, IsNewPicture(true, view, &old, sps, pps))
	view2 := *view
	view2.IdrPicID = 1
	require.True(t, IsNewPicture(true, &view2, &old, sps, pps))
	view2.IdrPicID = 0
	view2.NonIDR = true
	require.True(t, IsNewPicture(true, &view2, &old, sps, pps))

	// POC type 1
	sps.PicOrderCntType = 1
	p1 := &Header{DeltaPicOrderCnt: [2]int32{2, 0}}
	old.Copy(p1, sps)
	p2 := *p1
	p2.DeltaPicOrderCnt[0] = 4
	require.True(t, IsNewPicture(true, &p2, &old, sps, pps))
	sps.DeltaPicOrderAlwaysZero = true
	require.False(t, IsNewPicture(true, &p2, &old, sps, pps))
}

func TestEntropyMode(t *testing.T) {
	require.True(t, CABACLossless.IsCABAC())
	require.True(t, CABACLossless.IsLossless())
	require.False(t, CAVLC.IsLossless())
	require.Equal(t, "CAVLC-lossless", CAVLCLossless.String())

	sps, pps := testSPS(), testPPS()
	sps.QpprimeYZeroTransform = true
	require.Equal(t, CAVLCLossless, entropyMode(sps, pps, 0))
	pps.EntropyCodingMode = true
	require.Equal(t, CABAC, entropyMode(sps, pps, 1))
}
