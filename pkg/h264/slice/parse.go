package slice

import (
	"github.com/AlexxIT/go2avc/pkg/h264"
	"github.com/AlexxIT/go2avc/pkg/h264/ps"
	"github.com/pkg/errors"
)

// ParseFirstPart - slice header up to pic_parameter_set_id,
// enough to find parameter sets for the rest of the header
func ParseFirstPart(r *Reader) (*Header, error) {
	h := newHeader(r.NALU)

	if h.SVCExtension {
		return nil, errors.Wrap(h264.ErrUnsupported, "slice: svc extension")
	}

	h.FirstMbInSlice = r.ue("SH: first_mb_in_slice")

	h.SliceTypeRaw = r.ue("SH: slice_type")
	if h.SliceTypeRaw > 9 {
		return nil, errors.Wrapf(h264.ErrUnsupported, "slice: slice_type=%d", h.SliceTypeRaw)
	}
	h.SliceType = h.SliceTypeRaw
	if h.SliceType > 4 {
		h.SliceType -= 5
	}

	h.PPSID = r.ue("SH: pic_parameter_set_id")

	if err := r.Err(); err != nil {
		return nil, errors.Wrap(err, "slice: first part")
	}
	if h.PPSID >= h264.MaxPPSCount {
		return nil, errors.Wrapf(h264.ErrMissingReference, "slice: pps id=%d", h.PPSID)
	}

	return h, nil
}

func newHeader(n *h264.NALUnit) *Header {
	h := &Header{
		NalType:      n.Type,
		NalRefIdc:    n.RefIdc,
		IdrFlag:      n.Type == h264.NALUTypeIFrame,
		SVCExtension: n.SVCExtension,
	}
	if n.Type == h264.NALUTypeSliceExt && n.MVC != nil {
		h.MVC = true
		h.SetMVC(n.MVC)
	}
	return h
}

// SetMVC - view information from slice extension or from prefix NAL unit of base view slice
func (h *Header) SetMVC(ext *h264.MVCExtension) {
	h.NonIDR = ext.NonIDR
	h.ViewID = uint32(ext.ViewID)
	h.InterView = ext.InterView
	h.Anchor = ext.Anchor
}

// ParseRest - slice header after pic_parameter_set_id with active SPS and PPS
func ParseRest(r *Reader, h *Header, sps *ps.SPS, pps *ps.PPS) error {
	if sps.SeparateColourPlane {
		h.ColourPlaneID = r.u(2, "SH: colour_plane_id")
	}

	h.FrameNum = r.u(byte(sps.Log2MaxFrameNumMinus4+4), "SH: frame_num")

	if !sps.FrameMbsOnly {
		h.FieldPic = r.flag("SH: field_pic_flag")
		if h.FieldPic {
			h.BottomField = r.flag("SH: bottom_field_flag")
		}
	}

	switch {
	case !h.FieldPic:
		h.Structure = h264.Frame
	case h.BottomField:
		h.Structure = h264.BottomField
	default:
		h.Structure = h264.TopField
	}

	h.MbAff = sps.MbAdaptiveFrameField && !h.FieldPic

	if h.IsIDRView() {
		h.IdrPicID = r.ue("SH: idr_pic_id")
	}

	switch sps.PicOrderCntType {
	case 0:
		h.PicOrderCntLsb = r.u(byte(sps.Log2MaxPicOrderCntLsbMinus4+4), "SH: pic_order_cnt_lsb")
		if pps.BottomFieldPicOrderInFramePresent && !h.FieldPic {
			h.DeltaPicOrderCntBottom = r.se("SH: delta_pic_order_cnt_bottom")
		}
	case 1:
		if !sps.DeltaPicOrderAlwaysZero {
			h.DeltaPicOrderCnt[0] = r.se("SH: delta_pic_order_cnt[0]")
			if pps.BottomFieldPicOrderInFramePresent && !h.FieldPic {
				h.DeltaPicOrderCnt[1] = r.se("SH: delta_pic_order_cnt[1]")
			}
		}
	}

	if pps.RedundantPicCntPresent {
		h.RedundantPicCnt = r.ue("SH: redundant_pic_cnt")
	}

	if h.SliceType == h264.SliceB {
		h.DirectSpatialMvPred = r.flag("SH: direct_spatial_mv_pred_flag")
	}

	h.NumRefIdxActive[0] = pps.NumRefIdxL0DefaultActiveMinus1 + 1
	h.NumRefIdxActive[1] = pps.NumRefIdxL1DefaultActiveMinus1 + 1

	switch h.SliceType {
	case h264.SliceP, h264.SliceSP, h264.SliceB:
		h.NumRefIdxActiveOverride = r.flag("SH: num_ref_idx_override_flag")
		if h.NumRefIdxActiveOverride {
			h.NumRefIdxActive[0] = 1 + r.ue("SH: num_ref_idx_l0_active_minus1")
			if h.SliceType == h264.SliceB {
				h.NumRefIdxActive[1] = 1 + r.ue("SH: num_ref_idx_l1_active_minus1")
			}
		}
	}
	if h.SliceType != h264.SliceB {
		h.NumRefIdxActive[1] = 0
	}

	maxRefs := uint32(h264.MaxDpbFrames)
	if h.FieldPic {
		maxRefs = h264.MaxRefs
	}
	if h.NumRefIdxActive[0] > maxRefs || h.NumRefIdxActive[1] > maxRefs {
		return errors.Wrapf(
			h264.ErrMalformedNalUnit, "slice: num_ref_idx_active=%d/%d",
			h.NumRefIdxActive[0], h.NumRefIdxActive[1],
		)
	}

	if err := h.parseRefPicListModification(r); err != nil {
		return err
	}

	if (pps.WeightedPred && (h.SliceType == h264.SliceP || h.SliceType == h264.SliceSP)) ||
		(pps.WeightedBipredIDC == 1 && h.SliceType == h264.SliceB) {
		if err := h.parsePredWeightTable(r, sps); err != nil {
			return err
		}
	}

	if h.NalRefIdc != 0 {
		if err := h.parseDecRefPicMarking(r); err != nil {
			return err
		}
	}

	if pps.EntropyCodingMode && h.SliceType != h264.SliceI && h.SliceType != h264.SliceSI {
		h.CabacInitIDC = r.ue("SH: cabac_init_idc")
		if h.CabacInitIDC > 2 {
			return errors.Wrapf(h264.ErrMalformedNalUnit, "slice: cabac_init_idc=%d", h.CabacInitIDC)
		}
	}

	h.SliceQPDelta = r.se("SH: slice_qp_delta")
	h.QP = 26 + pps.PicInitQPMinus26 + h.SliceQPDelta
	if r.EOF {
		return errors.Wrap(h264.ErrBitstreamExhausted, "slice: header")
	}
	if h.QP < -sps.QpBdOffsetY() || h.QP > 51 {
		return errors.Wrapf(h264.ErrInvalidSliceQp, "slice: qp=%d", h.QP)
	}

	if h.SliceType == h264.SliceSP || h.SliceType == h264.SliceSI {
		if h.SliceType == h264.SliceSP {
			h.SPForSwitch = r.flag("SH: sp_for_switch_flag")
		}
		h.SliceQSDelta = r.se("SH: slice_qs_delta")
		h.QS = 26 + pps.PicInitQSMinus26 + h.SliceQSDelta
		if h.QS < 0 || h.QS > 51 {
			return errors.Wrapf(h264.ErrInvalidSliceQp, "slice: qs=%d", h.QS)
		}
	}

	if pps.DeblockingFilterControlPresent {
		h.DisableDeblockingFilterIDC = r.ue("SH: disable_deblocking_filter_idc")
		if h.DisableDeblockingFilterIDC != 1 {
			h.SliceAlphaC0OffsetDiv2 = r.se("SH: slice_alpha_c0_offset_div2")
			h.SliceBetaOffsetDiv2 = r.se("SH: slice_beta_offset_div2")
		}
	}

	if pps.HasSliceGroupChangeCycle() {
		n := SliceGroupChangeCycleBits(sps, pps)
		h.SliceGroupChangeCycle = r.u(n, "SH: slice_group_change_cycle")
	}

	if err := r.Err(); err != nil {
		return errors.Wrap(err, "slice: header")
	}

	h.Entropy = entropyMode(sps, pps, h.QP)
	h.HeaderBits = r.BitPos() - 8*r.NALU.HeaderLen

	return nil
}

// SliceGroupChangeCycleBits - Ceil(Log2(PicSizeInMapUnits / SliceGroupChangeRate + 1))
func SliceGroupChangeCycleBits(sps *ps.SPS, pps *ps.PPS) byte {
	size := sps.PicSizeInMapUnits()
	rate := pps.SliceGroupChangeRate()
	n := size / rate
	if size%rate != 0 {
		n++
	}
	return ps.CeilLog2(n + 1)
}

func entropyMode(sps *ps.SPS, pps *ps.PPS, qp int32) EntropyMode {
	lossless := sps.QpprimeYZeroTransform && qp+sps.QpBdOffsetY() == 0
	switch {
	case pps.EntropyCodingMode && lossless:
		return CABACLossless
	case pps.EntropyCodingMode:
		return CABAC
	case lossless:
		return CAVLCLossless
	}
	return CAVLC
}

// parseRefPicListModification - ref_pic_list_modification (7.3.3.1) or
// ref_pic_list_mvc_modification (H.7.3.3.1.1) for slice extension
func (h *Header) parseRefPicListModification(r *Reader) error {
	if h.SliceType == h264.SliceI || h.SliceType == h264.SliceSI {
		return nil
	}

	for list := 0; list < 2; list++ {
		if list == 1 && h.SliceType != h264.SliceB {
			break
		}

		names := modNames[list]

		h.RefPicListModificationFlag[list] = r.flag(names[0])
		if !h.RefPicListModificationFlag[list] {
			continue
		}

		maxIDC := uint32(3)
		if h.MVC {
			maxIDC = 5
		}

		for {
			mod := RefPicListMod{IDC: r.ue(names[1])}
			if r.EOF {
				return errors.Wrap(h264.ErrBitstreamExhausted, "slice: ref_pic_list_modification")
			}

			switch mod.IDC {
			case 0, 1:
				mod.AbsDiffPicNumMinus1 = r.ue(names[2])
			case 2:
				mod.LongTermPicNum = r.ue(names[3])
			case 3:
			case 4, 5:
				if h.MVC {
					mod.AbsDiffViewIdxMinus1 = r.ue(names[4])
				}
			}

			if mod.IDC > maxIDC {
				return errors.Wrapf(h264.ErrMalformedNalUnit, "slice: modification_of_pic_nums_idc=%d", mod.IDC)
			}
			if mod.IDC == 3 {
				break
			}

			if uint32(len(h.RefPicListModification[list])) > h.NumRefIdxActive[list] {
				return errors.Wrapf(h264.ErrMalformedNalUnit, "slice: too many modifications in list %d", list)
			}
			h.RefPicListModification[list] = append(h.RefPicListModification[list], mod)
		}
	}

	return nil
}

var modNames = [2][5]string{
	{
		"SH: ref_pic_list_modification_flag_l0", "SH: modification_of_pic_nums_idc_l0",
		"SH: abs_diff_pic_num_minus1_l0", "SH: long_term_pic_idx_l0", "SH: abs_diff_view_idx_minus1_l0",
	},
	{
		"SH: ref_pic_list_modification_flag_l1", "SH: modification_of_pic_nums_idc_l1",
		"SH: abs_diff_pic_num_minus1_l1", "SH: long_term_pic_idx_l1", "SH: abs_diff_view_idx_minus1_l1",
	},
}

func (h *Header) parsePredWeightTable(r *Reader, sps *ps.SPS) error {
	t := &PredWeightTable{}

	t.LumaLog2WeightDenom = r.ue("SH: luma_log2_weight_denom")
	if sps.ChromaFormatIDC != 0 {
		t.ChromaLog2WeightDenom = r.ue("SH: chroma_log2_weight_denom")
	}
	if t.LumaLog2WeightDenom > 7 || t.ChromaLog2WeightDenom > 7 {
		return errors.Wrapf(
			h264.ErrMalformedNalUnit, "slice: log2_weight_denom=%d/%d",
			t.LumaLog2WeightDenom, t.ChromaLog2WeightDenom,
		)
	}

	lists := 1
	if h.SliceType == h264.SliceB {
		lists = 2
	}

	for list := 0; list < lists; list++ {
		suffix := "_l0"
		if list == 1 {
			suffix = "_l1"
		}

		n := h.NumRefIdxActive[list]
		t.Luma[list] = make([]Weight, n)
		if sps.ChromaFormatIDC != 0 {
			t.Chroma[list] = make([][2]Weight, n)
		}

		for i := uint32(0); i < n; i++ {
			luma := Weight{Weight: 1 << t.LumaLog2WeightDenom}
			luma.Flag = r.flag("SH: luma_weight_flag" + suffix)
			if luma.Flag {
				luma.Weight = r.se("SH: luma_weight" + suffix)
				luma.Offset = r.se("SH: luma_offset" + suffix)
			}
			t.Luma[list][i] = luma

			if sps.ChromaFormatIDC == 0 {
				continue
			}

			flag := r.flag("SH: chroma_weight_flag" + suffix)
			for j := 0; j < 2; j++ {
				chroma := Weight{Flag: flag, Weight: 1 << t.ChromaLog2WeightDenom}
				if flag {
					chroma.Weight = r.se("SH: chroma_weight" + suffix)
					chroma.Offset = r.se("SH: chroma_offset" + suffix)
				}
				t.Chroma[list][i][j] = chroma
			}
		}

		if r.EOF {
			return errors.Wrap(h264.ErrBitstreamExhausted, "slice: pred_weight_table")
		}
	}

	h.PredWeightTable = t
	return nil
}

func (h *Header) parseDecRefPicMarking(r *Reader) error {
	m := &h.DecRefPicMarking

	if h.IsIDRView() {
		m.NoOutputOfPriorPics = r.flag("SH: no_output_of_prior_pics_flag")
		m.LongTermReference = r.flag("SH: long_term_reference_flag")
		return nil
	}

	m.AdaptiveRefPicMarking = r.flag("SH: adaptive_ref_pic_buffering_flag")
	if !m.AdaptiveRefPicMarking {
		return nil
	}

	for {
		op := MMCO{Op: r.ue("SH: memory_management_control_operation")}
		if r.EOF {
			return errors.Wrap(h264.ErrBitstreamExhausted, "slice: dec_ref_pic_marking")
		}
		if op.Op > 6 {
			return errors.Wrapf(h264.ErrMalformedNalUnit, "slice: memory_management_control_operation=%d", op.Op)
		}
		if op.Op == 0 {
			break
		}

		if op.Op == 1 || op.Op == 3 {
			op.DifferenceOfPicNumsMinus1 = r.ue("SH: difference_of_pic_nums_minus1")
		}
		if op.Op == 2 {
			op.LongTermPicNum = r.ue("SH: long_term_pic_num")
		}
		if op.Op == 3 || op.Op == 6 {
			op.LongTermFrameIdx = r.ue("SH: long_term_frame_idx")
		}
		if op.Op == 4 {
			op.MaxLongTermFrameIdxPlus1 = r.ue("SH: max_long_term_pic_idx_plus1")
		}

		if len(m.MMCO) >= h264.MaxMMCOCount {
			return errors.Wrap(h264.ErrMalformedNalUnit, "slice: too many MMCO")
		}
		m.MMCO = append(m.MMCO, op)
	}

	return nil
}
