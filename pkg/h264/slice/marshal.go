package slice

import (
	"github.com/AlexxIT/go2avc/pkg/bits"
	"github.com/AlexxIT/go2avc/pkg/h264"
	"github.com/AlexxIT/go2avc/pkg/h264/ps"
)

// Marshal - slice NAL unit with header only and empty slice_data,
// used for stream synthesis, values are written as is
func (h *Header) Marshal(sps *ps.SPS, pps *ps.PPS) []byte {
	w := bits.NewWriter()

	w.WriteBits8(h.NalRefIdc, 3)
	w.WriteBits8(h.NalType, 5)

	if h.NalType == h264.NALUTypeSliceExt {
		w.WriteBit(0) // svc_extension_flag
		w.WriteFlag(h.NonIDR)
		w.WriteBits(0, 6) // priority_id
		w.WriteBits(h.ViewID, 10)
		w.WriteBits(0, 3) // temporal_id
		w.WriteFlag(h.Anchor)
		w.WriteFlag(h.InterView)
		w.WriteBit(1) // reserved_one_bit
	}

	header := w.Bytes()
	w = bits.NewWriter()

	w.WriteUEGolomb(h.FirstMbInSlice)
	if h.SliceTypeRaw != 0 {
		w.WriteUEGolomb(h.SliceTypeRaw)
	} else {
		w.WriteUEGolomb(h.SliceType)
	}
	w.WriteUEGolomb(h.PPSID)

	if sps.SeparateColourPlane {
		w.WriteBits(h.ColourPlaneID, 2)
	}

	w.WriteBits(h.FrameNum, byte(sps.Log2MaxFrameNumMinus4+4))
	if !sps.FrameMbsOnly {
		w.WriteFlag(h.FieldPic)
		if h.FieldPic {
			w.WriteFlag(h.BottomField)
		}
	}

	if h.IsIDRView() {
		w.WriteUEGolomb(h.IdrPicID)
	}

	switch sps.PicOrderCntType {
	case 0:
		w.WriteBits(h.PicOrderCntLsb, byte(sps.Log2MaxPicOrderCntLsbMinus4+4))
		if pps.BottomFieldPicOrderInFramePresent && !h.FieldPic {
			w.WriteSEGolomb(h.DeltaPicOrderCntBottom)
		}
	case 1:
		if !sps.DeltaPicOrderAlwaysZero {
			w.WriteSEGolomb(h.DeltaPicOrderCnt[0])
			if pps.BottomFieldPicOrderInFramePresent && !h.FieldPic {
				w.WriteSEGolomb(h.DeltaPicOrderCnt[1])
			}
		}
	}

	if pps.RedundantPicCntPresent {
		w.WriteUEGolomb(h.RedundantPicCnt)
	}

	if h.SliceType == h264.SliceB {
		w.WriteFlag(h.DirectSpatialMvPred)
	}

	switch h.SliceType {
	case h264.SliceP, h264.SliceSP, h264.SliceB:
		w.WriteFlag(h.NumRefIdxActiveOverride)
		if h.NumRefIdxActiveOverride {
			w.WriteUEGolomb(h.NumRefIdxActive[0] - 1)
			if h.SliceType == h264.SliceB {
				w.WriteUEGolomb(h.NumRefIdxActive[1] - 1)
			}
		}
	}

	if h.SliceType != h264.SliceI && h.SliceType != h264.SliceSI {
		for list := 0; list < 2; list++ {
			if list == 1 && h.SliceType != h264.SliceB {
				break
			}
			w.WriteFlag(h.RefPicListModificationFlag[list])
			if !h.RefPicListModificationFlag[list] {
				continue
			}
			for _, mod := range h.RefPicListModification[list] {
				w.WriteUEGolomb(mod.IDC)
				switch mod.IDC {
				case 0, 1:
					w.WriteUEGolomb(mod.AbsDiffPicNumMinus1)
				case 2:
					w.WriteUEGolomb(mod.LongTermPicNum)
				case 4, 5:
					w.WriteUEGolomb(mod.AbsDiffViewIdxMinus1)
				}
			}
			w.WriteUEGolomb(3)
		}
	}

	if t := h.PredWeightTable; t != nil {
		w.WriteUEGolomb(t.LumaLog2WeightDenom)
		if sps.ChromaFormatIDC != 0 {
			w.WriteUEGolomb(t.ChromaLog2WeightDenom)
		}
		for list := 0; list < 2; list++ {
			for i, luma := range t.Luma[list] {
				w.WriteFlag(luma.Flag)
				if luma.Flag {
					w.WriteSEGolomb(luma.Weight)
					w.WriteSEGolomb(luma.Offset)
				}
				if sps.ChromaFormatIDC == 0 {
					continue
				}
				chroma := t.Chroma[list][i]
				w.WriteFlag(chroma[0].Flag)
				if chroma[0].Flag {
					for _, c := range chroma {
						w.WriteSEGolomb(c.Weight)
						w.WriteSEGolomb(c.Offset)
					}
				}
			}
		}
	}

	if h.NalRefIdc != 0 {
		m := &h.DecRefPicMarking
		if h.IsIDRView() {
			w.WriteFlag(m.NoOutputOfPriorPics)
			w.WriteFlag(m.LongTermReference)
		} else {
			w.WriteFlag(m.AdaptiveRefPicMarking)
			if m.AdaptiveRefPicMarking {
				for _, op := range m.MMCO {
					w.WriteUEGolomb(op.Op)
					switch op.Op {
					case 1:
						w.WriteUEGolomb(op.DifferenceOfPicNumsMinus1)
					case 2:
						w.WriteUEGolomb(op.LongTermPicNum)
					case 3:
						w.WriteUEGolomb(op.DifferenceOfPicNumsMinus1)
						w.WriteUEGolomb(op.LongTermFrameIdx)
					case 4:
						w.WriteUEGolomb(op.MaxLongTermFrameIdxPlus1)
					case 6:
						w.WriteUEGolomb(op.LongTermFrameIdx)
					}
				}
				w.WriteUEGolomb(0)
			}
		}
	}

	if pps.EntropyCodingMode && h.SliceType != h264.SliceI && h.SliceType != h264.SliceSI {
		w.WriteUEGolomb(h.CabacInitIDC)
	}

	w.WriteSEGolomb(h.SliceQPDelta)

	if h.SliceType == h264.SliceSP || h.SliceType == h264.SliceSI {
		if h.SliceType == h264.SliceSP {
			w.WriteFlag(h.SPForSwitch)
		}
		w.WriteSEGolomb(h.SliceQSDelta)
	}

	if pps.DeblockingFilterControlPresent {
		w.WriteUEGolomb(h.DisableDeblockingFilterIDC)
		if h.DisableDeblockingFilterIDC != 1 {
			w.WriteSEGolomb(h.SliceAlphaC0OffsetDiv2)
			w.WriteSEGolomb(h.SliceBetaOffsetDiv2)
		}
	}

	if pps.HasSliceGroupChangeCycle() {
		w.WriteBits(h.SliceGroupChangeCycle, SliceGroupChangeCycleBits(sps, pps))
	}

	if h.NalType == h264.NALUTypeDPA {
		w.WriteUEGolomb(h.SliceID)
	}

	w.WriteRBSPTrailing()

	return append(header, h264.EmulationPreventionInsert(w.Bytes())...)
}
