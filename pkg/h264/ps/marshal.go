package ps

import (
	"github.com/AlexxIT/go2avc/pkg/bits"
	"github.com/AlexxIT/go2avc/pkg/h264"
)

// Marshal - SPS NAL unit with header byte, without start code
func (s *SPS) Marshal() []byte {
	w := bits.NewWriter()
	s.writeData(w)
	w.WriteRBSPTrailing()
	return marshalNALU(h264.NALUTypeSPS, w.Bytes())
}

// Marshal - Subset SPS NAL unit with header byte, without start code
func (s *SubsetSPS) Marshal() []byte {
	w := bits.NewWriter()
	s.writeData(w)
	w.WriteBit(1) // bit_equal_to_one

	w.WriteUEGolomb(s.NumViewsMinus1)
	for _, id := range s.ViewID {
		w.WriteUEGolomb(id)
	}
	for _, refs := range [][2][][]uint32{s.AnchorRefs, s.NonAnchorRefs} {
		for i := 1; i < s.NumViews(); i++ {
			for list := 0; list < 2; list++ {
				var ids []uint32
				if i < len(refs[list]) {
					ids = refs[list][i]
				}
				w.WriteUEGolomb(uint32(len(ids)))
				for _, id := range ids {
					w.WriteUEGolomb(id)
				}
			}
		}
	}

	levels := s.Levels
	if len(levels) == 0 {
		levels = []MVCLevel{{LevelIDC: s.LevelIDC, Ops: []MVCOperationPoint{{TargetViewID: s.ViewID[:1]}}}}
	}
	w.WriteUEGolomb(uint32(len(levels) - 1))
	for _, level := range levels {
		w.WriteByte(level.LevelIDC)
		w.WriteUEGolomb(uint32(len(level.Ops) - 1))
		for _, op := range level.Ops {
			w.WriteBits8(op.TemporalID, 3)
			w.WriteUEGolomb(uint32(len(op.TargetViewID) - 1))
			for _, id := range op.TargetViewID {
				w.WriteUEGolomb(id)
			}
			w.WriteUEGolomb(op.NumViewsMinus1)
		}
	}

	w.WriteFlag(false) // mvc_vui_parameters_present_flag
	w.WriteFlag(false) // additional_extension2_flag
	w.WriteRBSPTrailing()
	return marshalNALU(h264.NALUTypeSubsetSPS, w.Bytes())
}

func (s *SPS) writeData(w *bits.Writer) {
	w.WriteByte(s.ProfileIDC)
	w.WriteByte(s.Constraints)
	w.WriteByte(s.LevelIDC)
	w.WriteUEGolomb(s.ID)

	if h264.IsFRExtProfile(s.ProfileIDC) {
		w.WriteUEGolomb(s.ChromaFormatIDC)
		if s.ChromaFormatIDC == 3 {
			w.WriteFlag(s.SeparateColourPlane)
		}
		w.WriteUEGolomb(s.BitDepthLumaMinus8)
		w.WriteUEGolomb(s.BitDepthChromaMinus8)
		w.WriteFlag(s.QpprimeYZeroTransform)
		w.WriteFlag(s.ScalingMatrixPresent)
		if s.ScalingMatrixPresent {
			n := 8
			if s.ChromaFormatIDC == 3 {
				n = 12
			}
			s.Scaling.write(w, n)
		}
	}

	w.WriteUEGolomb(s.Log2MaxFrameNumMinus4)
	w.WriteUEGolomb(s.PicOrderCntType)
	switch s.PicOrderCntType {
	case 0:
		w.WriteUEGolomb(s.Log2MaxPicOrderCntLsbMinus4)
	case 1:
		w.WriteFlag(s.DeltaPicOrderAlwaysZero)
		w.WriteSEGolomb(s.OffsetForNonRefPic)
		w.WriteSEGolomb(s.OffsetForTopToBottomField)
		w.WriteUEGolomb(uint32(len(s.OffsetForRefFrame)))
		for _, offset := range s.OffsetForRefFrame {
			w.WriteSEGolomb(offset)
		}
	}

	w.WriteUEGolomb(s.NumRefFrames)
	w.WriteFlag(s.GapsInFrameNumAllowed)
	w.WriteUEGolomb(s.PicWidthInMbsMinus1)
	w.WriteUEGolomb(s.PicHeightInMapUnitsMinus1)
	w.WriteFlag(s.FrameMbsOnly)
	if !s.FrameMbsOnly {
		w.WriteFlag(s.MbAdaptiveFrameField)
	}
	w.WriteFlag(s.Direct8x8Inference)

	w.WriteFlag(s.FrameCropping)
	if s.FrameCropping {
		w.WriteUEGolomb(s.FrameCropLeft)
		w.WriteUEGolomb(s.FrameCropRight)
		w.WriteUEGolomb(s.FrameCropTop)
		w.WriteUEGolomb(s.FrameCropBottom)
	}

	w.WriteFlag(s.VUIParamsPresent)
	if s.VUIParamsPresent {
		s.VUI.write(w)
	}
}

func (v *VUI) write(w *bits.Writer) {
	w.WriteFlag(v.AspectRatioInfoPresent)
	if v.AspectRatioInfoPresent {
		w.WriteByte(v.AspectRatioIDC)
		if v.AspectRatioIDC == 255 {
			w.WriteBits(uint32(v.SarWidth), 16)
			w.WriteBits(uint32(v.SarHeight), 16)
		}
	}

	w.WriteFlag(v.OverscanInfoPresent)
	if v.OverscanInfoPresent {
		w.WriteFlag(v.OverscanAppropriate)
	}

	w.WriteFlag(v.VideoSignalTypePresent)
	if v.VideoSignalTypePresent {
		w.WriteBits8(v.VideoFormat, 3)
		w.WriteFlag(v.VideoFullRange)
		w.WriteFlag(v.ColourDescriptionPresent)
		if v.ColourDescriptionPresent {
			w.WriteByte(v.ColourPrimaries)
			w.WriteByte(v.TransferCharacteristics)
			w.WriteByte(v.MatrixCoefficients)
		}
	}

	w.WriteFlag(v.ChromaLocInfoPresent)
	if v.ChromaLocInfoPresent {
		w.WriteUEGolomb(v.ChromaSampleLocTop)
		w.WriteUEGolomb(v.ChromaSampleLocBottom)
	}

	w.WriteFlag(v.TimingInfoPresent)
	if v.TimingInfoPresent {
		w.WriteBits(v.NumUnitsInTick, 32)
		w.WriteBits(v.TimeScale, 32)
		w.WriteFlag(v.FixedFrameRate)
	}

	w.WriteFlag(v.NalHRDPresent)
	if v.NalHRDPresent {
		v.NalHRD.write(w)
	}
	w.WriteFlag(v.VclHRDPresent)
	if v.VclHRDPresent {
		v.VclHRD.write(w)
	}
	if v.NalHRDPresent || v.VclHRDPresent {
		w.WriteFlag(v.LowDelayHRD)
	}

	w.WriteFlag(v.PicStructPresent)

	w.WriteFlag(v.BitstreamRestriction)
	if v.BitstreamRestriction {
		w.WriteFlag(v.MotionVectorsOverPic)
		w.WriteUEGolomb(v.MaxBytesPerPicDenom)
		w.WriteUEGolomb(v.MaxBitsPerMbDenom)
		w.WriteUEGolomb(v.Log2MaxMvLengthHor)
		w.WriteUEGolomb(v.Log2MaxMvLengthVer)
		w.WriteUEGolomb(v.MaxNumReorderFrames)
		w.WriteUEGolomb(v.MaxDecFrameBuffering)
	}
}

func (h *HRD) write(w *bits.Writer) {
	w.WriteUEGolomb(uint32(len(h.BitRateValueMinus1) - 1))
	w.WriteBits8(h.BitRateScale, 4)
	w.WriteBits8(h.CpbSizeScale, 4)
	for i := range h.BitRateValueMinus1 {
		w.WriteUEGolomb(h.BitRateValueMinus1[i])
		w.WriteUEGolomb(h.CpbSizeValueMinus1[i])
		w.WriteFlag(h.CbrFlag[i])
	}
	w.WriteBits8(h.InitialCpbRemovalDelayLengthMinus1, 5)
	w.WriteBits8(h.CpbRemovalDelayLengthMinus1, 5)
	w.WriteBits8(h.DpbOutputDelayLengthMinus1, 5)
	w.WriteBits8(h.TimeOffsetLength, 5)
}

// write - explicit delta coded lists, useDefault lists are written as single zero delta
func (m *ScalingMatrix) write(w *bits.Writer, n int) {
	for i := 0; i < n; i++ {
		w.WriteFlag(m.Present[i])
		if !m.Present[i] {
			continue
		}
		var list []int32
		if i < 6 {
			list = m.List4x4[i][:]
		} else {
			list = m.List8x8[i-6][:]
		}
		if m.UseDefault[i] {
			w.WriteSEGolomb(-8)
			continue
		}
		last := int32(8)
		for _, v := range list {
			delta := v - last
			if delta > 127 {
				delta -= 256
			} else if delta < -128 {
				delta += 256
			}
			w.WriteSEGolomb(delta)
			last = v
		}
	}
}

// Marshal - PPS NAL unit with header byte, without start code
func (p *PPS) Marshal() []byte {
	w := bits.NewWriter()

	w.WriteUEGolomb(p.ID)
	w.WriteUEGolomb(p.SPSID)
	w.WriteFlag(p.EntropyCodingMode)
	w.WriteFlag(p.BottomFieldPicOrderInFramePresent)

	w.WriteUEGolomb(p.NumSliceGroupsMinus1)
	if p.NumSliceGroupsMinus1 > 0 {
		w.WriteUEGolomb(p.SliceGroupMapType)
		switch p.SliceGroupMapType {
		case 0:
			for _, v := range p.RunLengthMinus1 {
				w.WriteUEGolomb(v)
			}
		case 2:
			for i := range p.TopLeft {
				w.WriteUEGolomb(p.TopLeft[i])
				w.WriteUEGolomb(p.BottomRight[i])
			}
		case 3, 4, 5:
			w.WriteFlag(p.SliceGroupChangeDirection)
			w.WriteUEGolomb(p.SliceGroupChangeRateMinus1)
		case 6:
			w.WriteUEGolomb(p.PicSizeInMapUnitsMinus1)
			n := CeilLog2(p.NumSliceGroupsMinus1 + 1)
			for _, v := range p.SliceGroupID {
				w.WriteBits(v, n)
			}
		}
	}

	w.WriteUEGolomb(p.NumRefIdxL0DefaultActiveMinus1)
	w.WriteUEGolomb(p.NumRefIdxL1DefaultActiveMinus1)
	w.WriteFlag(p.WeightedPred)
	w.WriteBits(p.WeightedBipredIDC, 2)
	w.WriteSEGolomb(p.PicInitQPMinus26)
	w.WriteSEGolomb(p.PicInitQSMinus26)
	w.WriteSEGolomb(p.ChromaQPIndexOffset)
	w.WriteFlag(p.DeblockingFilterControlPresent)
	w.WriteFlag(p.ConstrainedIntraPred)
	w.WriteFlag(p.RedundantPicCntPresent)

	if p.Transform8x8Mode || p.ScalingMatrixPresent || p.SecondChromaQPIndexOffset != p.ChromaQPIndexOffset {
		w.WriteFlag(p.Transform8x8Mode)
		w.WriteFlag(p.ScalingMatrixPresent)
		if p.ScalingMatrixPresent {
			n := 6
			if p.Transform8x8Mode {
				n += 2
			}
			p.Scaling.write(w, n)
		}
		w.WriteSEGolomb(p.SecondChromaQPIndexOffset)
	}

	w.WriteRBSPTrailing()
	return marshalNALU(h264.NALUTypePPS, w.Bytes())
}

func marshalNALU(typ byte, rbsp []byte) []byte {
	b := []byte{3<<5 | typ}
	return append(b, h264.EmulationPreventionInsert(rbsp)...)
}
