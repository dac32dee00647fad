// Package poc - decoding process for picture order count, 8.2.1
package poc

import (
	"github.com/AlexxIT/go2avc/pkg/h264"
	"github.com/AlexxIT/go2avc/pkg/h264/ps"
	"github.com/AlexxIT/go2avc/pkg/h264/slice"
	"github.com/pkg/errors"
)

// POC - order counts of one picture
type POC struct {
	Top    int32 // TopFieldOrderCnt
	Bottom int32 // BottomFieldOrderCnt
	This   int32 // of current frame or field
	Frame  int32 // min(Top, Bottom) for frames, This for fields
}

// State - values kept between pictures of one view
type State struct {
	PrevPicOrderCntMsb int32
	PrevPicOrderCntLsb int32

	FrameNumOffset     int32
	PrevFrameNumOffset int32
	PrevFrameNum       uint32

	lastHasMMCO5       bool
	lastPicBottomField bool
	lastTopPOC         int32
}

// MarkMMCO5 - previous picture had memory_management_control_operation 5,
// topPOC is its TopFieldOrderCnt after the reset to zero
func (s *State) MarkMMCO5(bottomField bool, topPOC int32) {
	s.lastHasMMCO5 = true
	s.lastPicBottomField = bottomField
	s.lastTopPOC = topPOC
}

// Reset - state before first picture of sequence
func (s *State) Reset() {
	*s = State{}
}

// Decode - POC of picture that starts with slice h
func (s *State) Decode(h *slice.Header, sps *ps.SPS) (p POC, err error) {
	switch sps.PicOrderCntType {
	case 0:
		p = s.decode0(h, sps)
	case 1:
		p, err = s.decode1(h, sps)
	case 2:
		p, err = s.decode2(h, sps)
	default:
		err = errors.Wrapf(h264.ErrUnsupported, "poc: type=%d", sps.PicOrderCntType)
	}

	s.lastHasMMCO5 = false

	return
}

func (s *State) decode0(h *slice.Header, sps *ps.SPS) (p POC) {
	if h.IsIDRView() {
		s.PrevPicOrderCntMsb = 0
		s.PrevPicOrderCntLsb = 0
	} else if s.lastHasMMCO5 {
		s.PrevPicOrderCntMsb = 0
		if s.lastPicBottomField {
			s.PrevPicOrderCntLsb = 0
		} else {
			s.PrevPicOrderCntLsb = s.lastTopPOC
		}
	}

	maxLsb := int32(sps.MaxPicOrderCntLsb())
	lsb := int32(h.PicOrderCntLsb)

	var msb int32
	switch {
	case lsb < s.PrevPicOrderCntLsb && s.PrevPicOrderCntLsb-lsb >= maxLsb/2:
		msb = s.PrevPicOrderCntMsb + maxLsb
	case lsb > s.PrevPicOrderCntLsb && lsb-s.PrevPicOrderCntLsb > maxLsb/2:
		msb = s.PrevPicOrderCntMsb - maxLsb
	default:
		msb = s.PrevPicOrderCntMsb
	}

	switch h.Structure {
	case h264.Frame:
		p.Top = msb + lsb
		p.Bottom = p.Top + h.DeltaPicOrderCntBottom
		p.This = min32(p.Top, p.Bottom)
	case h264.TopField:
		p.Top = msb + lsb
		p.This = p.Top
	case h264.BottomField:
		p.Bottom = msb + lsb
		p.This = p.Bottom
	}
	p.Frame = p.This

	if h.IsReference() {
		s.PrevPicOrderCntLsb = lsb
		s.PrevPicOrderCntMsb = msb
	}

	return
}

func (s *State) updateFrameNumOffset(h *slice.Header, sps *ps.SPS) error {
	if h.IsIDRView() {
		if h.FrameNum != 0 {
			return errors.Wrapf(h264.ErrMalformedNalUnit, "poc: IDR with frame_num=%d", h.FrameNum)
		}
		s.FrameNumOffset = 0
		return nil
	}

	if s.lastHasMMCO5 {
		s.PrevFrameNumOffset = 0
		s.PrevFrameNum = 0
	}

	if h.FrameNum < s.PrevFrameNum {
		s.FrameNumOffset = s.PrevFrameNumOffset + int32(sps.MaxFrameNum())
	} else {
		s.FrameNumOffset = s.PrevFrameNumOffset
	}
	return nil
}

func (s *State) decode1(h *slice.Header, sps *ps.SPS) (p POC, err error) {
	if err = s.updateFrameNumOffset(h, sps); err != nil {
		return
	}

	var absFrameNum int32
	if n := int32(sps.NumRefFramesInPicOrderCntCycle); n != 0 {
		absFrameNum = s.FrameNumOffset + int32(h.FrameNum)
	}
	if !h.IsReference() && absFrameNum > 0 {
		absFrameNum--
	}

	var expected int32
	if absFrameNum > 0 {
		n := int32(sps.NumRefFramesInPicOrderCntCycle)
		cycleCnt := (absFrameNum - 1) / n
		frameNumInCycle := (absFrameNum - 1) % n

		expected = cycleCnt * sps.ExpectedDeltaPerPicOrderCntCycle()
		for i := int32(0); i <= frameNumInCycle; i++ {
			expected += sps.OffsetForRefFrame[i]
		}
	}
	if !h.IsReference() {
		expected += sps.OffsetForNonRefPic
	}

	switch h.Structure {
	case h264.Frame:
		p.Top = expected + h.DeltaPicOrderCnt[0]
		p.Bottom = p.Top + sps.OffsetForTopToBottomField + h.DeltaPicOrderCnt[1]
		p.This = min32(p.Top, p.Bottom)
	case h264.TopField:
		p.Top = expected + h.DeltaPicOrderCnt[0]
		p.This = p.Top
	case h264.BottomField:
		p.Bottom = expected + sps.OffsetForTopToBottomField + h.DeltaPicOrderCnt[0]
		p.This = p.Bottom
	}
	p.Frame = p.This

	s.PrevFrameNum = h.FrameNum
	s.PrevFrameNumOffset = s.FrameNumOffset

	return
}

func (s *State) decode2(h *slice.Header, sps *ps.SPS) (p POC, err error) {
	if err = s.updateFrameNumOffset(h, sps); err != nil {
		return
	}

	var temp int32
	if !h.IsIDRView() {
		temp = 2 * (s.FrameNumOffset + int32(h.FrameNum))
		if !h.IsReference() {
			temp--
		}
	}

	switch h.Structure {
	case h264.Frame:
		p.Top = temp
		p.Bottom = temp
	case h264.TopField:
		p.Top = temp
	case h264.BottomField:
		p.Bottom = temp
	}
	p.This = temp
	p.Frame = temp

	s.PrevFrameNum = h.FrameNum
	s.PrevFrameNumOffset = s.FrameNumOffset

	return
}

func min32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}
