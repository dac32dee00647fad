package poc

import (
	"testing"

	"github.com/AlexxIT/go2avc/pkg/h264"
	"github.com/AlexxIT/go2avc/pkg/h264/ps"
	"github.com/AlexxIT/go2avc/pkg/h264/slice"
	"github.com/stretchr/testify/require"
)

func frame(frameNum uint32, ref bool) *slice.Header {
	h := &slice.Header{NalType: h264.NALUTypePFrame, FrameNum: frameNum}
	if ref {
		h.NalRefIdc = 1
	}
	return h
}

func idr() *slice.Header {
	return &slice.Header{NalType: h264.NALUTypeIFrame, NalRefIdc: 3, IdrFlag: true}
}

func TestType0(t *testing.T) {
	sps := &ps.SPS{Log2MaxPicOrderCntLsbMinus4: 2} // MaxPicOrderCntLsb = 64

	var s State
	p, err := s.Decode(idr(), sps)
	require.Nil(t, err)
	require.Equal(t, POC{}, p)

	var pocs []int32
	for _, lsb := range []uint32{20, 40, 60, 10, 30} {
		h := frame(1, true)
		h.PicOrderCntLsb = lsb
		p, err = s.Decode(h, sps)
		require.Nil(t, err)
		pocs = append(pocs, p.This)
	}
	require.Equal(t, []int32{20, 40, 60, 74, 94}, pocs)

	// non reference picture does not move prev values
	h := frame(2, false)
	h.PicOrderCntLsb = 50
	p, err = s.Decode(h, sps)
	require.Nil(t, err)
	require.Equal(t, int32(114), p.This)
	require.Equal(t, int32(30), s.PrevPicOrderCntLsb)

	// frame with delta bottom
	h = frame(3, true)
	h.PicOrderCntLsb = 32
	h.DeltaPicOrderCntBottom = -1
	p, err = s.Decode(h, sps)
	require.Nil(t, err)
	require.Equal(t, POC{Top: 96, Bottom: 95, This: 95, Frame: 95}, p)

	// bottom field
	h = frame(4, true)
	h.Structure = h264.BottomField
	h.FieldPic, h.BottomField = true, true
	h.PicOrderCntLsb = 33
	p, err = s.Decode(h, sps)
	require.Nil(t, err)
	require.Equal(t, POC{Bottom: 97, This: 97, Frame: 97}, p)
}

func TestType0MMCO5(t *testing.T) {
	sps := &ps.SPS{Log2MaxPicOrderCntLsbMinus4: 2}

	var s State
	_, _ = s.Decode(idr(), sps)

	h := frame(1, true)
	h.PicOrderCntLsb = 40
	_, _ = s.Decode(h, sps)

	// previous frame had MMCO 5, its top POC became 2 after reset
	s.MarkMMCO5(false, 2)
	h = frame(0, true)
	h.PicOrderCntLsb = 4
	p, err := s.Decode(h, sps)
	require.Nil(t, err)
	require.Equal(t, int32(4), p.This)

	// bottom field with MMCO 5 resets prev lsb to zero
	s.MarkMMCO5(true, 0)
	h = frame(0, true)
	h.PicOrderCntLsb = 50
	p, err = s.Decode(h, sps)
	require.Nil(t, err)
	require.Equal(t, int32(-14), p.This)
}

func TestType1(t *testing.T) {
	sps := &ps.SPS{
		PicOrderCntType:                1,
		Log2MaxFrameNumMinus4:          0,
		OffsetForNonRefPic:             -2,
		OffsetForTopToBottomField:      1,
		NumRefFramesInPicOrderCntCycle: 2,
		OffsetForRefFrame:              []int32{4, 2},
	}

	var s State
	p, err := s.Decode(idr(), sps)
	require.Nil(t, err)
	require.Equal(t, POC{Top: 0, Bottom: 1, This: 0, Frame: 0}, p)

	p, err = s.Decode(frame(1, true), sps)
	require.Nil(t, err)
	require.Equal(t, POC{Top: 4, Bottom: 5, This: 4, Frame: 4}, p)

	p, err = s.Decode(frame(2, false), sps)
	require.Nil(t, err)
	require.Equal(t, POC{Top: 2, Bottom: 3, This: 2, Frame: 2}, p)

	p, err = s.Decode(frame(2, true), sps)
	require.Nil(t, err)
	require.Equal(t, int32(6), p.Top)

	h := frame(3, true)
	h.Structure = h264.BottomField
	h.FieldPic, h.BottomField = true, true
	p, err = s.Decode(h, sps)
	require.Nil(t, err)
	require.Equal(t, POC{Bottom: 11, This: 11, Frame: 11}, p)

	// IDR must have frame_num = 0
	h = idr()
	h.FrameNum = 1
	_, err = s.Decode(h, sps)
	require.ErrorIs(t, err, h264.ErrMalformedNalUnit)
}

func TestType2(t *testing.T) {
	sps := &ps.SPS{PicOrderCntType: 2} // MaxFrameNum = 16

	var s State
	p, err := s.Decode(idr(), sps)
	require.Nil(t, err)
	require.Equal(t, POC{}, p)

	p, err = s.Decode(frame(1, true), sps)
	require.Nil(t, err)
	require.Equal(t, POC{Top: 2, Bottom: 2, This: 2, Frame: 2}, p)

	p, err = s.Decode(frame(2, false), sps)
	require.Nil(t, err)
	require.Equal(t, int32(3), p.This)

	p, err = s.Decode(frame(15, true), sps)
	require.Nil(t, err)
	require.Equal(t, int32(30), p.This)

	// frame_num wrap
	p, err = s.Decode(frame(0, true), sps)
	require.Nil(t, err)
	require.Equal(t, int32(32), p.This)
	require.Equal(t, int32(16), s.FrameNumOffset)

	// MMCO 5 resets frame_num offset
	s.MarkMMCO5(false, 0)
	p, err = s.Decode(frame(1, true), sps)
	require.Nil(t, err)
	require.Equal(t, int32(2), p.This)
}

func TestUnknownType(t *testing.T) {
	var s State
	_, err := s.Decode(idr(), &ps.SPS{PicOrderCntType: 3})
	require.ErrorIs(t, err, h264.ErrUnsupported)
}
