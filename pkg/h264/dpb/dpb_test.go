package dpb

import (
	"testing"

	"github.com/AlexxIT/go2avc/pkg/h264"
	"github.com/AlexxIT/go2avc/pkg/h264/poc"
	"github.com/AlexxIT/go2avc/pkg/h264/ps"
	"github.com/AlexxIT/go2avc/pkg/h264/slice"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestDPB(size, refs int) (*DPB, *[]int32) {
	var pocs []int32
	d := New(Config{
		Output: OutputFunc(func(fs *FrameStore) {
			pocs = append(pocs, fs.POC)
		}),
		Logger: zerolog.Nop(),
	})
	d.Size = size
	d.NumRefFrames = refs
	d.MaxFrameNum = 16
	return d, &pocs
}

func frame(frameNum uint32, poc int32, ref bool) *Picture {
	p := &Picture{
		Structure:        h264.Frame,
		POC:              poc,
		TopPOC:           poc,
		BottomPOC:        poc,
		FramePOC:         poc,
		FrameNum:         frameNum,
		PicNum:           int32(frameNum),
		UsedForReference: ref,
		CodedFrame:       true,
		FrameMbsOnly:     true,
	}
	p.Frame, p.TopField, p.BottomField = NoReferencePicture, NoReferencePicture, NoReferencePicture
	return p
}

func idrFrame(poc int32) *Picture {
	p := frame(0, poc, true)
	p.IdrFlag = true
	return p
}

func field(structure h264.PictureStructure, frameNum uint32, poc int32, ref bool) *Picture {
	p := frame(frameNum, poc, ref)
	p.Structure = structure
	p.CodedFrame = false
	p.FrameMbsOnly = false
	return p
}

func store(t *testing.T, d *DPB, pics ...*Picture) {
	for _, p := range pics {
		require.Nil(t, d.StorePicture(p))
	}
}

func refFrameNums(fss []*FrameStore) (nums []uint32) {
	for _, fs := range fss {
		nums = append(nums, fs.FrameNum)
	}
	return
}

func TestDpbSize(t *testing.T) {
	// 720x576
	sps := &ps.SPS{ProfileIDC: 77, LevelIDC: 30, PicWidthInMbsMinus1: 44, PicHeightInMapUnitsMinus1: 35, FrameMbsOnly: true}
	size, err := DpbSize(sps, nil)
	require.Nil(t, err)
	require.Equal(t, 5, size)

	sps.VUIParamsPresent = true
	sps.VUI.BitstreamRestriction = true
	sps.VUI.MaxDecFrameBuffering = 3
	size, err = DpbSize(sps, nil)
	require.Nil(t, err)
	require.Equal(t, 3, size)

	sps.VUI.MaxDecFrameBuffering = 6
	_, err = DpbSize(sps, nil)
	require.ErrorIs(t, err, h264.ErrDpbOverflow)

	sps.VUI.MaxDecFrameBuffering = 0
	size, err = DpbSize(sps, nil)
	require.Nil(t, err)
	require.Equal(t, 1, size)

	sps.LevelIDC = 0
	size, err = DpbSize(sps, nil)
	require.Nil(t, err)
	require.Equal(t, 16, size)

	sps.LevelIDC = 7
	_, err = DpbSize(sps, nil)
	require.ErrorIs(t, err, h264.ErrUnsupported)
}

func TestDpbSizeLevel1b(t *testing.T) {
	// QCIF, 99 MBs
	sps := &ps.SPS{ProfileIDC: 66, LevelIDC: 11, PicWidthInMbsMinus1: 10, PicHeightInMapUnitsMinus1: 8, FrameMbsOnly: true}
	size, err := DpbSize(sps, nil)
	require.Nil(t, err)
	require.Equal(t, 9, size)

	sps.Constraints = 0b0001_0000
	size, err = DpbSize(sps, nil)
	require.Nil(t, err)
	require.Equal(t, 4, size)

	// constraint_set3_flag has other meaning for High profile
	sps.ProfileIDC = 100
	size, err = DpbSize(sps, nil)
	require.Nil(t, err)
	require.Equal(t, 9, size)
}

func TestDpbSizeMVC(t *testing.T) {
	// 1280x720, 3600 MBs
	sps := &ps.SPS{ProfileIDC: 100, LevelIDC: 40, PicWidthInMbsMinus1: 79, PicHeightInMapUnitsMinus1: 44, FrameMbsOnly: true}
	size, err := DpbSize(sps, nil)
	require.Nil(t, err)
	require.Equal(t, 9, size)

	sps.ProfileIDC = 128
	subset := &ps.SubsetSPS{NumViewsMinus1: 1}
	size, err = DpbSize(sps, subset)
	require.Nil(t, err)
	require.Equal(t, 8, size)
}

func TestInitOverflow(t *testing.T) {
	sps := &ps.SPS{
		ProfileIDC: 77, LevelIDC: 30, PicWidthInMbsMinus1: 44, PicHeightInMapUnitsMinus1: 35,
		FrameMbsOnly: true, NumRefFrames: 6,
	}

	d := New(Config{Logger: zerolog.Nop()})
	err := d.Init(sps, nil)
	require.ErrorIs(t, err, h264.ErrDpbOverflow)

	d = New(Config{Extra: 1, Logger: zerolog.Nop()})
	require.Nil(t, d.Init(sps, nil))
	require.Equal(t, 6, d.Size)
	require.Equal(t, uint32(16), d.MaxFrameNum)
	require.Equal(t, int32(-1), d.MaxLongTermPicIdx)
}

func TestSlidingWindow(t *testing.T) {
	d, out := newTestDPB(4, 2)

	store(t, d, idrFrame(0), frame(1, 2, true), frame(2, 4, true), frame(3, 6, true))
	require.Equal(t, []uint32{2, 3}, refFrameNums(d.FSRef))
	require.Equal(t, 4, d.UsedSize())
	require.Empty(t, *out)

	// buffer is full, frame with smallest POC leaves it
	store(t, d, frame(4, 8, true))
	require.Equal(t, []uint32{3, 4}, refFrameNums(d.FSRef))
	require.Equal(t, []int32{0}, *out)

	d.Flush()
	require.Equal(t, []int32{0, 2, 4, 6, 8}, *out)
	require.Equal(t, 0, d.UsedSize())
	require.Empty(t, d.FSRef)
}

func TestDirectOutput(t *testing.T) {
	d, out := newTestDPB(1, 1)

	store(t, d, idrFrame(0), frame(1, 8, true))
	require.Equal(t, []int32{0}, *out)

	// non-reference picture before all stored ones
	store(t, d, frame(2, 4, false))
	require.Equal(t, []int32{0, 4}, *out)
	require.Equal(t, 1, d.UsedSize())

	d.Flush()
	require.Equal(t, []int32{0, 4, 8}, *out)
}

func TestDuplicateFrameNum(t *testing.T) {
	d, _ := newTestDPB(4, 4)

	store(t, d, idrFrame(0), frame(1, 2, true))
	require.NotNil(t, d.StorePicture(frame(1, 4, true)))
	require.Equal(t, 2, d.UsedSize())
}

func TestNoOutputOfPriorPics(t *testing.T) {
	d, out := newTestDPB(4, 4)
	store(t, d, idrFrame(0), frame(1, 2, true))

	p := idrFrame(0)
	p.NoOutputOfPriorPics = true
	store(t, d, p)
	require.Empty(t, *out)
	require.Equal(t, 1, d.UsedSize())

	// IDR flushes prior pictures
	store(t, d, frame(1, 2, true), idrFrame(0))
	require.Equal(t, []int32{0, 2}, *out)
}

func TestMMCO1(t *testing.T) {
	d, _ := newTestDPB(5, 4)
	store(t, d, idrFrame(0), frame(1, 2, true), frame(2, 4, true), frame(3, 6, true))
	require.Equal(t, []uint32{0, 1, 2, 3}, refFrameNums(d.FSRef))

	p := frame(4, 8, true)
	p.AdaptiveRefPicMarking = true
	p.MMCO = []slice.MMCO{{Op: 1, DifferenceOfPicNumsMinus1: 2}}

	d.UpdatePicNums(4, h264.Frame)
	store(t, d, p)
	require.Equal(t, []uint32{0, 2, 3, 4}, refFrameNums(d.FSRef))
}

func TestMMCO3(t *testing.T) {
	d, _ := newTestDPB(5, 4)
	store(t, d, idrFrame(0), frame(1, 2, true), frame(2, 4, true))

	p := frame(3, 6, true)
	p.AdaptiveRefPicMarking = true
	p.MMCO = []slice.MMCO{
		{Op: 4, MaxLongTermFrameIdxPlus1: 1},
		{Op: 3, DifferenceOfPicNumsMinus1: 1, LongTermFrameIdx: 0},
	}

	d.UpdatePicNums(3, h264.Frame)
	store(t, d, p)
	require.Equal(t, []uint32{0, 2, 3}, refFrameNums(d.FSRef))
	require.Equal(t, []uint32{1}, refFrameNums(d.FSLTRef))
	require.Equal(t, int32(0), d.MaxLongTermPicIdx)

	// max long-term index 0 removes the long-term frame
	p = frame(4, 8, true)
	p.AdaptiveRefPicMarking = true
	p.MMCO = []slice.MMCO{{Op: 4, MaxLongTermFrameIdxPlus1: 0}}

	d.UpdatePicNums(4, h264.Frame)
	store(t, d, p)
	require.Empty(t, d.FSLTRef)
	require.Equal(t, int32(-1), d.MaxLongTermPicIdx)
}

func TestMMCO5(t *testing.T) {
	d, out := newTestDPB(4, 4)
	store(t, d, idrFrame(0), frame(1, 4, true), frame(2, 8, true))

	p := frame(3, 12, true)
	p.BottomPOC = 13
	p.AdaptiveRefPicMarking = true
	p.MMCO = []slice.MMCO{{Op: 5}}

	store(t, d, p)
	require.True(t, d.LastHasMMCO5)
	require.Equal(t, []int32{0, 4, 8}, *out)

	require.Equal(t, 1, d.UsedSize())
	require.Equal(t, uint32(0), p.FrameNum)
	require.Equal(t, int32(0), p.TopPOC)
	require.Equal(t, int32(1), p.BottomPOC)
	require.Equal(t, int32(0), p.POC)
	require.Equal(t, []uint32{0}, refFrameNums(d.FSRef))
}

func TestMMCO6(t *testing.T) {
	d, _ := newTestDPB(4, 2)
	store(t, d, idrFrame(0))

	p := frame(1, 2, true)
	p.AdaptiveRefPicMarking = true
	p.MMCO = []slice.MMCO{
		{Op: 4, MaxLongTermFrameIdxPlus1: 1},
		{Op: 6, LongTermFrameIdx: 0},
	}
	store(t, d, p)
	require.True(t, p.IsLongTerm)
	require.Equal(t, []uint32{0}, refFrameNums(d.FSRef))
	require.Equal(t, []uint32{1}, refFrameNums(d.FSLTRef))
}

func TestFieldPair(t *testing.T) {
	d, out := newTestDPB(4, 4)

	store(t, d, field(h264.TopField, 1, 0, true))
	require.NotNil(t, d.LastPicture)
	require.Equal(t, []uint32{1}, refFrameNums(d.FSRef))

	store(t, d, field(h264.BottomField, 1, 1, true))
	require.Nil(t, d.LastPicture)
	require.Equal(t, 1, d.UsedSize())

	fs := d.FS[0]
	require.Equal(t, uint8(3), fs.IsUsed)
	require.Equal(t, uint8(3), fs.IsReference)
	require.Equal(t, int32(0), fs.POC)
	require.True(t, fs.Frame.UsedForReference)
	require.Equal(t, int32(1), fs.Frame.BottomPOC)
	require.Same(t, fs.Frame, fs.TopField.Frame)

	// fields with different frame_num are not paired
	store(t, d, field(h264.TopField, 2, 4, true), field(h264.BottomField, 3, 5, true))
	require.Equal(t, 3, d.UsedSize())

	d.Flush()
	require.Equal(t, []int32{0, 4, 5}, *out)
}

func TestSplitCombine(t *testing.T) {
	p := frame(1, 0, true)
	p.FrameMbsOnly = false
	p.BottomPOC = 1
	p.Samples = NewPlanes(2, 4, 0, 0)
	copy(p.Samples.Y, []byte{0, 0, 1, 1, 2, 2, 3, 3})
	p.Motion = NewMotion(1, 2)
	p.Motion.Blocks[1].RefIdx[0] = 5

	fs := &FrameStore{}
	fs.Insert(p)
	require.Equal(t, []byte{0, 0, 2, 2}, fs.TopField.Samples.Y)
	require.Equal(t, []byte{1, 1, 3, 3}, fs.BottomField.Samples.Y)
	require.Equal(t, int8(5), fs.BottomField.Motion.Blocks[0].RefIdx[0])
	require.Equal(t, int32(1), fs.BottomField.POC)

	fs2 := &FrameStore{}
	fs2.Insert(fs.TopField)
	fs2.Insert(fs.BottomField)
	require.Equal(t, p.Samples.Y, fs2.Frame.Samples.Y)
	require.Equal(t, p.Motion.Blocks, fs2.Frame.Motion.Blocks)
}

func TestNonExistingFrame(t *testing.T) {
	d, out := newTestDPB(4, 2)
	store(t, d, idrFrame(0))

	for _, n := range []uint32{1, 2} {
		store(t, d, NewNonExistingFrame(n, poc.POC{}, true))
	}
	require.Equal(t, []uint32{1, 2}, refFrameNums(d.FSRef))

	d.Flush()
	require.Equal(t, []int32{0}, *out)
}
