package dpb

import (
	"testing"

	"github.com/AlexxIT/go2avc/pkg/h264"
	"github.com/AlexxIT/go2avc/pkg/h264/ps"
	"github.com/AlexxIT/go2avc/pkg/h264/slice"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func frameNums(pics []*Picture) (nums []uint32) {
	for _, p := range pics {
		nums = append(nums, p.FrameNum)
	}
	return
}

func pocs(pics []*Picture) (pocs []int32) {
	for _, p := range pics {
		pocs = append(pocs, p.POC)
	}
	return
}

func sliceP(frameNum uint32, active uint32) *slice.Header {
	return &slice.Header{
		SliceType:       h264.SliceP,
		Structure:       h264.Frame,
		FrameNum:        frameNum,
		NumRefIdxActive: [2]uint32{active, 0},
	}
}

func TestInitListsP(t *testing.T) {
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

	// short-term by descending PicNum, then long-term
	d.UpdatePicNums(4, h264.Frame)
	l := d.InitLists(sliceP(4, 4), frame(4, 8, true), nil)
	require.Equal(t, []uint32{3, 2, 0, 1}, frameNums(l.Active(0)))
	require.True(t, l.List[0][3].IsLongTerm)
	require.Equal(t, 0, l.Size[1])
	require.Len(t, l.List[0], h264.MaxListSize)
	require.Same(t, NoReferencePicture, l.List[0][4])

	// truncated to num_ref_idx_l0_active
	l = d.InitLists(sliceP(4, 2), frame(4, 8, true), nil)
	require.Equal(t, []uint32{3, 2}, frameNums(l.Active(0)))
	require.Same(t, NoReferencePicture, l.List[0][2])
}

func TestInitListsPWrap(t *testing.T) {
	d, _ := newTestDPB(5, 4)

	p := frame(14, 0, true)
	p.IdrFlag = true
	store(t, d, p, frame(15, 2, true), frame(0, 4, true), frame(1, 6, true))

	d.UpdatePicNums(2, h264.Frame)
	l := d.InitLists(sliceP(2, 4), frame(2, 8, true), nil)
	require.Equal(t, []uint32{1, 0, 15, 14}, frameNums(l.Active(0)))
	require.Equal(t, int32(-2), l.List[0][3].PicNum)
}

func TestInitListsB(t *testing.T) {
	d, _ := newTestDPB(5, 4)
	store(t, d, idrFrame(0), frame(1, 8, true), frame(2, 16, true))

	h := &slice.Header{SliceType: h264.SliceB, Structure: h264.Frame, FrameNum: 3, NumRefIdxActive: [2]uint32{3, 3}}
	l := d.InitLists(h, frame(3, 4, false), nil)
	require.Equal(t, []int32{0, 8, 16}, pocs(l.Active(0)))
	require.Equal(t, []int32{8, 16, 0}, pocs(l.Active(1)))

	// equal lists, first two entries of list 1 are swapped
	l = d.InitLists(h, frame(3, 20, false), nil)
	require.Equal(t, []int32{16, 8, 0}, pocs(l.Active(0)))
	require.Equal(t, []int32{8, 16, 0}, pocs(l.Active(1)))

	// single entry is not swapped
	h.NumRefIdxActive = [2]uint32{1, 1}
	l = d.InitLists(h, frame(3, 20, false), nil)
	require.Equal(t, []int32{16}, pocs(l.Active(0)))
	require.Equal(t, []int32{8}, pocs(l.Active(1)))
}

func TestInitListsField(t *testing.T) {
	d, _ := newTestDPB(4, 4)
	store(t, d,
		field(h264.TopField, 0, 0, true), field(h264.BottomField, 0, 1, true),
		field(h264.TopField, 1, 4, true), field(h264.BottomField, 1, 5, true),
	)
	require.Equal(t, 2, d.UsedSize())

	h := &slice.Header{SliceType: h264.SliceP, Structure: h264.TopField, FrameNum: 2, NumRefIdxActive: [2]uint32{4, 0}}
	d.UpdatePicNums(2, h264.TopField)
	l := d.InitLists(h, field(h264.TopField, 2, 8, true), nil)
	require.Equal(t, []int32{4, 5, 0, 1}, pocs(l.Active(0)))
	require.Equal(t, int32(3), l.List[0][0].PicNum)
	require.Equal(t, int32(2), l.List[0][1].PicNum)

	h.Structure = h264.BottomField
	d.UpdatePicNums(2, h264.BottomField)
	l = d.InitLists(h, field(h264.BottomField, 2, 9, true), nil)
	require.Equal(t, []int32{5, 4, 1, 0}, pocs(l.Active(0)))
	require.Equal(t, int32(3), l.List[0][0].PicNum)

	// B field, order by POC of frame store
	h.SliceType = h264.SliceB
	h.Structure = h264.TopField
	h.NumRefIdxActive = [2]uint32{4, 4}
	d.UpdatePicNums(2, h264.TopField)
	l = d.InitLists(h, field(h264.TopField, 2, 2, false), nil)
	require.Equal(t, []int32{0, 1, 4, 5}, pocs(l.Active(0)))
	require.Equal(t, []int32{4, 5, 0, 1}, pocs(l.Active(1)))
}

func TestReorder(t *testing.T) {
	d, _ := newTestDPB(5, 4)
	store(t, d, idrFrame(0), frame(1, 2, true), frame(2, 4, true), frame(3, 6, true))

	h := sliceP(4, 4)
	pic := frame(4, 8, true)
	d.UpdatePicNums(4, h264.Frame)

	l := d.InitLists(h, pic, nil)
	require.Equal(t, []uint32{3, 2, 1, 0}, frameNums(l.Active(0)))

	h.RefPicListModificationFlag[0] = true
	h.RefPicListModification[0] = []slice.RefPicListMod{
		{IDC: 0, AbsDiffPicNumMinus1: 2},
		{IDC: 1, AbsDiffPicNumMinus1: 1},
	}
	require.Nil(t, d.Reorder(l, h, pic, nil))
	require.Equal(t, []uint32{1, 3, 2, 0}, frameNums(l.Active(0)))
	require.Same(t, NoReferencePicture, l.List[0][4])

	// missing long-term picture is skipped
	l = d.InitLists(h, pic, nil)
	h.RefPicListModification[0] = []slice.RefPicListMod{
		{IDC: 2, LongTermPicNum: 5},
		{IDC: 0, AbsDiffPicNumMinus1: 3},
	}
	err := d.Reorder(l, h, pic, nil)
	require.ErrorIs(t, err, h264.ErrReferenceNotFound)
	require.Equal(t, []uint32{0, 3, 2, 1}, frameNums(l.Active(0)))
}

func TestReorderMissingReference(t *testing.T) {
	d, _ := newTestDPB(5, 4)
	store(t, d, idrFrame(0), frame(1, 2, true))

	h := sliceP(2, 3)
	pic := frame(2, 4, true)
	d.UpdatePicNums(2, h264.Frame)

	l := d.InitLists(h, pic, nil)
	require.Equal(t, 2, l.Size[0])

	err := d.Reorder(l, h, pic, nil)
	require.ErrorIs(t, err, h264.ErrMissingReference)
	require.Equal(t, 3, l.Size[0])
	require.Same(t, NoReferencePicture, l.List[0][2])
}

func TestMbaffLists(t *testing.T) {
	d, _ := newTestDPB(4, 4)

	p0, p1 := idrFrame(0), frame(1, 2, true)
	p0.FrameMbsOnly, p1.FrameMbsOnly = false, false
	store(t, d, p0, p1)

	h := &slice.Header{SliceType: h264.SliceB, Structure: h264.Frame, FrameNum: 2, NumRefIdxActive: [2]uint32{2, 1}}
	l := d.InitLists(h, frame(2, 1, false), nil)
	l.InitMbaffLists()

	fs0, fs1 := d.FS[0], d.FS[1]
	require.Equal(t, []*Picture{fs0.TopField, fs0.BottomField, fs1.TopField, fs1.BottomField}, l.Active(2))
	require.Equal(t, []*Picture{fs0.BottomField, fs0.TopField, fs1.BottomField, fs1.TopField}, l.Active(4))
	require.Equal(t, []*Picture{fs1.TopField, fs1.BottomField}, l.Active(3))
	require.Equal(t, []*Picture{fs1.BottomField, fs1.TopField}, l.Active(5))
	require.Same(t, NoReferencePicture, l.List[2][4])
}

func testSubset() *ps.SubsetSPS {
	return &ps.SubsetSPS{
		NumViewsMinus1: 1,
		ViewID:         []uint32{0, 1},
		AnchorRefs:     [2][][]uint32{{{}, {0}}, {{}, {0}}},
		NonAnchorRefs:  [2][][]uint32{{{}, {0}}, {{}, {}}},
	}
}

func TestInterView(t *testing.T) {
	d := New(Config{LayerID: 1, Logger: zerolog.Nop()})
	d.Size, d.NumRefFrames, d.MaxFrameNum = 4, 2, 16

	p := idrFrame(0)
	p.ViewID, p.LayerID = 1, 1
	store(t, d, p)

	base := frame(1, 4, true)
	base.InterView = true
	d.StoreInterView(base)

	h := &slice.Header{
		SliceType: h264.SliceP, Structure: h264.Frame, FrameNum: 1,
		MVC: true, ViewID: 1, LayerID: 1, NumRefIdxActive: [2]uint32{2, 0},
	}
	pic := frame(1, 4, true)
	pic.ViewID, pic.LayerID = 1, 1

	d.UpdatePicNums(1, h264.Frame)
	l := d.InitLists(h, pic, testSubset())
	require.Equal(t, []int32{0, 4}, pocs(l.Active(0)))
	require.False(t, l.List[0][1].UsedForReference)
	require.Equal(t, []*FrameStore{d.FSILRef}, l.InterView[0])

	h.RefPicListModificationFlag[0] = true
	h.RefPicListModification[0] = []slice.RefPicListMod{{IDC: 5, AbsDiffViewIdxMinus1: 0}}
	require.Nil(t, d.Reorder(l, h, pic, testSubset()))
	require.Equal(t, []int32{4, 0}, pocs(l.Active(0)))
	require.Equal(t, uint32(1), l.List[0][1].ViewID)

	// non-anchor list 1 has no inter-view references
	h.SliceType = h264.SliceB
	h.RefPicListModificationFlag[0] = false
	h.NumRefIdxActive = [2]uint32{2, 1}
	l = d.InitLists(h, pic, testSubset())
	require.Equal(t, []int32{0, 4}, pocs(l.Active(0)))
	require.Equal(t, []int32{0}, pocs(l.Active(1)))
	require.Empty(t, l.InterView[1])

	// picture of other access unit is not used
	pic.POC = 8
	l = d.InitLists(h, pic, testSubset())
	require.Equal(t, 1, l.Size[0])
}
