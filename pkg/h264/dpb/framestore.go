package dpb

import (
	"github.com/AlexxIT/go2avc/pkg/h264"
)

// FrameStore - frame or complementary field pair, bit 1 - top field, bit 2 - bottom field
type FrameStore struct {
	IsUsed          uint8
	IsReference     uint8
	IsOrigReference uint8
	IsLongTerm      uint8
	IsOutput        bool
	NonExisting     bool

	FrameNum         uint32
	FrameNumWrap     int32
	LongTermFrameIdx int32
	POC              int32

	ViewID    uint32
	LayerID   int
	InterView [2]bool
	Anchor    [2]bool

	Frame       *Picture
	TopField    *Picture
	BottomField *Picture
}

// Pictures - stored views, nil entries for missing ones
func (fs *FrameStore) Pictures() (frame, top, bottom *Picture) {
	return fs.Frame, fs.TopField, fs.BottomField
}

// IsUsedForReference - any part of the store is used for reference
func (fs *FrameStore) IsUsedForReference() bool {
	if fs.IsReference != 0 {
		return true
	}
	if fs.IsUsed == 3 && fs.Frame.UsedForReference {
		return true
	}
	if fs.IsUsed&1 != 0 && fs.TopField != nil && fs.TopField.UsedForReference {
		return true
	}
	if fs.IsUsed&2 != 0 && fs.BottomField != nil && fs.BottomField.UsedForReference {
		return true
	}
	return false
}

// IsShortTermReference - frame or any field is short-term reference
func (fs *FrameStore) IsShortTermReference() bool {
	if fs.IsUsed == 3 && fs.Frame.IsShortTermRef() {
		return true
	}
	if fs.IsUsed&1 != 0 && fs.TopField != nil && fs.TopField.IsShortTermRef() {
		return true
	}
	if fs.IsUsed&2 != 0 && fs.BottomField != nil && fs.BottomField.IsShortTermRef() {
		return true
	}
	return false
}

// IsLongTermReference - frame or any field is long-term reference
func (fs *FrameStore) IsLongTermReference() bool {
	if fs.IsUsed == 3 && fs.Frame.IsLongTermRef() {
		return true
	}
	if fs.IsUsed&1 != 0 && fs.TopField != nil && fs.TopField.IsLongTermRef() {
		return true
	}
	if fs.IsUsed&2 != 0 && fs.BottomField != nil && fs.BottomField.IsLongTermRef() {
		return true
	}
	return false
}

// UnmarkForReference - marks all parts unused for reference
func (fs *FrameStore) UnmarkForReference() {
	if fs.IsUsed&1 != 0 && fs.TopField != nil {
		fs.TopField.UsedForReference = false
	}
	if fs.IsUsed&2 != 0 && fs.BottomField != nil {
		fs.BottomField.UsedForReference = false
	}
	if fs.IsUsed == 3 {
		fs.Frame.UsedForReference = false
	}
	fs.IsReference = 0
}

// UnmarkForLongTermReference - marks all parts unused for reference and resets long-term flags
func (fs *FrameStore) UnmarkForLongTermReference() {
	if fs.IsUsed&1 != 0 && fs.TopField != nil {
		fs.TopField.UsedForReference = false
		fs.TopField.IsLongTerm = false
	}
	if fs.IsUsed&2 != 0 && fs.BottomField != nil {
		fs.BottomField.UsedForReference = false
		fs.BottomField.IsLongTerm = false
	}
	if fs.IsUsed == 3 {
		fs.Frame.UsedForReference = false
		fs.Frame.IsLongTerm = false
	}
	fs.IsReference = 0
	fs.IsLongTerm = 0
}

// Insert - put frame or field into the store
func (fs *FrameStore) Insert(p *Picture) {
	switch p.Structure {
	case h264.Frame:
		fs.Frame = p
		fs.IsUsed = 3
		if p.UsedForReference {
			fs.IsReference = 3
			fs.IsOrigReference = 3
			if p.IsLongTerm {
				fs.IsLongTerm = 3
				fs.LongTermFrameIdx = p.LongTermFrameIdx
			}
		}
		fs.InterView = [2]bool{p.InterView, p.InterView}
		fs.Anchor = [2]bool{p.Anchor, p.Anchor}
		fs.SplitFrame()

	case h264.TopField, h264.BottomField:
		var bit uint8 = 1
		var idx int
		if p.Structure == h264.TopField {
			fs.TopField = p
		} else {
			fs.BottomField = p
			bit, idx = 2, 1
		}
		fs.IsUsed |= bit
		fs.InterView[idx] = p.InterView
		fs.Anchor[idx] = p.Anchor
		if p.UsedForReference {
			fs.IsReference |= bit
			fs.IsOrigReference |= bit
			if p.IsLongTerm {
				fs.IsLongTerm |= bit
				fs.LongTermFrameIdx = p.LongTermFrameIdx
			}
		}
		if fs.IsUsed == 3 {
			fs.CombineFields()
		} else {
			fs.POC = p.POC
		}
	}

	fs.LayerID = p.LayerID
	fs.ViewID = p.ViewID
	fs.FrameNum = uint32(p.PicNum)
	fs.IsOutput = p.IsOutput
	fs.NonExisting = p.NonExisting
}

// SplitFrame - field views of a stored frame, only for streams that may have fields
func (fs *FrameStore) SplitFrame() {
	frame := fs.Frame
	fs.POC = frame.POC

	if frame.FrameMbsOnly {
		fs.TopField, fs.BottomField = nil, nil
		frame.TopField, frame.BottomField = nil, nil
		frame.Frame = frame
		return
	}

	top := &Picture{Structure: h264.TopField, POC: frame.TopPOC}
	bottom := &Picture{Structure: h264.BottomField, POC: frame.BottomPOC}

	for _, p := range []*Picture{top, bottom} {
		p.TopPOC = frame.TopPOC
		p.BottomPOC = frame.BottomPOC
		p.FramePOC = frame.FramePOC
		p.FrameNum = frame.FrameNum
		p.UsedForReference = frame.UsedForReference
		p.IsLongTerm = frame.IsLongTerm
		p.LongTermFrameIdx = frame.LongTermFrameIdx
		p.CodedFrame = true
		p.MbAff = frame.MbAff
		p.NonExisting = frame.NonExisting
		p.ViewID = frame.ViewID
		p.LayerID = frame.LayerID
		p.InterView = frame.InterView
		p.Anchor = frame.Anchor
		p.Frame, p.TopField, p.BottomField = frame, top, bottom
	}
	fs.LongTermFrameIdx = frame.LongTermFrameIdx

	if frame.Samples != nil {
		top.Samples, bottom.Samples = splitPlanes(frame.Samples)
	}
	if frame.Motion != nil {
		top.Motion, bottom.Motion = splitMotion(frame.Motion)
	}

	frame.Frame, frame.TopField, frame.BottomField = frame, top, bottom
	fs.TopField, fs.BottomField = top, bottom
}

// CombineFields - frame view of a complementary field pair
func (fs *FrameStore) CombineFields() {
	top, bottom := fs.TopField, fs.BottomField

	frame := fs.Frame
	if frame == nil {
		frame = &Picture{Structure: h264.Frame}
		fs.Frame = frame
	}

	fs.POC = min32(top.POC, bottom.POC)
	frame.POC, frame.FramePOC = fs.POC, fs.POC
	top.FramePOC, bottom.FramePOC = fs.POC, fs.POC

	frame.TopPOC, bottom.TopPOC = top.POC, top.POC
	frame.BottomPOC, top.BottomPOC = bottom.POC, bottom.POC

	frame.UsedForReference = top.UsedForReference && bottom.UsedForReference
	frame.IsLongTerm = top.IsLongTerm && bottom.IsLongTerm
	if frame.IsLongTerm {
		frame.LongTermFrameIdx = fs.LongTermFrameIdx
	}

	frame.FrameNum = top.FrameNum
	frame.PicNum = top.PicNum
	frame.CodedFrame = false
	frame.FrameMbsOnly = top.FrameMbsOnly
	frame.NonExisting = top.NonExisting
	frame.SliceType = top.SliceType
	frame.ViewID = fs.ViewID
	frame.LayerID = top.LayerID
	frame.InterView = top.InterView
	frame.Anchor = top.Anchor

	if top.Samples != nil && bottom.Samples != nil {
		frame.Samples = combinePlanes(top.Samples, bottom.Samples)
	}
	if top.Motion != nil && bottom.Motion != nil {
		frame.Motion = combineMotion(top.Motion, bottom.Motion)
	}

	frame.Frame, frame.TopField, frame.BottomField = frame, top, bottom
	top.Frame, top.TopField, top.BottomField = frame, top, bottom
	bottom.Frame, bottom.TopField, bottom.BottomField = frame, top, bottom
}

func interleave(dst, even, odd []byte, width int) {
	for y := 0; y*width < len(even); y++ {
		copy(dst[2*y*width:], even[y*width:(y+1)*width])
		copy(dst[(2*y+1)*width:], odd[y*width:(y+1)*width])
	}
}

func deinterleave(src []byte, width int) (even, odd []byte) {
	rows := len(src) / width / 2
	even = make([]byte, rows*width)
	odd = make([]byte, rows*width)
	for y := 0; y < rows; y++ {
		copy(even[y*width:], src[2*y*width:(2*y+1)*width])
		copy(odd[y*width:], src[(2*y+1)*width:(2*y+2)*width])
	}
	return
}

func combinePlanes(top, bottom *Planes) *Planes {
	p := NewPlanes(top.Width, top.Height*2, top.CWidth, top.CHeight*2)
	interleave(p.Y, top.Y, bottom.Y, p.Width)
	if p.CWidth > 0 {
		interleave(p.Cb, top.Cb, bottom.Cb, p.CWidth)
		interleave(p.Cr, top.Cr, bottom.Cr, p.CWidth)
	}
	return p
}

func splitPlanes(frame *Planes) (top, bottom *Planes) {
	top = &Planes{Width: frame.Width, Height: frame.Height / 2, CWidth: frame.CWidth, CHeight: frame.CHeight / 2}
	bottom = &Planes{Width: frame.Width, Height: frame.Height / 2, CWidth: frame.CWidth, CHeight: frame.CHeight / 2}
	top.Y, bottom.Y = deinterleave(frame.Y, frame.Width)
	if frame.CWidth > 0 {
		top.Cb, bottom.Cb = deinterleave(frame.Cb, frame.CWidth)
		top.Cr, bottom.Cr = deinterleave(frame.Cr, frame.CWidth)
	}
	return
}

func combineMotion(top, bottom *Motion) *Motion {
	m := &Motion{Width: top.Width, Height: top.Height * 2, Blocks: make([]MotionInfo, 0, len(top.Blocks)*2)}
	for y := 0; y < top.Height; y++ {
		m.Blocks = append(m.Blocks, top.Row(y)...)
		m.Blocks = append(m.Blocks, bottom.Row(y)...)
	}
	return m
}

func splitMotion(frame *Motion) (top, bottom *Motion) {
	top = &Motion{Width: frame.Width, Height: frame.Height / 2}
	bottom = &Motion{Width: frame.Width, Height: frame.Height / 2}
	for y := 0; y+1 < frame.Height; y += 2 {
		top.Blocks = append(top.Blocks, frame.Row(y)...)
		bottom.Blocks = append(bottom.Blocks, frame.Row(y+1)...)
	}
	return
}

func min32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}
