// Package dpb - decoded picture buffer, reference marking and reference picture lists
package dpb

import (
	"fmt"

	"github.com/AlexxIT/go2avc/pkg/h264"
	"github.com/AlexxIT/go2avc/pkg/h264/poc"
	"github.com/AlexxIT/go2avc/pkg/h264/ps"
	"github.com/AlexxIT/go2avc/pkg/h264/slice"
)

// MotionInfo - motion of one 4x4 block
type MotionInfo struct {
	MV     [2][2]int16 // [list][x, y]
	RefIdx [2]int8     // -1 - not used
	RefPic [2]*Picture
}

// Motion - grid of 4x4 blocks, row by row
type Motion struct {
	Width  int
	Height int
	Blocks []MotionInfo
}

func NewMotion(width, height int) *Motion {
	m := &Motion{Width: width, Height: height, Blocks: make([]MotionInfo, width*height)}
	for i := range m.Blocks {
		m.Blocks[i].RefIdx = [2]int8{-1, -1}
	}
	return m
}

func (m *Motion) Row(y int) []MotionInfo {
	return m.Blocks[y*m.Width : (y+1)*m.Width]
}

// Planes - 8 bit samples, chroma planes are empty for 4:0:0
type Planes struct {
	Width, Height   int
	CWidth, CHeight int
	Y, Cb, Cr       []byte
}

func NewPlanes(width, height, cwidth, cheight int) *Planes {
	return &Planes{
		Width: width, Height: height, CWidth: cwidth, CHeight: cheight,
		Y:  make([]byte, width*height),
		Cb: make([]byte, cwidth*cheight),
		Cr: make([]byte, cwidth*cheight),
	}
}

// Picture - decoded frame or field
type Picture struct {
	Structure h264.PictureStructure

	POC       int32
	TopPOC    int32
	BottomPOC int32
	FramePOC  int32

	FrameNum         uint32
	PicNum           int32
	LongTermPicNum   int32
	LongTermFrameIdx int32

	UsedForReference bool
	IsLongTerm       bool
	IdrFlag          bool
	NonExisting      bool
	IsOutput         bool
	CodedFrame       bool
	FrameMbsOnly     bool
	MbAff            bool
	SliceType        uint32

	ViewID    uint32
	LayerID   int
	InterView bool
	Anchor    bool

	// dec_ref_pic_marking of the picture
	NoOutputOfPriorPics   bool
	LongTermReference     bool
	AdaptiveRefPicMarking bool
	MMCO                  []slice.MMCO

	Motion  *Motion
	Samples *Planes

	// views of the same frame store, not owned by picture
	Frame       *Picture
	TopField    *Picture
	BottomField *Picture
}

// NoReferencePicture - fills unused slots of reference lists
var NoReferencePicture = newNoReferencePicture()

func newNoReferencePicture() *Picture {
	p := &Picture{NonExisting: true}
	p.Frame, p.TopField, p.BottomField = p, p, p
	return p
}

// NewPicture - picture for the first slice h with its order counts
func NewPicture(h *slice.Header, sps *ps.SPS, c poc.POC) *Picture {
	p := &Picture{
		Structure: h.Structure,
		POC:       c.This,
		TopPOC:    c.Top,
		BottomPOC: c.Bottom,
		FramePOC:  c.Frame,

		FrameNum:         h.FrameNum,
		PicNum:           int32(h.FrameNum),
		UsedForReference: h.IsReference(),
		IdrFlag:          h.IsIDRView(),
		CodedFrame:       h.Structure == h264.Frame,
		FrameMbsOnly:     sps.FrameMbsOnly,
		MbAff:            h.MbAff,
		SliceType:        h.SliceType,

		ViewID:    h.ViewID,
		LayerID:   h.LayerID,
		InterView: h.InterView,
		Anchor:    h.Anchor,

		NoOutputOfPriorPics:   h.DecRefPicMarking.NoOutputOfPriorPics,
		LongTermReference:     h.DecRefPicMarking.LongTermReference,
		AdaptiveRefPicMarking: h.DecRefPicMarking.AdaptiveRefPicMarking,
		MMCO:                  h.DecRefPicMarking.MMCO,
	}

	p.Frame, p.TopField, p.BottomField = NoReferencePicture, NoReferencePicture, NoReferencePicture

	width := int(sps.PicWidthInMbs()) * 16
	height := int(sps.FrameHeightInMbs()) * 16
	if h.Structure != h264.Frame {
		height /= 2
	}
	p.Motion = NewMotion(width/4, height/4)

	return p
}

// IsShortTermRef - used for short-term reference
func (p *Picture) IsShortTermRef() bool {
	return p.UsedForReference && !p.IsLongTerm
}

// IsLongTermRef - used for long-term reference
func (p *Picture) IsLongTermRef() bool {
	return p.UsedForReference && p.IsLongTerm
}

// AllocSamples - sample planes for picture size, chroma size depends on chroma_format_idc
func (p *Picture) AllocSamples(sps *ps.SPS) {
	width := int(sps.PicWidthInMbs()) * 16
	height := int(sps.FrameHeightInMbs()) * 16
	if p.Structure != h264.Frame {
		height /= 2
	}

	var cw, ch int
	switch sps.ChromaFormatIDC {
	case 1:
		cw, ch = width/2, height/2
	case 2:
		cw, ch = width/2, height
	case 3:
		cw, ch = width, height
	}

	p.Samples = NewPlanes(width, height, cw, ch)
}

func (p *Picture) String() string {
	if p == NoReferencePicture {
		return "no-ref"
	}
	s := fmt.Sprintf("%s poc=%d frame_num=%d pic_num=%d", p.Structure, p.POC, p.FrameNum, p.PicNum)
	if p.IsLongTerm {
		s += fmt.Sprintf(" lt_pic_num=%d lt_idx=%d", p.LongTermPicNum, p.LongTermFrameIdx)
	}
	if p.ViewID != 0 {
		s += fmt.Sprintf(" view=%d", p.ViewID)
	}
	return s
}
