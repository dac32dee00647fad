package dpb

import (
	"github.com/AlexxIT/go2avc/pkg/h264"
	"github.com/AlexxIT/go2avc/pkg/h264/ps"
	"github.com/AlexxIT/go2avc/pkg/h264/slice"
)

// appendInterView - inter-view reference of the same access unit to the end of lists, H.7.4.3.1.1
func (d *DPB) appendInterView(l *RefLists, h *slice.Header, pic *Picture, subset *ps.SubsetSPS) {
	fs := d.FSILRef
	if fs == nil || subset == nil {
		return
	}

	lists := 1
	if h.SliceType == h264.SliceB {
		lists = 2
	}

	for list := 0; list < lists; list++ {
		p := fs.interViewPicture(h.Structure)
		if p == nil || p.POC != pic.POC {
			continue
		}
		if !subset.HasInterViewRef(h.LayerID, h.Anchor, list, fs.ViewID) {
			continue
		}

		active := append(l.Active(list), p)
		l.set(list, active)
		l.InterView[list] = append(l.InterView[list], fs)
	}
}

// interViewPicture - stored picture with the same structure as current one,
// nil if it isn't available or isn't marked for inter-view prediction
func (fs *FrameStore) interViewPicture(structure h264.PictureStructure) *Picture {
	switch structure {
	case h264.Frame:
		if fs.IsUsed == 3 && fs.InterView[0] {
			return fs.Frame
		}
	case h264.TopField:
		if fs.IsUsed&1 != 0 && fs.InterView[0] {
			return fs.TopField
		}
	case h264.BottomField:
		if fs.IsUsed&2 != 0 && fs.InterView[1] {
			return fs.BottomField
		}
	}
	return nil
}

// interViewRef - inter-view picture of view viewID appended to list
func (l *RefLists) interViewRef(list int, viewID uint32, structure h264.PictureStructure) *Picture {
	for _, fs := range l.InterView[list] {
		if fs.ViewID == viewID {
			return fs.interViewPicture(structure)
		}
	}
	return nil
}
