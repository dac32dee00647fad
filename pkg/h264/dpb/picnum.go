package dpb

import (
	"github.com/AlexxIT/go2avc/pkg/h264"
)

// UpdatePicNums - FrameNumWrap, PicNum and LongTermPicNum of stored references
// relative to the current picture, 8.2.4.1
func (d *DPB) UpdatePicNums(frameNum uint32, structure h264.PictureStructure) {
	maxFrameNum := int32(d.MaxFrameNum)

	wrap := func(fs *FrameStore) {
		if fs.FrameNum > frameNum {
			fs.FrameNumWrap = int32(fs.FrameNum) - maxFrameNum
		} else {
			fs.FrameNumWrap = int32(fs.FrameNum)
		}
	}

	if structure == h264.Frame {
		for _, fs := range d.FSRef {
			if fs.IsUsed == 3 && fs.Frame.UsedForReference && !fs.Frame.IsLongTerm {
				wrap(fs)
				fs.Frame.PicNum = fs.FrameNumWrap
			}
		}
		for _, fs := range d.FSLTRef {
			if fs.IsUsed == 3 && fs.Frame.IsLongTerm {
				fs.Frame.LongTermPicNum = fs.Frame.LongTermFrameIdx
			}
		}
		return
	}

	var addTop, addBottom int32
	if structure == h264.TopField {
		addTop = 1
	} else {
		addBottom = 1
	}

	for _, fs := range d.FSRef {
		if fs.IsReference == 0 {
			continue
		}
		wrap(fs)
		if fs.IsReference&1 != 0 {
			fs.TopField.PicNum = 2*fs.FrameNumWrap + addTop
		}
		if fs.IsReference&2 != 0 {
			fs.BottomField.PicNum = 2*fs.FrameNumWrap + addBottom
		}
	}

	for _, fs := range d.FSLTRef {
		if fs.IsLongTerm&1 != 0 {
			fs.TopField.LongTermPicNum = 2*fs.TopField.LongTermFrameIdx + addTop
		}
		if fs.IsLongTerm&2 != 0 {
			fs.BottomField.LongTermPicNum = 2*fs.BottomField.LongTermFrameIdx + addBottom
		}
	}
}
