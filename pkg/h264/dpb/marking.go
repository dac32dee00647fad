package dpb

import (
	"math"

	"github.com/AlexxIT/go2avc/pkg/h264"
	"github.com/pkg/errors"
)

// idrMemoryManagement - all reference pictures are marked unused, 8.2.5.1
func (d *DPB) idrMemoryManagement(p *Picture) {
	if p.NoOutputOfPriorPics {
		d.FS = nil
		d.direct = nil
	} else {
		d.Flush()
	}

	d.LastPicture = nil
	d.updateRefList()
	d.updateLTRefList()
	d.LastOutputPOC = math.MinInt32

	if p.LongTermReference {
		d.MaxLongTermPicIdx = 0
		p.IsLongTerm = true
		p.LongTermFrameIdx = 0
	} else {
		d.MaxLongTermPicIdx = -1
		p.IsLongTerm = false
	}
}

// slidingWindow - oldest short-term frame is unmarked when the buffer is full, 8.2.5.3
func (d *DPB) slidingWindow(p *Picture) {
	if len(d.FSRef) == maxInt(1, d.NumRefFrames)-len(d.FSLTRef) {
		for _, fs := range d.FS {
			if fs.IsReference != 0 && fs.IsLongTerm == 0 {
				fs.UnmarkForReference()
				d.updateRefList()
				break
			}
		}
	}
	p.IsLongTerm = false
}

// adaptiveMemoryManagement - memory_management_control_operation commands, 8.2.5.4,
// failed command is skipped, last error is returned
func (d *DPB) adaptiveMemoryManagement(p *Picture) (err error) {
	for _, op := range p.MMCO {
		var opErr error

		switch op.Op {
		case 1:
			opErr = d.unmarkShortTerm(p, op.DifferenceOfPicNumsMinus1)
			d.updateRefList()
		case 2:
			opErr = d.unmarkLongTerm(p, int32(op.LongTermPicNum))
			d.updateLTRefList()
		case 3:
			opErr = d.assignLongTermFrameIdx(p, op.DifferenceOfPicNumsMinus1, int32(op.LongTermFrameIdx))
			d.updateRefList()
			d.updateLTRefList()
		case 4:
			d.updateMaxLongTermFrameIdx(int32(op.MaxLongTermFrameIdxPlus1))
			d.updateLTRefList()
		case 5:
			d.unmarkAllShortTerm()
			d.updateMaxLongTermFrameIdx(0)
			d.updateLTRefList()
			d.LastHasMMCO5 = true
		case 6:
			d.markCurrentLongTerm(p, int32(op.LongTermFrameIdx))
			opErr = d.checkNumRef()
		default:
			opErr = errors.Errorf("dpb: wrong memory_management_control_operation=%d", op.Op)
		}

		if opErr != nil {
			err = errors.Wrapf(opErr, "mmco=%d", op.Op)
		}
	}

	if d.LastHasMMCO5 {
		p.PicNum = 0
		p.FrameNum = 0

		switch p.Structure {
		case h264.TopField:
			p.POC, p.TopPOC = 0, 0
		case h264.BottomField:
			p.POC, p.BottomPOC = 0, 0
		case h264.Frame:
			p.TopPOC -= p.POC
			p.BottomPOC -= p.POC
			p.POC = min32(p.TopPOC, p.BottomPOC)
			p.FramePOC = p.POC
		}

		d.Flush()
	}

	return
}

// picNumX - CurrPicNum - (difference_of_pic_nums_minus1 + 1)
func picNumX(p *Picture, diffMinus1 uint32) int32 {
	if p.Structure == h264.Frame {
		return int32(p.FrameNum) - int32(diffMinus1+1)
	}
	return 2*int32(p.FrameNum) + 1 - int32(diffMinus1+1)
}

// unmarkShortTerm - memory_management_control_operation 1
func (d *DPB) unmarkShortTerm(p *Picture, diffMinus1 uint32) error {
	num := picNumX(p, diffMinus1)

	for _, fs := range d.FSRef {
		if p.Structure == h264.Frame {
			if fs.IsReference == 3 && fs.IsLongTerm == 0 && fs.Frame.PicNum == num {
				fs.UnmarkForReference()
				return nil
			}
			continue
		}

		if fs.IsReference&1 != 0 && fs.IsLongTerm&1 == 0 && fs.TopField.PicNum == num {
			fs.TopField.UsedForReference = false
			fs.IsReference &= 2
			if fs.IsUsed == 3 {
				fs.Frame.UsedForReference = false
			}
			return nil
		}
		if fs.IsReference&2 != 0 && fs.IsLongTerm&2 == 0 && fs.BottomField.PicNum == num {
			fs.BottomField.UsedForReference = false
			fs.IsReference &= 1
			if fs.IsUsed == 3 {
				fs.Frame.UsedForReference = false
			}
			return nil
		}
	}

	return errors.Wrapf(h264.ErrReferenceNotFound, "dpb: short-term pic_num=%d", num)
}

// unmarkLongTerm - memory_management_control_operation 2
func (d *DPB) unmarkLongTerm(p *Picture, longTermPicNum int32) error {
	for _, fs := range d.FSLTRef {
		if p.Structure == h264.Frame {
			if fs.IsReference == 3 && fs.IsLongTerm == 3 && fs.Frame.LongTermPicNum == longTermPicNum {
				fs.UnmarkForLongTermReference()
				return nil
			}
			continue
		}

		if fs.IsReference&1 != 0 && fs.IsLongTerm&1 != 0 && fs.TopField.LongTermPicNum == longTermPicNum {
			fs.TopField.UsedForReference = false
			fs.TopField.IsLongTerm = false
			fs.IsReference &= 2
			fs.IsLongTerm &= 2
			if fs.IsUsed == 3 {
				fs.Frame.UsedForReference = false
				fs.Frame.IsLongTerm = false
			}
			return nil
		}
		if fs.IsReference&2 != 0 && fs.IsLongTerm&2 != 0 && fs.BottomField.LongTermPicNum == longTermPicNum {
			fs.BottomField.UsedForReference = false
			fs.BottomField.IsLongTerm = false
			fs.IsReference &= 1
			fs.IsLongTerm &= 1
			if fs.IsUsed == 3 {
				fs.Frame.UsedForReference = false
				fs.Frame.IsLongTerm = false
			}
			return nil
		}
	}

	return errors.Wrapf(h264.ErrReferenceNotFound, "dpb: long_term_pic_num=%d", longTermPicNum)
}

// assignLongTermFrameIdx - memory_management_control_operation 3
func (d *DPB) assignLongTermFrameIdx(p *Picture, diffMinus1 uint32, idx int32) error {
	num := picNumX(p, diffMinus1)

	if p.Structure == h264.Frame {
		d.unmarkLongTermFrameByIdx(idx)
	} else {
		structure := h264.Frame

		for _, fs := range d.FSRef {
			if fs.IsReference&1 != 0 && fs.TopField.PicNum == num {
				if fs.TopField.IsLongTerm && fs.TopField.LongTermFrameIdx != idx {
					d.log.Warn().Msgf("[dpb] long_term_frame_idx=%d different from other field", idx)
				}
				structure = h264.TopField
				break
			}
			if fs.IsReference&2 != 0 && fs.BottomField.PicNum == num {
				if fs.BottomField.IsLongTerm && fs.BottomField.LongTermFrameIdx != idx {
					d.log.Warn().Msgf("[dpb] long_term_frame_idx=%d different from other field", idx)
				}
				structure = h264.BottomField
				break
			}
		}

		if structure == h264.Frame {
			return errors.Wrapf(h264.ErrReferenceNotFound, "dpb: field for long-term marking pic_num=%d", num)
		}

		d.unmarkLongTermFieldByIdx(structure, idx, false, 0, num)
	}

	return d.markPicLongTerm(p, idx, num)
}

// unmarkLongTermFrameByIdx - frees long_term_frame_idx taken by other frame
func (d *DPB) unmarkLongTermFrameByIdx(idx int32) {
	for _, fs := range d.FSLTRef {
		if fs.LongTermFrameIdx == idx {
			fs.UnmarkForLongTermReference()
		}
	}
}

// unmarkLongTermFieldByIdx - frees long_term_frame_idx unless it belongs to the other field of the same frame
func (d *DPB) unmarkLongTermFieldByIdx(structure h264.PictureStructure, idx int32, markCurrent bool, currFrameNum uint32, currPicNum int32) {
	if currPicNum < 0 {
		currPicNum += 2 * int32(d.MaxFrameNum)
	}

	var own uint8 = 1
	if structure == h264.BottomField {
		own = 2
	}

	for _, fs := range d.FSLTRef {
		if fs.LongTermFrameIdx != idx {
			continue
		}

		switch fs.IsLongTerm {
		case 3, own:
			fs.UnmarkForLongTermReference()
		default:
			if markCurrent {
				if d.LastPicture != fs || d.LastPicture.FrameNum != currFrameNum {
					fs.UnmarkForLongTermReference()
				}
			} else if fs.FrameNum != uint32(currPicNum>>1) {
				fs.UnmarkForLongTermReference()
			}
		}
	}
}

func (d *DPB) markPicLongTerm(p *Picture, idx int32, num int32) error {
	if p.Structure == h264.Frame {
		for _, fs := range d.FSRef {
			if fs.IsReference != 3 || fs.Frame.IsLongTerm || fs.Frame.PicNum != num {
				continue
			}

			fs.LongTermFrameIdx = idx
			fs.Frame.LongTermFrameIdx = idx
			fs.Frame.LongTermPicNum = idx
			fs.Frame.IsLongTerm = true

			if fs.TopField != nil && fs.BottomField != nil {
				for _, f := range []*Picture{fs.TopField, fs.BottomField} {
					f.LongTermFrameIdx = idx
					f.LongTermPicNum = idx
					f.IsLongTerm = true
				}
			}

			fs.IsLongTerm = 3
			return nil
		}

		return errors.Wrapf(h264.ErrReferenceNotFound, "dpb: frame for long-term marking pic_num=%d", num)
	}

	var addTop, addBottom int32
	if p.Structure == h264.TopField {
		addTop = 1
	} else {
		addBottom = 1
	}

	for _, fs := range d.FSRef {
		if fs.IsReference&1 != 0 && !fs.TopField.IsLongTerm && fs.TopField.PicNum == num {
			d.markFieldLongTerm(fs, fs.TopField, 1, idx, addTop)
			return nil
		}
		if fs.IsReference&2 != 0 && !fs.BottomField.IsLongTerm && fs.BottomField.PicNum == num {
			d.markFieldLongTerm(fs, fs.BottomField, 2, idx, addBottom)
			return nil
		}
	}

	return errors.Wrapf(h264.ErrReferenceNotFound, "dpb: field for long-term marking pic_num=%d", num)
}

func (d *DPB) markFieldLongTerm(fs *FrameStore, f *Picture, bit uint8, idx, sameParity int32) {
	if fs.IsLongTerm != 0 && fs.LongTermFrameIdx != idx {
		d.log.Warn().Msgf("[dpb] long_term_frame_idx=%d different from other field", idx)
	}

	fs.LongTermFrameIdx = idx
	f.LongTermFrameIdx = idx
	f.LongTermPicNum = 2*idx + sameParity
	f.IsLongTerm = true

	fs.IsLongTerm |= bit
	if fs.IsLongTerm == 3 {
		fs.Frame.IsLongTerm = true
		fs.Frame.LongTermFrameIdx = idx
		fs.Frame.LongTermPicNum = idx
	}
}

// updateMaxLongTermFrameIdx - memory_management_control_operation 4
func (d *DPB) updateMaxLongTermFrameIdx(maxPlus1 int32) {
	d.MaxLongTermPicIdx = maxPlus1 - 1

	for _, fs := range d.FSLTRef {
		if fs.LongTermFrameIdx > d.MaxLongTermPicIdx {
			fs.UnmarkForLongTermReference()
		}
	}
}

func (d *DPB) unmarkAllShortTerm() {
	for _, fs := range d.FSRef {
		fs.UnmarkForReference()
	}
	d.updateRefList()
}

// markCurrentLongTerm - memory_management_control_operation 6
func (d *DPB) markCurrentLongTerm(p *Picture, idx int32) {
	if p.Structure == h264.Frame {
		d.unmarkLongTermFrameByIdx(idx)
	} else {
		d.unmarkLongTermFieldByIdx(p.Structure, idx, true, uint32(p.PicNum), 0)
	}

	p.IsLongTerm = true
	p.LongTermFrameIdx = idx
}
