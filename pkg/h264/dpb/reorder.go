package dpb

import (
	"github.com/pkg/errors"

	"github.com/AlexxIT/go2avc/pkg/h264"
	"github.com/AlexxIT/go2avc/pkg/h264/ps"
	"github.com/AlexxIT/go2avc/pkg/h264/slice"
)

// Reorder - ref_pic_list_modification of lists 0 and 1 of slice h for picture pic, 8.2.4.3.
// Commands with missing target picture are skipped, first such error is returned
// after all lists are processed.
func (d *DPB) Reorder(l *RefLists, h *slice.Header, pic *Picture, subset *ps.SubsetSPS) (err error) {
	lists := 0
	switch h.SliceType {
	case h264.SliceP, h264.SliceSP:
		lists = 1
	case h264.SliceB:
		lists = 2
	}

	for list := 0; list < lists; list++ {
		active := int(h.NumRefIdxActive[list])

		if h.RefPicListModificationFlag[list] {
			if e := d.reorderList(l, list, h, pic, subset); e != nil && err == nil {
				err = e
			}
		}

		if active > 0 && l.List[list][active-1] == NoReferencePicture && err == nil {
			err = errors.Wrapf(h264.ErrMissingReference, "dpb: RefPicList%d[%d] is no reference picture", list, active-1)
		}

		l.Size[list] = active
		l.pad(list)
	}

	return
}

func (d *DPB) reorderList(l *RefLists, list int, h *slice.Header, pic *Picture, subset *ps.SubsetSPS) (err error) {
	maxPicNum := int32(h.MaxPicNum(d.MaxFrameNum))
	currPicNum := h.CurrPicNum()
	last := int(h.NumRefIdxActive[list]) - 1
	refs := l.List[list]

	picNumPred := currPicNum
	picViewIdxPred := -1
	refIdx := 0

	for _, mod := range h.RefPicListModification[list] {
		if refIdx > last {
			break
		}

		switch mod.IDC {
		case 0, 1:
			absDiff := int32(mod.AbsDiffPicNumMinus1) + 1
			var noWrap int32
			if mod.IDC == 0 {
				if noWrap = picNumPred - absDiff; noWrap < 0 {
					noWrap += maxPicNum
				}
			} else {
				if noWrap = picNumPred + absDiff; noWrap >= maxPicNum {
					noWrap -= maxPicNum
				}
			}
			picNumPred = noWrap

			picNum := noWrap
			if picNum > currPicNum {
				picNum -= maxPicNum
			}

			p := d.shortTermPic(h.Structure, picNum)
			if p == nil {
				if err == nil {
					err = errors.Wrapf(h264.ErrReferenceNotFound, "dpb: short-term pic_num=%d", picNum)
				}
				continue
			}
			refIdx = insertRef(refs, refIdx, last, p, func(q *Picture) bool {
				return !q.IsShortTermRef() || q.PicNum != picNum
			})

		case 2:
			ltPicNum := int32(mod.LongTermPicNum)

			p := d.longTermPic(h.Structure, ltPicNum)
			if p == nil {
				if err == nil {
					err = errors.Wrapf(h264.ErrReferenceNotFound, "dpb: long-term pic_num=%d", ltPicNum)
				}
				continue
			}
			refIdx = insertRef(refs, refIdx, last, p, func(q *Picture) bool {
				return !q.IsLongTermRef() || q.LongTermPicNum != ltPicNum
			})

		case 4, 5:
			if subset == nil {
				return errors.Wrap(h264.ErrMalformedNalUnit, "dpb: inter-view modification without subset SPS")
			}

			maxViewIdx := subset.MaxViewIdx(h.LayerID, h.Anchor, list)
			if maxViewIdx == 0 {
				if err == nil {
					err = errors.Wrap(h264.ErrReferenceNotFound, "dpb: no inter-view references")
				}
				continue
			}

			absDiff := int(mod.AbsDiffViewIdxMinus1) + 1
			var viewIdx int
			if mod.IDC == 4 {
				if viewIdx = picViewIdxPred - absDiff; viewIdx < 0 {
					viewIdx += maxViewIdx
				}
			} else {
				if viewIdx = picViewIdxPred + absDiff; viewIdx >= maxViewIdx {
					viewIdx -= maxViewIdx
				}
			}
			picViewIdxPred = viewIdx

			if viewIdx < 0 || viewIdx >= maxViewIdx {
				return errors.Wrapf(h264.ErrMalformedNalUnit, "dpb: abs_diff_view_idx_minus1=%d", mod.AbsDiffViewIdxMinus1)
			}

			targetViewID := subset.Refs(h.LayerID, h.Anchor, list)[viewIdx]

			p := l.interViewRef(list, targetViewID, h.Structure)
			if p == nil {
				if err == nil {
					err = errors.Wrapf(h264.ErrReferenceNotFound, "dpb: inter-view view_id=%d", targetViewID)
				}
				continue
			}
			refIdx = insertRef(refs, refIdx, last, p, func(q *Picture) bool {
				return q.ViewID != targetViewID || q.POC != pic.POC
			})
		}
	}

	return
}

// insertRef - puts p at refIdx and removes its other copy from the rest of the list,
// list must have room for last + 2 entries
func insertRef(list []*Picture, refIdx, last int, p *Picture, keep func(*Picture) bool) int {
	for i := last + 1; i > refIdx; i-- {
		list[i] = list[i-1]
	}
	list[refIdx] = p
	refIdx++

	n := refIdx
	for i := refIdx; i <= last+1; i++ {
		if keep(list[i]) {
			list[n] = list[i]
			n++
		}
	}

	return refIdx
}

// shortTermPic - short-term reference with picNum, 8.2.4.1
func (d *DPB) shortTermPic(structure h264.PictureStructure, picNum int32) *Picture {
	for _, fs := range d.FSRef {
		if structure == h264.Frame {
			if fs.IsReference == 3 && fs.Frame.IsShortTermRef() && fs.Frame.PicNum == picNum {
				return fs.Frame
			}
			continue
		}
		if fs.IsReference&1 != 0 && fs.TopField.IsShortTermRef() && fs.TopField.PicNum == picNum {
			return fs.TopField
		}
		if fs.IsReference&2 != 0 && fs.BottomField.IsShortTermRef() && fs.BottomField.PicNum == picNum {
			return fs.BottomField
		}
	}
	return nil
}

// longTermPic - long-term reference with ltPicNum
func (d *DPB) longTermPic(structure h264.PictureStructure, ltPicNum int32) *Picture {
	for _, fs := range d.FSLTRef {
		if structure == h264.Frame {
			if fs.IsReference == 3 && fs.Frame.IsLongTermRef() && fs.Frame.LongTermPicNum == ltPicNum {
				return fs.Frame
			}
			continue
		}
		if fs.IsReference&1 != 0 && fs.TopField.IsLongTermRef() && fs.TopField.LongTermPicNum == ltPicNum {
			return fs.TopField
		}
		if fs.IsReference&2 != 0 && fs.BottomField.IsLongTermRef() && fs.BottomField.LongTermPicNum == ltPicNum {
			return fs.BottomField
		}
	}
	return nil
}
