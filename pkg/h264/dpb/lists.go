package dpb

import (
	"sort"
	"strings"

	"github.com/AlexxIT/go2avc/pkg/h264"
	"github.com/AlexxIT/go2avc/pkg/h264/ps"
	"github.com/AlexxIT/go2avc/pkg/h264/slice"
)

// RefLists - RefPicList0 and RefPicList1 with MBAFF field lists:
// 2 - list 0 for top field MBs, 3 - list 1 for top field MBs,
// 4 - list 0 for bottom field MBs, 5 - list 1 for bottom field MBs
type RefLists struct {
	List [6][]*Picture // always h264.MaxListSize entries
	Size [6]int

	// inter-view frame stores appended to lists 0 and 1
	InterView [2][]*FrameStore
}

func NewRefLists() *RefLists {
	l := &RefLists{}
	for i := range l.List {
		l.List[i] = make([]*Picture, h264.MaxListSize)
		l.pad(i)
	}
	return l
}

// pad - slots after Size are NoReferencePicture
func (l *RefLists) pad(i int) {
	for j := l.Size[i]; j < h264.MaxListSize; j++ {
		l.List[i][j] = NoReferencePicture
	}
}

// set - copy of list to slot i
func (l *RefLists) set(i int, list []*Picture) {
	if len(list) > h264.MaxListSize {
		list = list[:h264.MaxListSize]
	}
	l.Size[i] = copy(l.List[i], list)
	l.pad(i)
}

// Active - used part of list
func (l *RefLists) Active(i int) []*Picture {
	return l.List[i][:l.Size[i]]
}

func (l *RefLists) String() string {
	var sb strings.Builder
	for i := 0; i < 2; i++ {
		if i > 0 {
			sb.WriteString(" | ")
		}
		for j, p := range l.Active(i) {
			if j > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(p.String())
		}
	}
	return sb.String()
}

// InitLists - initial reference picture lists for slice of picture pic, 8.2.4.2
func (d *DPB) InitLists(h *slice.Header, pic *Picture, subset *ps.SubsetSPS) *RefLists {
	l := NewRefLists()

	switch h.SliceType {
	case h264.SliceP, h264.SliceSP:
		d.initListsP(l, h)
	case h264.SliceB:
		d.initListsB(l, h, pic)
	}

	if h.MVC && h.SliceType != h264.SliceI && h.SliceType != h264.SliceSI {
		d.appendInterView(l, h, pic, subset)
	}

	for i := 0; i < 2; i++ {
		if l.Size[i] > int(h.NumRefIdxActive[i]) {
			l.Size[i] = int(h.NumRefIdxActive[i])
		}
		l.pad(i)
	}

	return l
}

func (d *DPB) initListsP(l *RefLists, h *slice.Header) {
	var list []*Picture

	if h.Structure == h264.Frame {
		for _, fs := range d.FSRef {
			if fs.IsUsed == 3 && fs.Frame.IsShortTermRef() {
				list = append(list, fs.Frame)
			}
		}
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].PicNum > list[j].PicNum
		})

		n := len(list)
		for _, fs := range d.FSLTRef {
			if fs.IsUsed == 3 && fs.Frame.IsLongTerm {
				list = append(list, fs.Frame)
			}
		}
		lt := list[n:]
		sort.SliceStable(lt, func(i, j int) bool {
			return lt[i].LongTermPicNum < lt[j].LongTermPicNum
		})
	} else {
		var fsList []*FrameStore
		for _, fs := range d.FSRef {
			if fs.IsReference != 0 {
				fsList = append(fsList, fs)
			}
		}
		sort.SliceStable(fsList, func(i, j int) bool {
			return fsList[i].FrameNumWrap > fsList[j].FrameNumWrap
		})
		list = GenPicListFromFrameList(h.Structure, fsList, list, false)

		list = GenPicListFromFrameList(h.Structure, sortedLongTerm(d.FSLTRef), list, true)
	}

	l.set(0, list)
	l.set(1, nil)
}

func (d *DPB) initListsB(l *RefLists, h *slice.Header, pic *Picture) {
	if h.Structure == h264.Frame {
		var before, after []*Picture
		for _, fs := range d.FSRef {
			if fs.IsUsed == 3 && fs.Frame.IsShortTermRef() {
				if pic.FramePOC >= fs.Frame.POC {
					before = append(before, fs.Frame)
				} else {
					after = append(after, fs.Frame)
				}
			}
		}
		sort.SliceStable(before, func(i, j int) bool {
			return before[i].POC > before[j].POC
		})
		sort.SliceStable(after, func(i, j int) bool {
			return after[i].POC < after[j].POC
		})

		var lt []*Picture
		for _, fs := range d.FSLTRef {
			if fs.IsUsed == 3 && fs.Frame.IsLongTerm {
				lt = append(lt, fs.Frame)
			}
		}
		sort.SliceStable(lt, func(i, j int) bool {
			return lt[i].LongTermPicNum < lt[j].LongTermPicNum
		})

		var list0, list1 []*Picture
		list0 = append(append(append(list0, before...), after...), lt...)
		list1 = append(append(append(list1, after...), before...), lt...)
		l.set(0, list0)
		l.set(1, list1)
	} else {
		var before, after []*FrameStore
		for _, fs := range d.FSRef {
			if fs.IsUsed == 0 {
				continue
			}
			if pic.POC >= fs.POC {
				before = append(before, fs)
			} else {
				after = append(after, fs)
			}
		}
		sort.SliceStable(before, func(i, j int) bool {
			return before[i].POC > before[j].POC
		})
		sort.SliceStable(after, func(i, j int) bool {
			return after[i].POC < after[j].POC
		})

		fsList0 := append(append([]*FrameStore{}, before...), after...)
		fsList1 := append(append([]*FrameStore{}, after...), before...)

		lt := sortedLongTerm(d.FSLTRef)

		list0 := GenPicListFromFrameList(h.Structure, fsList0, nil, false)
		list0 = GenPicListFromFrameList(h.Structure, lt, list0, true)
		list1 := GenPicListFromFrameList(h.Structure, fsList1, nil, false)
		list1 = GenPicListFromFrameList(h.Structure, lt, list1, true)
		l.set(0, list0)
		l.set(1, list1)
	}

	// identical lists with more than one entry, first two entries of list 1 are swapped
	if l.Size[0] == l.Size[1] && l.Size[0] > 1 {
		for i := 0; i < l.Size[0]; i++ {
			if l.List[0][i] != l.List[1][i] {
				return
			}
		}
		l.List[1][0], l.List[1][1] = l.List[1][1], l.List[1][0]
	}
}

func sortedLongTerm(src []*FrameStore) []*FrameStore {
	lt := append([]*FrameStore{}, src...)
	sort.SliceStable(lt, func(i, j int) bool {
		return lt[i].LongTermFrameIdx < lt[j].LongTermFrameIdx
	})
	return lt
}

// GenPicListFromFrameList - fields from frame list alternating parity,
// starting with the parity of current field, 8.2.4.2.5
func GenPicListFromFrameList(structure h264.PictureStructure, fsList []*FrameStore, list []*Picture, longTerm bool) []*Picture {
	isRef := (*Picture).IsShortTermRef
	if longTerm {
		isRef = (*Picture).IsLongTermRef
	}

	same := func(fs *FrameStore) *Picture {
		if structure == h264.TopField {
			if fs.IsUsed&1 != 0 && isRef(fs.TopField) {
				return fs.TopField
			}
		} else if fs.IsUsed&2 != 0 && isRef(fs.BottomField) {
			return fs.BottomField
		}
		return nil
	}
	opposite := func(fs *FrameStore) *Picture {
		if structure == h264.TopField {
			if fs.IsUsed&2 != 0 && isRef(fs.BottomField) {
				return fs.BottomField
			}
		} else if fs.IsUsed&1 != 0 && isRef(fs.TopField) {
			return fs.TopField
		}
		return nil
	}

	var sameIdx, oppIdx int
	for sameIdx < len(fsList) || oppIdx < len(fsList) {
		for ; sameIdx < len(fsList); sameIdx++ {
			if p := same(fsList[sameIdx]); p != nil {
				list = append(list, p)
				sameIdx++
				break
			}
		}
		for ; oppIdx < len(fsList); oppIdx++ {
			if p := opposite(fsList[oppIdx]); p != nil {
				list = append(list, p)
				oppIdx++
				break
			}
		}
	}

	return list
}

// InitMbaffLists - field lists 2..5 from frame lists 0 and 1
func (l *RefLists) InitMbaffLists() {
	for list := 0; list < 2; list++ {
		var same, opposite []*Picture
		for _, p := range l.Active(list) {
			top, bottom := fieldsOf(p)
			same = append(same, top, bottom)
			opposite = append(opposite, bottom, top)
		}
		l.set(2+list, same)
		l.set(4+list, opposite)
	}
}

func fieldsOf(p *Picture) (top, bottom *Picture) {
	top, bottom = p.TopField, p.BottomField
	if top == nil {
		top = NoReferencePicture
	}
	if bottom == nil {
		bottom = NoReferencePicture
	}
	return
}
