package dpb

import (
	"math"

	"github.com/AlexxIT/go2avc/pkg/h264"
	"github.com/AlexxIT/go2avc/pkg/h264/poc"
	"github.com/AlexxIT/go2avc/pkg/h264/ps"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Output - receives pictures leaving the buffer in output order
type Output interface {
	WritePicture(fs *FrameStore)
	WriteUnpairedField(fs *FrameStore)
}

// OutputFunc - Output for both frames and unpaired fields
type OutputFunc func(fs *FrameStore)

func (f OutputFunc) WritePicture(fs *FrameStore) {
	f(fs)
}

func (f OutputFunc) WriteUnpairedField(fs *FrameStore) {
	f(fs)
}

type Config struct {
	// Extra - frames added to the size from level limits
	Extra   int
	LayerID int
	Output  Output
	Logger  zerolog.Logger
}

// DPB - decoded picture buffer of one view layer
type DPB struct {
	Size    int
	FS      []*FrameStore // used frame stores in decoding order
	FSRef   []*FrameStore // short-term reference frames
	FSLTRef []*FrameStore // long-term reference frames
	FSILRef *FrameStore   // inter-view reference from base view, layer 1 only

	// first field waiting for its pair
	LastPicture *FrameStore

	NumRefFrames      int
	MaxFrameNum       uint32
	MaxLongTermPicIdx int32 // -1 - no long-term frame indices
	LastOutputPOC     int32
	LayerID           int

	// LastHasMMCO5 - last stored picture had memory_management_control_operation 5
	LastHasMMCO5       bool
	LastPicBottomField bool

	extra  int
	out    Output
	direct *FrameStore // non-reference fields for direct output
	log    zerolog.Logger
}

func New(cfg Config) *DPB {
	d := &DPB{
		extra:   cfg.Extra,
		LayerID: cfg.LayerID,
		out:     cfg.Output,
		log:     cfg.Logger,
	}
	if d.out == nil {
		d.out = OutputFunc(func(*FrameStore) {})
	}
	d.reset()
	return d
}

func (d *DPB) reset() {
	d.FS = nil
	d.FSRef = nil
	d.FSLTRef = nil
	d.LastPicture = nil
	d.direct = nil
	d.MaxLongTermPicIdx = -1
	d.LastOutputPOC = math.MinInt32
	d.LastHasMMCO5 = false
	// inter-view picture belongs to access unit, not to sequence
	if d.LayerID > 0 && d.FSILRef == nil {
		d.FSILRef = &FrameStore{}
	}
}

// Init - buffer size for sequence, all stored pictures are dropped without output
func (d *DPB) Init(sps *ps.SPS, subset *ps.SubsetSPS) error {
	size, err := DpbSize(sps, subset)
	if err != nil {
		return err
	}

	d.reset()
	d.Size = size + d.extra
	d.NumRefFrames = int(sps.NumRefFrames)
	d.MaxFrameNum = sps.MaxFrameNum()

	if d.Size < d.NumRefFrames {
		return errors.Wrapf(
			h264.ErrDpbOverflow, "dpb: size=%d smaller than num_ref_frames=%d", d.Size, d.NumRefFrames,
		)
	}

	d.log.Debug().Msgf("[dpb] init layer=%d size=%d refs=%d", d.LayerID, d.Size, d.NumRefFrames)

	return nil
}

// UsedSize - number of used frame stores
func (d *DPB) UsedSize() int {
	return len(d.FS)
}

// dpbLevelSize - MaxDpbMbs from Table A-1
var dpbLevelSize = map[uint8]int{
	9:  396,
	10: 396,
	11: 900,
	12: 2376,
	13: 2376,
	20: 2376,
	21: 4752,
	22: 8100,
	30: 8100,
	31: 18000,
	32: 20480,
	40: 32768,
	41: 32768,
	42: 34816,
	50: 110400,
	51: 184320,
	52: 184320,
	60: 696320,
	61: 696320,
	62: 696320,
}

// DpbSize - number of frames from level limits, MVC views and VUI max_dec_frame_buffering
func DpbSize(sps *ps.SPS, subset *ps.SubsetSPS) (int, error) {
	if sps.LevelIDC == 0 {
		return h264.MaxDpbFrames, nil
	}

	size, ok := dpbLevelSize[sps.LevelIDC]
	if !ok {
		return 0, errors.Wrapf(h264.ErrUnsupported, "dpb: level=%d", sps.LevelIDC)
	}

	// level 1b for Baseline, Main and Extended profiles
	if sps.LevelIDC == 11 && !h264.IsFRExtProfile(sps.ProfileIDC) && sps.ConstraintSet3() {
		size = 396
	}

	picSizeMbs := int(sps.PicWidthInMbs() * sps.FrameHeightInMbs())
	if picSizeMbs == 0 {
		return 0, errors.Wrap(h264.ErrUnsupported, "dpb: zero picture size")
	}
	size /= picSizeMbs

	if h264.IsMVCProfile(sps.ProfileIDC) && subset != nil {
		numViews := subset.NumViews()
		size = minInt(2*size, maxInt(1, roundLog2(numViews))*16) / numViews
	} else {
		size = minInt(size, h264.MaxDpbFrames)
	}

	if sps.VUIParamsPresent && sps.VUI.BitstreamRestriction {
		if int(sps.VUI.MaxDecFrameBuffering) > size {
			return 0, errors.Wrapf(
				h264.ErrDpbOverflow, "dpb: max_dec_frame_buffering=%d larger than %d",
				sps.VUI.MaxDecFrameBuffering, size,
			)
		}
		size = maxInt(1, int(sps.VUI.MaxDecFrameBuffering))
	}

	return size, nil
}

// roundLog2 - Log2 rounded to nearest integer
func roundLog2(v int) int {
	var n int
	square := v * v
	for 1<<(n+1) <= square {
		n++
	}
	return (n + 1) >> 1
}

// StorePicture - marking process and storage of decoded picture, 8.2.5 and C.4
func (d *DPB) StorePicture(p *Picture) error {
	d.LastHasMMCO5 = false
	d.LastPicBottomField = p.Structure == h264.BottomField

	secondField := d.isSecondField(p)

	if p.IdrFlag {
		if !secondField {
			d.idrMemoryManagement(p)
		} else if p.LongTermReference {
			p.IsLongTerm = true
			p.LongTermFrameIdx = 0
		}
	} else if p.UsedForReference && p.AdaptiveRefPicMarking {
		if err := d.adaptiveMemoryManagement(p); err != nil {
			d.log.Warn().Err(err).Msgf("[dpb] memory management %s", p)
		}
	}

	// second field of a complementary pair goes to the store of the first one
	if secondField && d.isSecondField(p) {
		d.LastPicture.Insert(p)
		d.updateRefList()
		d.updateLTRefList()
		d.LastPicture = nil
		return nil
	}

	if !p.IdrFlag && p.UsedForReference && !p.AdaptiveRefPicMarking {
		d.slidingWindow(p)
	}

	if d.UsedSize() >= d.Size {
		d.removeUnusedFrame()
	}

	for d.UsedSize() >= d.Size {
		// non-reference pictures may be output directly
		if !p.UsedForReference {
			if pos, pocMin := d.smallestPOC(); pos < 0 || p.POC < pocMin {
				d.directOutput(p)
				return nil
			}
		}
		if !d.outputOneFrame() {
			return errors.Wrapf(h264.ErrDpbOverflow, "dpb: no frame for output, size=%d", d.Size)
		}
	}

	if p.UsedForReference && !p.IsLongTerm {
		for _, fs := range d.FSRef {
			if fs.FrameNum == p.FrameNum {
				return errors.Errorf("dpb: duplicate frame_num=%d in short-term reference buffer", p.FrameNum)
			}
		}
	}

	fs := &FrameStore{}
	fs.Insert(p)
	d.FS = append(d.FS, fs)

	if p.Structure == h264.Frame {
		d.LastPicture = nil
	} else {
		d.LastPicture = fs
	}

	d.updateRefList()
	d.updateLTRefList()

	return d.checkNumRef()
}

// isSecondField - field with opposite parity to the stored first field of the same frame
func (d *DPB) isSecondField(p *Picture) bool {
	last := d.LastPicture
	if last == nil || p.Structure == h264.Frame || int32(last.FrameNum) != p.PicNum {
		return false
	}
	if !(p.Structure == h264.TopField && last.IsUsed == 2) && !(p.Structure == h264.BottomField && last.IsUsed == 1) {
		return false
	}
	return p.UsedForReference == (last.IsOrigReference != 0)
}

func (d *DPB) checkNumRef() error {
	if len(d.FSLTRef)+len(d.FSRef) > maxInt(1, d.NumRefFrames) {
		return errors.Wrapf(
			h264.ErrDpbOverflow, "dpb: reference frames %d+%d exceed num_ref_frames=%d",
			len(d.FSRef), len(d.FSLTRef), d.NumRefFrames,
		)
	}
	return nil
}

func (d *DPB) updateRefList() {
	d.FSRef = d.FSRef[:0]
	for _, fs := range d.FS {
		if fs.IsShortTermReference() {
			d.FSRef = append(d.FSRef, fs)
		}
	}
}

func (d *DPB) updateLTRefList() {
	d.FSLTRef = d.FSLTRef[:0]
	for _, fs := range d.FS {
		if fs.IsLongTermReference() {
			d.FSLTRef = append(d.FSLTRef, fs)
		}
	}
}

func (d *DPB) removeFrame(pos int) {
	fs := d.FS[pos]
	if d.LastPicture == fs {
		d.LastPicture = nil
	}
	d.FS = append(d.FS[:pos], d.FS[pos+1:]...)
}

// removeUnusedFrame - first frame that was output and is not used for reference
func (d *DPB) removeUnusedFrame() bool {
	for i, fs := range d.FS {
		if fs.IsOutput && !fs.IsUsedForReference() {
			d.removeFrame(i)
			return true
		}
	}
	return false
}

func (d *DPB) smallestPOC() (pos int, poc int32) {
	pos, poc = -1, math.MaxInt32
	for i, fs := range d.FS {
		if !fs.IsOutput && fs.POC < poc {
			pos, poc = i, fs.POC
		}
	}
	return
}

// outputOneFrame - output frame with smallest POC and remove it when not used for reference
func (d *DPB) outputOneFrame() bool {
	pos, poc := d.smallestPOC()
	if pos < 0 {
		return false
	}

	fs := d.FS[pos]
	d.writeStoredFrame(fs)

	if d.LastOutputPOC >= poc {
		d.log.Warn().Msgf("[dpb] output POC=%d not in ascending order, last=%d", poc, d.LastOutputPOC)
	}
	d.LastOutputPOC = poc

	if !fs.IsUsedForReference() {
		d.removeFrame(pos)
	}
	return true
}

func (d *DPB) writeStoredFrame(fs *FrameStore) {
	d.flushDirectOutput()

	if !fs.NonExisting {
		if fs.IsUsed < 3 {
			d.out.WriteUnpairedField(fs)
		} else {
			d.out.WritePicture(fs)
		}
	}
	fs.IsOutput = true
}

func (d *DPB) directOutput(p *Picture) {
	if p.Structure == h264.Frame {
		d.flushDirectOutput()
		fs := &FrameStore{}
		fs.Insert(p)
		d.out.WritePicture(fs)
		return
	}

	var bit uint8 = 1
	if p.Structure == h264.BottomField {
		bit = 2
	}
	if d.direct != nil && d.direct.IsUsed&bit != 0 {
		d.flushDirectOutput()
	}
	if d.direct == nil {
		d.direct = &FrameStore{}
	}
	d.direct.Insert(p)

	if d.direct.IsUsed == 3 {
		d.out.WritePicture(d.direct)
		d.direct = nil
	}
}

func (d *DPB) flushDirectOutput() {
	if d.direct != nil {
		d.out.WriteUnpairedField(d.direct)
		d.direct = nil
	}
}

// Flush - mark all pictures unused for reference and output them in POC order
func (d *DPB) Flush() {
	for _, fs := range d.FS {
		fs.UnmarkForReference()
	}
	for d.removeUnusedFrame() {
	}
	for d.UsedSize() > 0 && d.outputOneFrame() {
	}
	d.flushDirectOutput()

	d.updateRefList()
	d.updateLTRefList()
	d.LastOutputPOC = math.MinInt32
}

// Free - drop all pictures without output
func (d *DPB) Free() {
	d.FSILRef = nil
	d.reset()
}

// NewNonExistingFrame - frame inferred for a gap in frame_num, 8.2.5.2
func NewNonExistingFrame(frameNum uint32, c poc.POC, frameMbsOnly bool) *Picture {
	p := &Picture{
		Structure:        h264.Frame,
		POC:              c.Frame,
		TopPOC:           c.Top,
		BottomPOC:        c.Bottom,
		FramePOC:         c.Frame,
		FrameNum:         frameNum,
		PicNum:           int32(frameNum),
		NonExisting:      true,
		IsOutput:         true,
		UsedForReference: true,
		CodedFrame:       true,
		FrameMbsOnly:     frameMbsOnly,
	}
	p.Frame, p.TopField, p.BottomField = NoReferencePicture, NoReferencePicture, NoReferencePicture
	return p
}

// StoreInterView - keep base view picture with inter_view_flag for prediction of the second view
func (d *DPB) StoreInterView(p *Picture) {
	fs := d.FSILRef
	if fs == nil {
		return
	}

	var bit uint8 = 3
	switch p.Structure {
	case h264.TopField:
		bit = 1
	case h264.BottomField:
		bit = 2
	}
	if fs.IsUsed&bit != 0 || fs.FrameNum != p.FrameNum {
		*fs = FrameStore{}
	}

	c := *p
	c.UsedForReference = false
	c.IsLongTerm = false
	c.Frame, c.TopField, c.BottomField = NoReferencePicture, NoReferencePicture, NoReferencePicture
	fs.Insert(&c)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
