package decoder

import (
	"github.com/AlexxIT/go2avc/pkg/h264"
	"github.com/AlexxIT/go2avc/pkg/h264/dpb"
	"github.com/AlexxIT/go2avc/pkg/h264/ps"
	"github.com/AlexxIT/go2avc/pkg/h264/slice"
	"github.com/pkg/errors"
)

func (d *Decoder) initPicture(h *slice.Header, sps *ps.SPS, subset *ps.SubsetSPS, ly *layer) error {
	if !h.IsIDRView() && ly.started {
		next := (ly.preFrameNum + 1) % sps.MaxFrameNum()
		if h.FrameNum != ly.preFrameNum && h.FrameNum != next {
			if sps.GapsInFrameNumAllowed || d.cfg.Conceal {
				if err := d.fillFrameNumGap(h, sps, ly); err != nil {
					return err
				}
			} else {
				d.log.Warn().Msgf("[decoder] lost pictures frame_num=%d after %d", h.FrameNum, ly.preFrameNum)
			}
		}
	}

	if h.IsReference() {
		ly.preFrameNum = h.FrameNum
	}
	ly.started = true

	c, err := ly.poc.Decode(h, sps)
	if err != nil {
		return err
	}
	ly.lastPOC = c

	p := dpb.NewPicture(h, sps, c)
	if d.cfg.AllocSamples {
		p.AllocSamples(sps)
	}

	d.pic = &picture{Picture: p, header: h, sps: sps, layer: ly}
	d.previousFrameNum = h.FrameNum
	d.store.SetInFlight(true)

	if subset != nil {
		d.log.Trace().Msgf("[decoder] view=%d voidx=%d anchor=%t", h.ViewID, h.LayerID, h.Anchor)
	}

	return nil
}

// fillFrameNumGap - non-existing frames for every missing frame_num, 8.2.5.2
func (d *Decoder) fillFrameNumGap(h *slice.Header, sps *ps.SPS, ly *layer) error {
	maxFrameNum := sps.MaxFrameNum()

	gap := *h
	gap.IdrFlag = false
	gap.NonIDR = true
	gap.NalRefIdc = 1
	gap.FieldPic = false
	gap.BottomField = false
	gap.Structure = h264.Frame
	gap.DeltaPicOrderCntBottom = 0
	gap.DeltaPicOrderCnt = [2]int32{}
	gap.DecRefPicMarking = slice.DecRefPicMarking{}

	var count int

	for num := (ly.preFrameNum + 1) % maxFrameNum; num != h.FrameNum; num = (num + 1) % maxFrameNum {
		gap.FrameNum = num

		// POC type 0 has no way to derive order of missing frames
		c := ly.lastPOC
		if sps.PicOrderCntType != 0 {
			var err error
			if c, err = ly.poc.Decode(&gap, sps); err != nil {
				return err
			}
		}

		p := dpb.NewNonExistingFrame(num, c, sps.FrameMbsOnly)
		p.ViewID = h.ViewID
		p.LayerID = h.LayerID

		if err := ly.dpb.StorePicture(p); err != nil {
			return errors.Wrapf(err, "decoder: frame_num gap=%d", num)
		}

		ly.preFrameNum = num
		count++
	}

	d.log.Debug().Msgf("[decoder] frame_num gap filled frames=%d before frame_num=%d", count, h.FrameNum)

	return nil
}

// exitPicture - store finished picture in buffer of its layer
func (d *Decoder) exitPicture() {
	pic := d.pic
	if pic == nil {
		return
	}
	d.pic = nil

	d.store.SetInFlight(false)
	d.store.MakePPSAvailable()

	ly := pic.layer

	size := int(pic.sps.PicWidthInMbs() * pic.sps.FrameHeightInMbs())
	if pic.Structure != h264.Frame {
		size /= 2
	}

	// zero macroblocks - decoder of macroblock layer doesn't count them
	if pic.drop || (pic.mbs > 0 && pic.mbs < size) {
		d.log.Warn().Msgf("[decoder] drop picture %s mbs=%d/%d", pic.Picture, pic.mbs, size)
		return
	}

	if ly.id == 0 && pic.InterView {
		if l1 := d.layers[1]; l1 != nil {
			l1.dpb.StoreInterView(pic.Picture)
		}
	}

	if err := ly.dpb.StorePicture(pic.Picture); err != nil {
		d.log.Error().Err(err).Msgf("[decoder] store %s", pic.Picture)
		if errors.Is(err, h264.ErrDpbOverflow) {
			ly.broken = true
		}
	}

	if ly.dpb.LastHasMMCO5 {
		ly.preFrameNum = 0
		ly.poc.MarkMMCO5(pic.Structure == h264.BottomField, pic.TopPOC)
	}

	d.pictures++

	info := newPictureInfo(pic)

	d.log.Debug().Msgf("[decoder] picture %s", info)

	if d.cfg.OnPicture != nil {
		d.cfg.OnPicture(info)
	}
}
