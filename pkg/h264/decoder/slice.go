package decoder

import (
	"github.com/AlexxIT/go2avc/pkg/h264"
	"github.com/AlexxIT/go2avc/pkg/h264/dpb"
	"github.com/AlexxIT/go2avc/pkg/h264/ps"
	"github.com/AlexxIT/go2avc/pkg/h264/slice"
	"github.com/pkg/errors"
)

func (d *Decoder) decodeSlice(n *h264.NALUnit, src Source) error {
	r := slice.NewReader(n, d.cfg.Trace)

	h, err := slice.ParseFirstPart(r)
	if err != nil {
		return err
	}

	// prefix NAL unit is valid only for the next base view slice
	prefix := d.prefix
	d.prefix = nil

	var subset *ps.SubsetSPS

	if !h.MVC {
		d.baseView(h, prefix)
	} else {
		if h.LayerID = d.store.VOIdx(h.ViewID); h.LayerID < 0 {
			return errors.Wrapf(h264.ErrMissingReference, "decoder: view_id=%d not in subset sps", h.ViewID)
		}
		if h.LayerID > 1 {
			return errors.Wrapf(h264.ErrUnsupported, "decoder: view order index=%d", h.LayerID)
		}
	}

	var sps *ps.SPS
	var pps *ps.PPS
	var changed bool

	if h.LayerID == 0 {
		sps, pps, changed, err = d.store.Activate(h.PPSID)
	} else {
		subset, pps, changed, err = d.store.ActivateMVC(h.PPSID)
		if subset != nil {
			sps = &subset.SPS
		}
	}
	if err != nil {
		return err
	}

	ly := d.activateLayer(h.LayerID, sps, subset, changed)

	if err = slice.ParseRest(r, h, sps, pps); err != nil {
		return err
	}

	if n.Type == h264.NALUTypeDPA {
		if err = d.readPartitions(r, h, sps, pps, src); err != nil {
			return err
		}
	}

	if h.RedundantPicCnt != 0 && h.FrameNum == d.previousFrameNum {
		d.log.Trace().Msgf("[decoder] skip redundant slice %s", h)
		return nil
	}

	if ly.broken {
		if !h.IsIDRView() || ly.initFailed && !d.initLayer(ly) {
			return nil
		}
		ly.broken = false
	}

	if slice.IsNewPicture(d.pic != nil, h, &d.old, sps, pps) {
		d.exitPicture()
		if err = d.initPicture(h, sps, subset, ly); err != nil {
			return err
		}
	}

	d.old.Copy(h, sps)

	return d.decodeSliceData(h, sps, subset, ly)
}

// baseView - view information of base view slice from prefix NAL unit,
// without prefix base view is an inter-view reference with first view_id of Subset SPS
func (d *Decoder) baseView(h *slice.Header, prefix *h264.MVCExtension) {
	if prefix != nil {
		h.SetMVC(prefix)
	} else {
		if subset := d.store.SubsetSPS(); subset != nil && len(subset.ViewID) > 0 {
			h.ViewID = subset.ViewID[0]
		}
		h.InterView = true
		h.Anchor = h.IdrFlag
	}
	if h.LayerID = d.store.VOIdx(h.ViewID); h.LayerID < 0 {
		h.LayerID = 0
	}
}

// activateLayer - layer state for slice, new active SPS finishes current picture
// and restarts the buffer of the layer
func (d *Decoder) activateLayer(id int, sps *ps.SPS, subset *ps.SubsetSPS, changed bool) *layer {
	ly := d.layer(id)

	if !changed && ly.sps != nil {
		return ly
	}

	d.exitPicture()
	ly.dpb.Flush()

	ly.sps = sps
	ly.subset = subset
	ly.poc.Reset()
	ly.started = false

	d.initLayer(ly)

	return ly
}

// layer - state of view order index, buffer is not initialized until first slice
func (d *Decoder) layer(id int) *layer {
	if ly := d.layers[id]; ly != nil {
		return ly
	}
	ly := &layer{
		id: id,
		dpb: dpb.New(dpb.Config{
			Extra:   d.cfg.DpbExtra,
			LayerID: id,
			Output:  d.cfg.Output,
			Logger:  d.log,
		}),
	}
	d.layers[id] = ly
	return ly
}

// readPartitions - partitions B and C with slice_id of partition A,
// any other unit is decoded after this slice
func (d *Decoder) readPartitions(r *slice.Reader, h *slice.Header, sps *ps.SPS, pps *ps.PPS, src Source) error {
	if err := slice.ParseSliceID(r, h); err != nil {
		return err
	}

	for _, typ := range []byte{h264.NALUTypeDPB, h264.NALUTypeDPC} {
		n, err := d.next(src)
		if err != nil {
			if errors.Is(err, h264.ErrEndOfStream) {
				return nil
			}
			return err
		}

		if n.Type != typ {
			d.pending = n
			if n.Type == h264.NALUTypeDPC {
				continue
			}
			return nil
		}

		p, err := slice.ParsePartition(slice.NewReader(n, d.cfg.Trace), sps, pps)
		if err != nil {
			return err
		}
		if !p.Matches(h) {
			d.pending = n
			return nil
		}
	}

	return nil
}

func (d *Decoder) decodeSliceData(h *slice.Header, sps *ps.SPS, subset *ps.SubsetSPS, ly *layer) error {
	pic := d.pic
	if pic == nil || pic.drop {
		return nil
	}

	pic.slices++

	ly.dpb.UpdatePicNums(h.FrameNum, h.Structure)

	lists := ly.dpb.InitLists(h, pic.Picture, subset)
	if err := ly.dpb.Reorder(lists, h, pic.Picture, subset); err != nil {
		if !errors.Is(err, h264.ErrMissingReference) {
			return err
		}
		if !d.cfg.Conceal {
			pic.drop = true
			return err
		}
		d.log.Warn().Err(err).Msgf("[decoder] conceal %s", h)
	}

	if h.MbAff {
		lists.InitMbaffLists()
	}

	pic.listSizes = [2]int{lists.Size[0], lists.Size[1]}

	d.log.Debug().Msgf("[decoder] slice %s lists %s", h, lists)

	mbs, err := d.mb.DecodeSlice(h, lists, pic.Picture)
	pic.mbs += mbs
	return err
}

func (d *Decoder) initLayer(ly *layer) bool {
	if err := ly.dpb.Init(ly.sps, ly.subset); err != nil {
		d.log.Error().Err(err).Msgf("[decoder] layer=%d init", ly.id)
		ly.broken, ly.initFailed = true, true
		return false
	}
	ly.broken, ly.initFailed = false, false
	d.log.Debug().Msgf("[decoder] layer=%d %s dpb=%d", ly.id, ly.sps, ly.dpb.Size)
	return true
}
