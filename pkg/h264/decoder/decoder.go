// Package decoder - NAL unit dispatch, picture boundaries and reference picture management
// of H.264 stream, macroblock layer is provided by MacroblockDecoder
package decoder

import (
	"context"
	"math"

	"github.com/AlexxIT/go2avc/pkg/h264"
	"github.com/AlexxIT/go2avc/pkg/h264/dpb"
	"github.com/AlexxIT/go2avc/pkg/h264/poc"
	"github.com/AlexxIT/go2avc/pkg/h264/ps"
	"github.com/AlexxIT/go2avc/pkg/h264/slice"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Source - pull iterator of NAL units without start codes,
// returns h264.ErrEndOfStream after the last unit
type Source interface {
	NextNALU() ([]byte, error)
}

// Units - Source over prepared NAL units
type Units [][]byte

func (u *Units) NextNALU() ([]byte, error) {
	if len(*u) == 0 {
		return nil, h264.ErrEndOfStream
	}
	b := (*u)[0]
	*u = (*u)[1:]
	return b, nil
}

// WithUnits - src preceded by units, used for out-of-band parameter sets
func WithUnits(units [][]byte, src Source) Source {
	return &withUnits{units: units, src: src}
}

type withUnits struct {
	units Units
	src   Source
}

func (w *withUnits) NextNALU() ([]byte, error) {
	if len(w.units) > 0 {
		return w.units.NextNALU()
	}
	return w.src.NextNALU()
}

type Config struct {
	Output      dpb.Output
	Macroblocks MacroblockDecoder
	Logger      zerolog.Logger

	// Trace - receives every slice header syntax element
	Trace slice.TraceFunc
	// OnPicture - called for every finished picture
	OnPicture func(info PictureInfo)

	// DpbExtra - frames added to DPB size from level limits
	DpbExtra int
	// Conceal - fill frame_num gaps and keep pictures with missing references
	Conceal bool
	// AllocSamples - pictures get sample planes for MacroblockDecoder
	AllocSamples bool
	// BaseViewOnly - ignore MVC slice extensions
	BaseViewOnly bool
}

// Decoder - decoding context of one stream, not safe for concurrent use
type Decoder struct {
	cfg Config
	mb  MacroblockDecoder
	log zerolog.Logger

	store *ps.Store
	old   slice.OldSliceParams

	// by view order index, base view and one non-base view
	layers [2]*layer

	pic     *picture
	prefix  *h264.MVCExtension
	pending *h264.NALUnit

	// frame_num of the last primary picture, its redundant slices are skipped
	previousFrameNum uint32
	pictures         int
}

// layer - reference state of one view
type layer struct {
	id  int
	dpb *dpb.DPB
	poc poc.State

	sps    *ps.SPS
	subset *ps.SubsetSPS

	preFrameNum uint32
	lastPOC     poc.POC
	started     bool

	// sequence is dropped until IDR, or until SPS change when buffer does not fit
	broken     bool
	initFailed bool
}

// picture - picture in progress
type picture struct {
	*dpb.Picture

	header *slice.Header
	sps    *ps.SPS
	layer  *layer

	slices    int
	mbs       int
	listSizes [2]int
	drop      bool
}

func New(cfg Config) *Decoder {
	d := &Decoder{
		cfg:   cfg,
		mb:    cfg.Macroblocks,
		log:   cfg.Logger,
		store: ps.NewStore(),

		previousFrameNum: math.MaxUint32,
	}
	if d.mb == nil {
		d.mb = NopMacroblocks{}
	}
	d.old.Reset()
	return d
}

// Pictures - number of finished pictures
func (d *Decoder) Pictures() int {
	return d.pictures
}

// DPB - buffer of layer, nil if layer was never activated
func (d *Decoder) DPB(layerID int) *dpb.DPB {
	if layerID < 0 || layerID >= len(d.layers) || d.layers[layerID] == nil {
		return nil
	}
	return d.layers[layerID].dpb
}

// Run - decode all units from src, remaining pictures are flushed on end of stream
// and on context cancel, which is checked between units
func (d *Decoder) Run(ctx context.Context, src Source) error {
	for {
		select {
		case <-ctx.Done():
			d.Flush()
			return ctx.Err()
		default:
		}

		n, err := d.next(src)
		if err != nil {
			if errors.Is(err, h264.ErrEndOfStream) {
				d.Flush()
				return nil
			}
			return err
		}

		if err = d.decodeNALU(n, src); err != nil {
			d.log.Warn().Err(err).Msgf("[decoder] drop %s", n)
		}
	}
}

// Flush - finish current picture and output all buffered pictures
func (d *Decoder) Flush() {
	d.exitPicture()
	for _, ly := range d.layers {
		if ly != nil {
			ly.dpb.Flush()
		}
	}
}

func (d *Decoder) next(src Source) (*h264.NALUnit, error) {
	if n := d.pending; n != nil {
		d.pending = nil
		return n, nil
	}

	for {
		b, err := src.NextNALU()
		if err != nil {
			return nil, err
		}

		n, err := h264.ParseNALUnit(b)
		if err != nil {
			d.log.Warn().Err(err).Msg("[decoder] skip unit")
			continue
		}
		return n, nil
	}
}

func (d *Decoder) decodeNALU(n *h264.NALUnit, src Source) error {
	d.log.Trace().Msgf("[decoder] nalu %s", n)

	switch n.Type {
	case h264.NALUTypePFrame, h264.NALUTypeIFrame, h264.NALUTypeDPA:
		return d.decodeSlice(n, src)

	case h264.NALUTypeSliceExt:
		if d.cfg.BaseViewOnly {
			return nil
		}
		return d.decodeSlice(n, src)

	case h264.NALUTypeDPB, h264.NALUTypeDPC:
		d.log.Warn().Msgf("[decoder] data partition %s without partition A", h264.NALUTypeName(n.Type))

	case h264.NALUTypeSPS:
		sps, err := ps.ParseSPS(n.Reader())
		if err != nil {
			return err
		}
		pending := d.store.InstallSPS(sps)
		d.log.Debug().Msgf("[ps] sps id=%d %s pending=%t", sps.ID, sps, pending)

	case h264.NALUTypeSubsetSPS:
		sps, err := ps.ParseSubsetSPS(n.Reader())
		if err != nil {
			return err
		}
		d.store.InstallSubsetSPS(sps)
		if !d.cfg.BaseViewOnly && sps.NumViews() > 1 {
			// base view pictures are kept for the second view from the first access unit
			d.layer(1)
		}
		d.log.Debug().Msgf("[ps] subset sps id=%d views=%d", sps.ID, sps.NumViews())

	case h264.NALUTypePPS:
		pps, err := ps.ParsePPS(n.Reader(), d.chromaFormatIDC(n))
		if err != nil {
			return err
		}
		pending := d.store.InstallPPS(pps)
		d.log.Debug().Msgf("[ps] pps id=%d sps=%d pending=%t", pps.ID, pps.SPSID, pending)

	case h264.NALUTypePrefix:
		if n.MVC != nil {
			d.prefix = n.MVC
		}

	case h264.NALUTypeEOSeq:
		d.old.Reset()

	default:
		d.log.Trace().Msgf("[decoder] ignore %s", h264.NALUTypeName(n.Type))
	}

	return nil
}

// chromaFormatIDC - from SPS referenced by PPS unit, 4:2:0 when SPS is unknown
func (d *Decoder) chromaFormatIDC(n *h264.NALUnit) uint32 {
	r := n.Reader()
	_ = r.ReadUEGolomb() // pic_parameter_set_id
	if sps := d.store.SPS(r.ReadUEGolomb()); sps != nil {
		return sps.ChromaFormatIDC
	}
	return 1
}
