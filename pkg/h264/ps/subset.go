package ps

import (
	"github.com/AlexxIT/go2avc/pkg/bits"
	"github.com/AlexxIT/go2avc/pkg/h264"
	"github.com/pkg/errors"
)

// SubsetSPS - subset_seq_parameter_set_rbsp, 7.3.2.1.3, only MVC profiles are parsed
type SubsetSPS struct {
	SPS

	NumViewsMinus1 uint32
	ViewID         []uint32 // by view order index

	// [list][VOIdx][i], VOIdx 0 (base view) always empty
	AnchorRefs    [2][][]uint32
	NonAnchorRefs [2][][]uint32

	Levels []MVCLevel

	MVCVUIPresent bool
}

// MVCLevel - level_idc with applicable operation points
type MVCLevel struct {
	LevelIDC uint8
	Ops      []MVCOperationPoint
}

type MVCOperationPoint struct {
	TemporalID     uint8
	TargetViewID   []uint32
	NumViewsMinus1 uint32
}

// DecodeSubsetSPS - parse Subset SPS NAL unit with header byte
func DecodeSubsetSPS(nalu []byte) (*SubsetSPS, error) {
	n, err := h264.ParseNALUnit(nalu)
	if err != nil {
		return nil, err
	}
	if n.Type != h264.NALUTypeSubsetSPS {
		return nil, errors.New("not Subset SPS data")
	}
	return ParseSubsetSPS(n.Reader())
}

func ParseSubsetSPS(r *bits.Reader) (*SubsetSPS, error) {
	s := &SubsetSPS{}
	s.parseData(r)

	if !h264.IsMVCProfile(s.ProfileIDC) {
		return nil, errors.Wrapf(h264.ErrUnsupported, "subset sps: profile=%d", s.ProfileIDC)
	}

	if r.ReadBit() != 1 {
		return nil, errors.New("subset sps: wrong bit_equal_to_one")
	}

	if err := s.parseMVC(r); err != nil {
		return nil, err
	}

	// mvc_vui_parameters_extension is not used by decoding process
	s.MVCVUIPresent = r.ReadFlag()

	if err := r.Err(); err != nil {
		return nil, errors.Wrap(err, "subset sps")
	}
	if err := s.check(); err != nil {
		return nil, errors.Wrap(err, "subset sps")
	}

	s.Valid = true
	return s, nil
}

// parseMVC - seq_parameter_set_mvc_extension, H.7.3.2.1.4
func (s *SubsetSPS) parseMVC(r *bits.Reader) error {
	s.NumViewsMinus1 = r.ReadUEGolomb()
	if s.NumViewsMinus1 >= h264.MaxViews {
		return errors.Errorf("subset sps: wrong num_views_minus1=%d", s.NumViewsMinus1)
	}

	num := int(s.NumViewsMinus1) + 1

	s.ViewID = make([]uint32, num)
	for i := range s.ViewID {
		s.ViewID[i] = r.ReadUEGolomb()
	}

	for list := 0; list < 2; list++ {
		s.AnchorRefs[list] = make([][]uint32, num)
		s.NonAnchorRefs[list] = make([][]uint32, num)
	}

	for i := 1; i < num; i++ {
		for list := 0; list < 2; list++ {
			refs, err := readViewRefs(r)
			if err != nil {
				return err
			}
			s.AnchorRefs[list][i] = refs
		}
	}

	for i := 1; i < num; i++ {
		for list := 0; list < 2; list++ {
			refs, err := readViewRefs(r)
			if err != nil {
				return err
			}
			s.NonAnchorRefs[list][i] = refs
		}
	}

	numLevels := r.ReadUEGolomb() + 1
	if numLevels > 64 {
		return errors.Errorf("subset sps: wrong num_level_values_signalled=%d", numLevels)
	}
	s.Levels = make([]MVCLevel, numLevels)
	for i := range s.Levels {
		level := &s.Levels[i]
		level.LevelIDC = r.ReadByte()

		numOps := r.ReadUEGolomb() + 1
		if numOps > 1024 || r.EOF {
			return errors.Wrap(h264.ErrBitstreamExhausted, "subset sps: applicable ops")
		}
		level.Ops = make([]MVCOperationPoint, numOps)
		for j := range level.Ops {
			op := &level.Ops[j]
			op.TemporalID = r.ReadBits8(3)
			numTargets := r.ReadUEGolomb() + 1
			if numTargets > uint32(num) || r.EOF {
				return errors.New("subset sps: wrong applicable_op_num_target_views")
			}
			op.TargetViewID = make([]uint32, numTargets)
			for k := range op.TargetViewID {
				op.TargetViewID[k] = r.ReadUEGolomb()
			}
			op.NumViewsMinus1 = r.ReadUEGolomb()
		}
	}

	return nil
}

func readViewRefs(r *bits.Reader) ([]uint32, error) {
	n := r.ReadUEGolomb()
	if n > 15 {
		return nil, errors.Errorf("subset sps: wrong num_refs=%d", n)
	}
	refs := make([]uint32, n)
	for j := range refs {
		refs[j] = r.ReadUEGolomb()
	}
	return refs, nil
}

// NumViews - num_views_minus1 + 1
func (s *SubsetSPS) NumViews() int {
	return int(s.NumViewsMinus1) + 1
}

// VOIdx - view order index for view_id, -1 if view is not listed
func (s *SubsetSPS) VOIdx(viewID uint32) int {
	for i := len(s.ViewID) - 1; i >= 0; i-- {
		if s.ViewID[i] == viewID {
			return i
		}
	}
	return -1
}

// Refs - anchor or non-anchor inter-view references of view for list
func (s *SubsetSPS) Refs(voIdx int, anchor bool, list int) []uint32 {
	refs := s.NonAnchorRefs[list]
	if anchor {
		refs = s.AnchorRefs[list]
	}
	if voIdx < 0 || voIdx >= len(refs) {
		return nil
	}
	return refs[voIdx]
}

// MaxViewIdx - number of inter-view references, used to wrap abs_diff_view_idx
func (s *SubsetSPS) MaxViewIdx(voIdx int, anchor bool, list int) int {
	return len(s.Refs(voIdx, anchor, list))
}

// HasInterViewRef - viewID is a reference of view voIdx in list
func (s *SubsetSPS) HasInterViewRef(voIdx int, anchor bool, list int, viewID uint32) bool {
	for _, ref := range s.Refs(voIdx, anchor, list) {
		if ref == viewID {
			return true
		}
	}
	return false
}

func (s *SubsetSPS) Equal(o *SubsetSPS) bool {
	if s == nil || o == nil {
		return s == o
	}
	if !s.SPS.Equal(&o.SPS) || !equalUint32(s.ViewID, o.ViewID) {
		return false
	}
	for list := 0; list < 2; list++ {
		if !equalRefs(s.AnchorRefs[list], o.AnchorRefs[list]) ||
			!equalRefs(s.NonAnchorRefs[list], o.NonAnchorRefs[list]) {
			return false
		}
	}
	return true
}

func equalRefs(a, b [][]uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !equalUint32(a[i], b[i]) {
			return false
		}
	}
	return true
}
