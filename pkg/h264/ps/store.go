package ps

import (
	"github.com/AlexxIT/go2avc/pkg/h264"
	"github.com/pkg/errors"
)

// Store - all received parameter sets and the active ones.
// Parameter set that changes the contents of the set used by the picture in flight
// is kept pending until MakePPSAvailable.
type Store struct {
	sps    [h264.MaxSPSCount]*SPS
	subset [h264.MaxSPSCount]*SubsetSPS
	pps    [h264.MaxPPSCount]*PPS

	pendingSPS map[uint32]*SPS
	pendingPPS map[uint32]*PPS

	activeSPS    *SPS
	activeSubset *SubsetSPS
	activePPS    *PPS

	inFlight bool
}

func NewStore() *Store {
	return &Store{
		pendingSPS: map[uint32]*SPS{},
		pendingPPS: map[uint32]*PPS{},
	}
}

// SetInFlight - decoder has a picture that depends on active parameter sets
func (s *Store) SetInFlight(v bool) {
	s.inFlight = v
}

func (s *Store) InFlight() bool {
	return s.inFlight
}

// InstallSPS - returns true when SPS was deferred
func (s *Store) InstallSPS(sps *SPS) (pending bool) {
	if sps == nil || !sps.Valid {
		return false
	}
	if s.inFlight && s.activeSPS != nil && s.activeSPS.ID == sps.ID && !s.activeSPS.Equal(sps) {
		s.pendingSPS[sps.ID] = sps
		return true
	}
	s.sps[sps.ID] = sps
	return false
}

func (s *Store) InstallSubsetSPS(sps *SubsetSPS) {
	if sps == nil || !sps.Valid {
		return
	}
	s.subset[sps.ID] = sps
}

// InstallPPS - returns true when PPS was deferred
func (s *Store) InstallPPS(pps *PPS) (pending bool) {
	if pps == nil || !pps.Valid {
		return false
	}
	if s.inFlight && s.activePPS != nil && s.activePPS.ID == pps.ID && !s.activePPS.Equal(pps) {
		s.pendingPPS[pps.ID] = pps
		return true
	}
	s.pps[pps.ID] = pps
	return false
}

// MakePPSAvailable - apply pending parameter sets after current picture is finished
func (s *Store) MakePPSAvailable() (applied int) {
	s.inFlight = false
	for id, sps := range s.pendingSPS {
		s.sps[id] = sps
		delete(s.pendingSPS, id)
		applied++
	}
	for id, pps := range s.pendingPPS {
		s.pps[id] = pps
		delete(s.pendingPPS, id)
		applied++
	}
	return
}

// Pending - number of deferred parameter sets
func (s *Store) Pending() int {
	return len(s.pendingSPS) + len(s.pendingPPS)
}

// Activate - resolve PPS and its SPS for base view slice,
// changed is true when active SPS is replaced by different one
func (s *Store) Activate(ppsID uint32) (sps *SPS, pps *PPS, changed bool, err error) {
	if pps, err = s.lookupPPS(ppsID); err != nil {
		return
	}

	sps = s.sps[pps.SPSID]
	if sps == nil || !sps.Valid {
		err = errors.Wrapf(h264.ErrMissingReference, "sps id=%d for pps id=%d", pps.SPSID, ppsID)
		return nil, nil, false, err
	}

	changed = s.activeSPS != sps && !s.activeSPS.Equal(sps)

	s.activeSPS = sps
	s.activePPS = pps
	return
}

// ActivateMVC - resolve PPS and Subset SPS for non-base view slice
func (s *Store) ActivateMVC(ppsID uint32) (sps *SubsetSPS, pps *PPS, changed bool, err error) {
	if pps, err = s.lookupPPS(ppsID); err != nil {
		return
	}

	sps = s.subset[pps.SPSID]
	if sps == nil || !sps.Valid {
		err = errors.Wrapf(h264.ErrMissingReference, "subset sps id=%d for pps id=%d", pps.SPSID, ppsID)
		return nil, nil, false, err
	}

	changed = s.activeSubset != sps && !s.activeSubset.Equal(sps)

	s.activeSubset = sps
	s.activePPS = pps
	return
}

func (s *Store) lookupPPS(ppsID uint32) (*PPS, error) {
	if ppsID >= h264.MaxPPSCount {
		return nil, errors.Wrapf(h264.ErrMissingReference, "pps id=%d", ppsID)
	}
	pps := s.pps[ppsID]
	if pps == nil || !pps.Valid {
		return nil, errors.Wrapf(h264.ErrMissingReference, "pps id=%d", ppsID)
	}
	return pps, nil
}

// SPS - installed SPS or Subset SPS with id, nil if none
func (s *Store) SPS(id uint32) *SPS {
	if id >= h264.MaxSPSCount {
		return nil
	}
	if sps := s.sps[id]; sps != nil {
		return sps
	}
	if sps := s.subset[id]; sps != nil {
		return &sps.SPS
	}
	return nil
}

func (s *Store) ActiveSPS() *SPS {
	return s.activeSPS
}

func (s *Store) ActivePPS() *PPS {
	return s.activePPS
}

func (s *Store) ActiveSubsetSPS() *SubsetSPS {
	return s.activeSubset
}

// SubsetSPS - any valid Subset SPS, MVC streams usually have only one
func (s *Store) SubsetSPS() *SubsetSPS {
	if s.activeSubset != nil {
		return s.activeSubset
	}
	for _, sps := range s.subset {
		if sps != nil && sps.Valid {
			return sps
		}
	}
	return nil
}

// VOIdx - view order index of viewID, 0 for streams without Subset SPS,
// -1 for view that is not listed in Subset SPS
func (s *Store) VOIdx(viewID uint32) int {
	if sps := s.SubsetSPS(); sps != nil {
		return sps.VOIdx(viewID)
	}
	return 0
}

// MaxViewIdx - number of inter-view refs of voIdx in list
func (s *Store) MaxViewIdx(voIdx int, anchor bool, list int) int {
	if sps := s.SubsetSPS(); sps != nil {
		return sps.MaxViewIdx(voIdx, anchor, list)
	}
	return 0
}

// Reset - forget active sets, used on end of stream
func (s *Store) Reset() {
	s.activeSPS = nil
	s.activeSubset = nil
	s.activePPS = nil
	s.inFlight = false
}
