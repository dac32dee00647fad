package h264

import (
	"github.com/AlexxIT/go2avc/pkg/bits"
	"github.com/pkg/errors"
)

var (
	// ErrBitstreamExhausted - NAL payload ended in the middle of syntax element
	ErrBitstreamExhausted = bits.ErrExhausted
	// ErrMalformedNalUnit - bad start code, empty unit or forbidden_zero_bit set
	ErrMalformedNalUnit = errors.New("malformed NAL unit")
	// ErrEndOfStream - no more NAL units, not a failure
	ErrEndOfStream = errors.New("end of stream")
	// ErrMissingReference - SPS/PPS id or view id never installed
	ErrMissingReference = errors.New("missing parameter set")
	// ErrInvalidSliceQp - slice QP out of [-QpBdOffsetY, 51]
	ErrInvalidSliceQp = errors.New("invalid slice QP")
	// ErrReferenceNotFound - MMCO or reordering command targets absent picture
	ErrReferenceNotFound = errors.New("reference picture not found")
	// ErrDpbOverflow - DPB too small for num_ref_frames
	ErrDpbOverflow = errors.New("DPB overflow")
	// ErrInvalidParameterSet - syntax element of SPS/PPS out of allowed range
	ErrInvalidParameterSet = errors.New("invalid parameter set")
	// ErrUnsupported - unknown level, slice type or profile feature
	ErrUnsupported = errors.New("unsupported")
)
