package h264

import "fmt"

// http://www.itu.int/rec/T-REC-H.264
// Table 7-1 - NAL unit type codes

const (
	NALUTypePFrame     = 1  // Coded slice of a non-IDR picture
	NALUTypeDPA        = 2  // Coded slice data partition A
	NALUTypeDPB        = 3  // Coded slice data partition B
	NALUTypeDPC        = 4  // Coded slice data partition C
	NALUTypeIFrame     = 5  // Coded slice of an IDR picture
	NALUTypeSEI        = 6  // Supplemental enhancement information (SEI)
	NALUTypeSPS        = 7  // Sequence parameter set
	NALUTypePPS        = 8  // Picture parameter set
	NALUTypeAUD        = 9  // Access unit delimiter
	NALUTypeEOSeq      = 10 // End of sequence
	NALUTypeEOStream   = 11 // End of stream
	NALUTypeFiller     = 12 // Filler data
	NALUTypeSPSExt     = 13 // Sequence parameter set extension
	NALUTypePrefix     = 14 // Prefix NAL unit (MVC/SVC)
	NALUTypeSubsetSPS  = 15 // Subset sequence parameter set
	NALUTypeDPS        = 16 // Depth parameter set
	NALUTypeAuxSlice   = 19 // Coded slice of an auxiliary coded picture
	NALUTypeSliceExt   = 20 // Coded slice extension (MVC/SVC)
	NALUTypeSliceDepth = 21 // Coded slice extension for depth view

	// RTP only, RFC 6184
	NALUTypeSTAPA = 24
	NALUTypeFUA   = 28
)

var naluTypeNames = map[byte]string{
	NALUTypePFrame:     "PFrame",
	NALUTypeDPA:        "DPA",
	NALUTypeDPB:        "DPB",
	NALUTypeDPC:        "DPC",
	NALUTypeIFrame:     "IFrame",
	NALUTypeSEI:        "SEI",
	NALUTypeSPS:        "SPS",
	NALUTypePPS:        "PPS",
	NALUTypeAUD:        "AUD",
	NALUTypeEOSeq:      "EOSeq",
	NALUTypeEOStream:   "EOStream",
	NALUTypeFiller:     "Filler",
	NALUTypeSPSExt:     "SPSExt",
	NALUTypePrefix:     "Prefix",
	NALUTypeSubsetSPS:  "SubsetSPS",
	NALUTypeDPS:        "DPS",
	NALUTypeAuxSlice:   "AuxSlice",
	NALUTypeSliceExt:   "SliceExt",
	NALUTypeSliceDepth: "SliceDepth",
	NALUTypeSTAPA:      "STAP-A",
	NALUTypeFUA:        "FU-A",
}

func NALUTypeName(typ byte) string {
	if s, ok := naluTypeNames[typ]; ok {
		return s
	}
	return fmt.Sprintf("Reserved%d", typ)
}

// IsSlice - VCL NAL unit that starts with slice_header
func IsSlice(typ byte) bool {
	switch typ {
	case NALUTypePFrame, NALUTypeIFrame, NALUTypeDPA, NALUTypeSliceExt:
		return true
	}
	return false
}

// Limits from Annex A and clause 7.4
const (
	MaxSPSCount    = 32
	MaxPPSCount    = 256
	MaxDpbFrames   = 16
	MaxRefs        = 2 * MaxDpbFrames
	MaxListSize    = MaxRefs + 1 // 33, listX size with one spare for reordering
	MaxMMCOCount   = MaxRefs*2 + 2 // MMCO commands in one slice header, without terminating zero
	MaxSliceGroups = 8
	MaxViews       = 1024
)

// Slice types from Table 7-6, values 5..9 are reduced to 0..4
const (
	SliceP  = 0
	SliceB  = 1
	SliceI  = 2
	SliceSP = 3
	SliceSI = 4
)

func SliceTypeName(typ uint32) string {
	switch typ {
	case SliceP:
		return "P"
	case SliceB:
		return "B"
	case SliceI:
		return "I"
	case SliceSP:
		return "SP"
	case SliceSI:
		return "SI"
	}
	return fmt.Sprintf("0x%02X", typ)
}

// PictureStructure - frame or one of the fields
type PictureStructure byte

const (
	Frame PictureStructure = iota
	TopField
	BottomField
)

func (s PictureStructure) String() string {
	switch s {
	case Frame:
		return "FRM"
	case TopField:
		return "TOP"
	case BottomField:
		return "BOT"
	}
	return "???"
}

// Profiles that carry chroma_format_idc and friends in SPS
func IsFRExtProfile(profile uint8) bool {
	switch profile {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134, 135:
		return true
	}
	return false
}

// IsMVCProfile - Multiview High and Stereo High
func IsMVCProfile(profile uint8) bool {
	return profile == 118 || profile == 128
}
