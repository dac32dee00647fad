package decoder

import (
	"fmt"

	"github.com/AlexxIT/go2avc/pkg/h264"
	"github.com/AlexxIT/go2avc/pkg/h264/dpb"
	"github.com/AlexxIT/go2avc/pkg/h264/slice"
)

// MacroblockDecoder - slice_data decoding with prepared reference lists,
// returns number of decoded macroblocks
type MacroblockDecoder interface {
	DecodeSlice(h *slice.Header, lists *dpb.RefLists, pic *dpb.Picture) (int, error)
}

// NopMacroblocks - only slice headers and reference management
type NopMacroblocks struct{}

func (NopMacroblocks) DecodeSlice(*slice.Header, *dpb.RefLists, *dpb.Picture) (int, error) {
	return 0, nil
}

// PictureInfo - summary of decoded picture
type PictureInfo struct {
	Type      string
	Structure h264.PictureStructure
	POC       int32
	FrameNum  uint32
	ViewID    uint32
	QP        int32
	Slices    int
	ListSizes [2]int
}

func (i PictureInfo) String() string {
	return fmt.Sprintf(
		"%-3s %s poc=%d frame_num=%d view=%d qp=%d slices=%d refs=%d/%d",
		i.Type, i.Structure, i.POC, i.FrameNum, i.ViewID, i.QP, i.Slices, i.ListSizes[0], i.ListSizes[1],
	)
}

func newPictureInfo(pic *picture) PictureInfo {
	h := pic.header
	return PictureInfo{
		Type:      pictureType(h),
		Structure: pic.Structure,
		POC:       pic.POC,
		FrameNum:  h.FrameNum,
		ViewID:    h.ViewID,
		QP:        h.QP,
		Slices:    pic.slices,
		ListSizes: pic.listSizes,
	}
}

// pictureType - IDR, I, P, SP, SI, B for reference and b for non-reference B pictures
func pictureType(h *slice.Header) string {
	if h.IsIDRView() {
		return "IDR"
	}
	switch h.SliceType {
	case h264.SliceB:
		if h.IsReference() {
			return "B"
		}
		return "b"
	case h264.SliceI:
		return "I"
	case h264.SliceP:
		return "P"
	case h264.SliceSP:
		return "SP"
	case h264.SliceSI:
		return "SI"
	}
	return "?"
}
