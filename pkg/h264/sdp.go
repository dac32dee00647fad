package h264

import (
	"encoding/base64"
	"strings"

	"github.com/pion/sdp/v3"
	"github.com/pkg/errors"
)

// ParameterSets - NAL units from sprop-parameter-sets of fmtp line (RFC 6184),
// line may also be the value of sprop-parameter-sets itself
func ParameterSets(fmtp string) ([][]byte, error) {
	value := fmtp
	for _, param := range strings.Split(fmtp, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
		if ok && k == "sprop-parameter-sets" {
			value = v
			break
		}
	}

	var units [][]byte
	for _, s := range strings.Split(value, ",") {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}

		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			// some cameras skip padding
			if b, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "=")); err != nil {
				return nil, errors.Wrapf(ErrMalformedNalUnit, "sprop-parameter-sets: %s", s)
			}
		}
		if len(b) == 0 {
			continue
		}
		units = append(units, b)
	}

	return units, nil
}

// ParameterSetsFromSDP - sprop-parameter-sets of the first H264 video media
func ParameterSetsFromSDP(b []byte) ([][]byte, error) {
	sd := &sdp.SessionDescription{}
	if err := sd.Unmarshal(b); err != nil {
		return nil, errors.Wrap(err, "sdp")
	}

	for _, md := range sd.MediaDescriptions {
		if md.MediaName.Media != "video" {
			continue
		}

		var payloadType string
		for _, attr := range md.Attributes {
			if attr.Key != "rtpmap" {
				continue
			}
			pt, codec, _ := strings.Cut(attr.Value, " ")
			if strings.HasPrefix(strings.ToUpper(codec), "H264/") {
				payloadType = pt
				break
			}
		}
		if payloadType == "" {
			continue
		}

		for _, attr := range md.Attributes {
			if attr.Key != "fmtp" {
				continue
			}
			if fmtp, ok := strings.CutPrefix(attr.Value, payloadType+" "); ok {
				return ParameterSets(fmtp)
			}
		}
		return nil, nil
	}

	return nil, errors.New("sdp: no H264 video")
}
