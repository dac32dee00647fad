package h264

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const testSPS = "Z2QAKKwa0A8ARPy4CIAAAAMAgAAAHkeMGVA="
const testPPS = "aO48sA=="

func TestParameterSets(t *testing.T) {
	units, err := ParameterSets("packetization-mode=1; profile-level-id=640028; sprop-parameter-sets=" + testSPS + "," + testPPS)
	require.Nil(t, err)
	require.Len(t, units, 2)
	require.Equal(t, byte(NALUTypeSPS), units[0][0]&0x1F)
	require.Equal(t, byte(NALUTypePPS), units[1][0]&0x1F)

	// value only and without padding
	units, err = ParameterSets("aO48sA")
	require.Nil(t, err)
	require.Equal(t, []byte{0x68, 0xEE, 0x3C, 0xB0}, units[0])

	_, err = ParameterSets("sprop-parameter-sets=!!!")
	require.ErrorIs(t, err, ErrMalformedNalUnit)
}

func TestParameterSetsFromSDP(t *testing.T) {
	s := "v=0\r\n" +
		"o=- 0 0 IN IP4 127.0.0.1\r\n" +
		"s=-\r\n" +
		"t=0 0\r\n" +
		"m=audio 0 RTP/AVP 97\r\n" +
		"a=rtpmap:97 MPEG4-GENERIC/16000/1\r\n" +
		"m=video 0 RTP/AVP 96\r\n" +
		"a=rtpmap:96 H264/90000\r\n" +
		"a=fmtp:96 packetization-mode=1;sprop-parameter-sets=" + testSPS + "," + testPPS + "\r\n"

	units, err := ParameterSetsFromSDP([]byte(s))
	require.Nil(t, err)
	require.Len(t, units, 2)

	_, err = ParameterSetsFromSDP([]byte("v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"))
	require.NotNil(t, err)
}
