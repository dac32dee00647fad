package annexb

import (
	"bytes"
	"testing"
	"testing/iotest"

	"github.com/AlexxIT/go2avc/pkg/h264"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	sps := []byte{0x67, 0x42, 0x00, 0x0a, 0xf8, 0x41, 0xa2}
	pps := []byte{0x68, 0xce, 0x38, 0x80}
	idr := []byte{0x65, 0x88, 0x00, 0x00, 0x03, 0x01, 0x80}

	// FFmpeg H264: 00000001 SPS 00000001 PPS 000001 IFrame
	b := []byte(StartCode)
	b = append(b, sps...)
	b = append(b, StartCode...)
	b = append(b, pps...)
	b = append(b, 0, 0, 1)
	b = append(b, idr...)
	b = append(b, 0, 0) // trailing_zero_8bits

	units, err := Split(b)
	require.Nil(t, err)
	require.Equal(t, [][]byte{sps, pps, idr}, units)

	units, err = Split(Join(sps, pps, idr))
	require.Nil(t, err)
	require.Equal(t, [][]byte{sps, pps, idr}, units)
}

func TestReaderSmallReads(t *testing.T) {
	var units [][]byte
	for i := 0; i < 50; i++ {
		units = append(units, bytes.Repeat([]byte{0x41, byte(i + 1)}, 100+i))
	}

	r := NewReader(iotest.OneByteReader(bytes.NewReader(Join(units...))))
	for _, unit := range units {
		b, err := r.NextNALU()
		require.Nil(t, err)
		require.Equal(t, unit, b)
	}

	_, err := r.NextNALU()
	require.ErrorIs(t, err, h264.ErrEndOfStream)
}

func TestReaderErrors(t *testing.T) {
	_, err := NewReader(bytes.NewReader([]byte{0x67, 0x42})).NextNALU()
	require.ErrorIs(t, err, h264.ErrMalformedNalUnit)

	_, err = NewReader(bytes.NewReader([]byte{0, 0})).NextNALU()
	require.ErrorIs(t, err, h264.ErrMalformedNalUnit)

	_, err = NewReader(bytes.NewReader(nil)).NextNALU()
	require.ErrorIs(t, err, h264.ErrEndOfStream)
}

func TestIndexStartCode(t *testing.T) {
	i, n := IndexStartCode([]byte{0x01, 0x00, 0x00, 0x00, 0x01}, 0)
	require.Equal(t, 2, i)
	require.Equal(t, 3, n)

	i, _ = IndexStartCode([]byte{0x00, 0x00, 0x02, 0x00, 0x01}, 0)
	require.Equal(t, -1, i)
}
