package h264

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pkg/errors"
)

// RTPDepay - collect NAL units from RTP payloads (RFC 6184)
type RTPDepay struct {
	depack *codecs.H264Packet
	buffer []byte
}

func NewRTPDepay() *RTPDepay {
	return &RTPDepay{depack: &codecs.H264Packet{IsAVC: true}}
}

// Unmarshal - returns NAL units when packet with Marker bit is received
func (d *RTPDepay) Unmarshal(packet *rtp.Packet) ([][]byte, error) {
	payload, err := d.depack.Unmarshal(packet.Payload)
	if err != nil {
		return nil, err
	}

	// FU-A may return empty payload until the last fragment
	d.buffer = append(d.buffer, payload...)

	if !packet.Marker || len(d.buffer) == 0 {
		return nil, nil
	}

	units, err := SplitAVCC(d.buffer)
	d.buffer = nil
	return units, err
}

// SplitAVCC - 4 byte size prefixed NAL units
func SplitAVCC(b []byte) (units [][]byte, err error) {
	for len(b) > 0 {
		if len(b) < 4 {
			return units, errors.Wrap(ErrMalformedNalUnit, "short AVCC size")
		}

		size := int(binary.BigEndian.Uint32(b)) + 4
		if size > len(b) || size == 4 {
			return units, errors.Wrap(ErrMalformedNalUnit, "wrong AVCC size")
		}

		units = append(units, b[4:size])
		b = b[size:]
	}
	return
}

// RTPReader - NAL units from RTSP interleaved stream: `$` + 1B channel + 2B size + packet
type RTPReader struct {
	// OnRTCP - optional, called for packets from odd channels
	OnRTCP func(channel byte, packets []rtcp.Packet)

	reader *bufio.Reader
	depay  map[byte]*RTPDepay
	queue  [][]byte
}

func NewRTPReader(rd io.Reader) *RTPReader {
	return &RTPReader{
		reader: bufio.NewReader(rd),
		depay:  map[byte]*RTPDepay{},
	}
}

func (r *RTPReader) NextNALU() ([]byte, error) {
	for len(r.queue) == 0 {
		if err := r.readPacket(); err != nil {
			return nil, err
		}
	}

	b := r.queue[0]
	r.queue = r.queue[1:]
	return b, nil
}

func (r *RTPReader) readPacket() error {
	buf4, err := r.reader.Peek(4)
	if err != nil {
		if err == io.EOF {
			return ErrEndOfStream
		}
		return err
	}

	if buf4[0] != '$' {
		return errors.Wrap(ErrMalformedNalUnit, "wrong interleaved header")
	}

	// hope that the odd channels are always RTCP
	channelID := buf4[1]

	size := int(binary.BigEndian.Uint16(buf4[2:]))

	if _, err = r.reader.Discard(4); err != nil {
		return err
	}

	buf := make([]byte, size)
	if _, err = io.ReadFull(r.reader, buf); err != nil {
		return errors.Wrap(ErrMalformedNalUnit, "truncated RTP packet")
	}

	if channelID&1 != 0 {
		packets, err := rtcp.Unmarshal(buf)
		if err != nil {
			return errors.Wrap(err, "wrong RTCP data")
		}
		if r.OnRTCP != nil {
			r.OnRTCP(channelID, packets)
		}
		return nil
	}

	packet := &rtp.Packet{}
	if err = packet.Unmarshal(buf); err != nil {
		return errors.Wrap(err, "wrong RTP data")
	}

	depay := r.depay[channelID]
	if depay == nil {
		depay = NewRTPDepay()
		r.depay[channelID] = depay
	}

	units, err := depay.Unmarshal(packet)
	if err != nil {
		return errors.Wrap(ErrMalformedNalUnit, err.Error())
	}

	r.queue = append(r.queue, units...)
	return nil
}

// RTPPay - pack NAL units into single NAL unit and FU-A packets, used for test streams
func RTPPay(units [][]byte, mtu uint16, ts uint32, seq uint16) []*rtp.Packet {
	payloader := &codecs.H264Payloader{}

	var packets []*rtp.Packet
	for i, unit := range units {
		payloads := payloader.Payload(mtu-12, unit)
		for j, payload := range payloads {
			packets = append(packets, &rtp.Packet{
				Header: rtp.Header{
					Version:        2,
					Marker:         i == len(units)-1 && j == len(payloads)-1,
					SequenceNumber: seq,
					Timestamp:      ts,
				},
				Payload: payload,
			})
			seq++
		}
	}
	return packets
}
