package session

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// TLS record content types.
const (
	tlsHandshake = 22
	tlsHeaderLen = 5
)

var pcapngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

// packetReader is satisfied by pcapgo.Reader and pcapgo.NgReader.
type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// ReadCaptureFile decodes the TLS records of the pcap or pcapng file at path.
func ReadCaptureFile(path string) ([]Tuple, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture: %w", err)
	}
	defer file.Close()

	tuples, err := ReadCapture(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tuples, nil
}

// ReadCapture decodes a pcap or pcapng stream and returns one tuple per
// TCP segment that carries TLS records, in capture order. Segments whose
// payload is not TLS are ignored.
func ReadCapture(r io.Reader) ([]Tuple, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture header: %w", err)
	}

	var src packetReader
	if bytes.Equal(magic, pcapngMagic) {
		src, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		src, err = pcapgo.NewReader(br)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read capture header: %w", err)
	}

	var tuples []Tuple
	decodeOpts := gopacket.DecodeOptions{Lazy: true, NoCopy: true}
	for {
		data, ci, err := src.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A capture cut off mid-packet still yields what was read.
			if errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return tuples, fmt.Errorf("failed to read packet %d: %w", len(tuples), err)
		}

		packet := gopacket.NewPacket(data, src.LinkType(), decodeOpts)
		if t, ok := tupleFromPacket(packet, ci); ok {
			tuples = append(tuples, t)
		}
	}
	return tuples, nil
}

func tupleFromPacket(packet gopacket.Packet, ci gopacket.CaptureInfo) (Tuple, bool) {
	network := packet.NetworkLayer()
	tcpLayer := packet.Layer(layers.LayerTypeTCP)
	if network == nil || tcpLayer == nil {
		return Tuple{}, false
	}
	payload := tcpLayer.(*layers.TCP).LayerPayload()
	if !isTLS(payload) {
		return Tuple{}, false
	}

	length := ci.Length
	if length <= 0 {
		length = len(packet.Data())
	}
	flow := network.NetworkFlow()
	return Tuple{
		Timestamp:     ci.Timestamp,
		Src:           flow.Src().String(),
		Dst:           flow.Dst().String(),
		FrameLength:   length,
		HandshakeType: handshakeType(payload),
	}, true
}

// truncation records whether the TLS decoder ran out of data.
type truncation struct {
	truncated bool
}

func (t *truncation) SetTruncated() { t.truncated = true }

// isTLS reports whether payload starts with a TLS record. A record split
// across segments decodes as truncated and still counts.
func isTLS(payload []byte) bool {
	if len(payload) < tlsHeaderLen || payload[1] != 3 {
		return false
	}
	var tls layers.TLS
	var fb truncation
	err := tls.DecodeFromBytes(payload, &fb)
	return err == nil || fb.truncated
}

// handshakeType returns the message type of the first plaintext handshake
// record in payload, or NoHandshake. Encrypted handshake records are
// recognized by a body length that does not match the record length.
func handshakeType(payload []byte) int {
	for off := 0; off+tlsHeaderLen <= len(payload); {
		recLen := int(binary.BigEndian.Uint16(payload[off+3 : off+5]))
		body := payload[off+tlsHeaderLen:]
		if payload[off] == tlsHandshake && len(body) >= 4 {
			msgLen := int(body[1])<<16 | int(body[2])<<8 | int(body[3])
			if msgLen+4 <= recLen {
				return int(body[0])
			}
		}
		off += tlsHeaderLen + recLen
	}
	return NoHandshake
}
