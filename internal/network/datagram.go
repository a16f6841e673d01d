package network

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/g960059/showrunner/internal/model"
)

// DatagramSize is the encoded size: origin u32, item u32, has-payload u8,
// payload u32, all big endian.
const DatagramSize = 13

var ErrMalformedDatagram = errors.New("malformed datagram")

// Datagram is one broadcast item id, tagged with the sending node.
type Datagram struct {
	Origin  uint32
	Item    model.ItemID
	Payload *uint32
}

func (d Datagram) MarshalBinary() ([]byte, error) {
	buf := make([]byte, DatagramSize)
	binary.BigEndian.PutUint32(buf[0:4], d.Origin)
	binary.BigEndian.PutUint32(buf[4:8], uint32(d.Item))
	if d.Payload != nil {
		buf[8] = 1
		binary.BigEndian.PutUint32(buf[9:13], *d.Payload)
	}
	return buf, nil
}

func (d *Datagram) UnmarshalBinary(buf []byte) error {
	if len(buf) != DatagramSize {
		return fmt.Errorf("%w: %d bytes", ErrMalformedDatagram, len(buf))
	}
	d.Origin = binary.BigEndian.Uint32(buf[0:4])
	d.Item = model.ItemID(binary.BigEndian.Uint32(buf[4:8]))
	d.Payload = nil
	switch buf[8] {
	case 0:
	case 1:
		p := binary.BigEndian.Uint32(buf[9:13])
		d.Payload = &p
	default:
		return fmt.Errorf("%w: payload flag %d", ErrMalformedDatagram, buf[8])
	}
	return nil
}
