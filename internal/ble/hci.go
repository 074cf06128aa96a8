package ble

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"tiltmon/internal/tilt"
)

// HCI LE Advertising Report framing.
const (
	hciPacketEvent     = 0x04
	hciEventLEMeta     = 0x3E
	hciSubeventAdvRept = 0x02
	hciHeaderLen       = 5 // packet type, event code, param len, subevent, report count
	hciAddrLen         = 6
)

var (
	// ErrShortFrame indicates an HCI frame that ends before its declared content
	ErrShortFrame = errors.New("hci frame truncated")

	// ErrNotAdvertisingReport indicates an HCI packet other than an LE Advertising Report event
	ErrNotAdvertisingReport = errors.New("not an le advertising report")
)

// ParseHCIReport parses one raw HCI LE Advertising Report event, as captured
// by btmon or hcidump, into advertisements stamped with at.
func ParseHCIReport(frame []byte, at time.Time) ([]tilt.Advertisement, error) {
	if len(frame) < hciHeaderLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(frame))
	}
	if frame[0] != hciPacketEvent || frame[1] != hciEventLEMeta || frame[3] != hciSubeventAdvRept {
		return nil, fmt.Errorf("%w: % X", ErrNotAdvertisingReport, frame[:4])
	}
	if int(frame[2]) != len(frame)-3 {
		return nil, fmt.Errorf("%w: parameter length %d, have %d", ErrShortFrame, frame[2], len(frame)-3)
	}

	n := int(frame[4])
	p := frame[hciHeaderLen:]
	out := make([]tilt.Advertisement, 0, n)
	for i := 0; i < n; i++ {
		// event type, address type, address, data length
		if len(p) < 2+hciAddrLen+1 {
			return nil, fmt.Errorf("%w: report %d header", ErrShortFrame, i)
		}
		kind := tilt.Kind(p[0])
		addr := formatAddress(p[2 : 2+hciAddrLen])
		dataLen := int(p[2+hciAddrLen])
		p = p[2+hciAddrLen+1:]
		if len(p) < dataLen+1 {
			return nil, fmt.Errorf("%w: report %d data", ErrShortFrame, i)
		}
		sections, err := ParseADStructures(p[:dataLen])
		if err != nil {
			return nil, fmt.Errorf("report %d: %w", i, err)
		}
		out = append(out, tilt.Advertisement{
			Address:   addr,
			Kind:      kind,
			RSSI:      int16(int8(p[dataLen])),
			Timestamp: at,
			Sections:  sections,
		})
		p = p[dataLen+1:]
	}
	return out, nil
}

// ParseADStructures splits advertising data into its AD structures. A zero
// length octet ends the data (controllers pad with zeros).
func ParseADStructures(data []byte) ([]tilt.Section, error) {
	var out []tilt.Section
	for i := 0; i < len(data); {
		l := int(data[i])
		if l == 0 {
			break
		}
		if i+1+l > len(data) {
			return nil, fmt.Errorf("%w: ad structure at %d declares %d bytes", ErrShortFrame, i, l)
		}
		out = append(out, tilt.Section{
			Type: data[i+1],
			Data: append([]byte(nil), data[i+2:i+1+l]...),
		})
		i += 1 + l
	}
	return out, nil
}

// HCI carries addresses least significant octet first.
func formatAddress(b []byte) string {
	parts := make([]string, len(b))
	for i := range b {
		parts[i] = fmt.Sprintf("%02X", b[len(b)-1-i])
	}
	return strings.Join(parts, ":")
}
