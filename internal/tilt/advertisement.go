package tilt

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Kind is the advertising PDU type as reported in an HCI LE Advertising Report.
type Kind uint8

const (
	KindConnectableUndirected    Kind = 0x00 // ADV_IND
	KindConnectableDirected      Kind = 0x01 // ADV_DIRECT_IND
	KindScannableUndirected      Kind = 0x02 // ADV_SCAN_IND
	KindNonConnectableUndirected Kind = 0x03 // ADV_NONCONN_IND
	KindScanResponse             Kind = 0x04 // SCAN_RSP
)

func (k Kind) String() string {
	switch k {
	case KindConnectableUndirected:
		return "ADV_IND"
	case KindConnectableDirected:
		return "ADV_DIRECT_IND"
	case KindScannableUndirected:
		return "ADV_SCAN_IND"
	case KindNonConnectableUndirected:
		return "ADV_NONCONN_IND"
	case KindScanResponse:
		return "SCAN_RSP"
	default:
		return fmt.Sprintf("Kind(0x%02X)", uint8(k))
	}
}

// AD structure types used by beacons.
const (
	SectionFlags            byte = 0x01
	SectionManufacturerData byte = 0xFF
)

// Section is one AD structure of an advertisement: its type and the bytes
// following the type octet. Manufacturer sections keep the company id prefix.
type Section struct {
	Type byte
	Data []byte
}

// CompanyID returns the little-endian company identifier of a manufacturer
// section.
func (s Section) CompanyID() (uint16, bool) {
	if s.Type != SectionManufacturerData || len(s.Data) < 2 {
		return 0, false
	}
	return binary.LittleEndian.Uint16(s.Data[:2]), true
}

// Advertisement is a single sensed advertisement as delivered by a radio source.
type Advertisement struct {
	Address   string
	Kind      Kind
	RSSI      int16
	Timestamp time.Time
	Sections  []Section
}

// ManufacturerData returns the manufacturer sections owned by companyID.
func (a Advertisement) ManufacturerData(companyID uint16) []Section {
	var out []Section
	for _, s := range a.Sections {
		if id, ok := s.CompanyID(); ok && id == companyID {
			out = append(out, s)
		}
	}
	return out
}
