// Package tilt decodes Tilt hydrometer iBeacon advertisements.
//
// A Tilt advertises twice per AD payload: a flags structure followed by an
// Apple manufacturer structure laid out as
//
//	 0-1  4C 00   company id (Apple, little endian)
//	 2-3  02 15   iBeacon type and length
//	 4-19         device UUID A495BBx0-C5B1-4B44-B512-1370F02D74DE,
//	              the high nibble of byte 7 is the colour id
//	20-21         major: temperature, degrees Fahrenheit, big endian
//	22-23         minor: specific gravity x1000, big endian
//	24            tx power, signed
package tilt

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

const (
	// AppleCompanyID is the Bluetooth SIG company id Tilts advertise under.
	AppleCompanyID uint16 = 0x004C

	// SignalLostRSSI is reported by the radio when a device dropped out of range.
	SignalLostRSSI int16 = -127

	// MaxSectionLen bounds the size of any single AD structure.
	MaxSectionLen = 256

	// FrameLen is the exact length of the Tilt manufacturer section.
	FrameLen = 25

	// MaxDevices is the size of the device identity space (one nibble).
	MaxDevices = 16

	frameSection   = 1
	sectionCount   = 2
	identityOffset = 7
	templateLen    = 20
)

// BeaconUUID is the Tilt iBeacon UUID with the colour nibble cleared.
var BeaconUUID = uuid.MustParse("a495bb00-c5b1-4b44-b512-1370f02d74de")

var frameTemplate = buildTemplate()

func buildTemplate() [templateLen]byte {
	var t [templateLen]byte
	binary.LittleEndian.PutUint16(t[0:2], AppleCompanyID)
	t[2], t[3] = 0x02, 0x15
	copy(t[4:], BeaconUUID[:])
	return t
}

// DeviceUUID returns the iBeacon UUID a device with the given identity advertises.
func DeviceUUID(id int) uuid.UUID {
	u := BeaconUUID
	u[identityOffset-4] = byte(id&0x0F) << 4
	return u
}

// Decode validates adv against the Tilt layout and extracts a Reading.
// Any deviation is reported as one of the rejection errors in this package;
// a partial Reading is never returned.
func Decode(adv Advertisement) (Reading, error) {
	if adv.Kind != KindNonConnectableUndirected {
		return Reading{}, ErrNotABeacon
	}
	if adv.RSSI == SignalLostRSSI {
		return Reading{}, ErrSignalLost
	}
	if len(adv.ManufacturerData(AppleCompanyID)) == 0 {
		return Reading{}, ErrWrongVendor
	}

	var r Reading
	for i, s := range adv.Sections {
		if len(s.Data) > MaxSectionLen {
			return Reading{}, fmt.Errorf("%w: section %d is %d bytes", ErrOversizedSection, i, len(s.Data))
		}
		if i != frameSection {
			continue
		}
		fr, err := decodeFrame(s.Data)
		if err != nil {
			return Reading{}, err
		}
		r = fr
	}

	if len(adv.Sections) != sectionCount {
		return Reading{}, fmt.Errorf("%w: got %d, want %d", ErrUnexpectedSectionCount, len(adv.Sections), sectionCount)
	}
	if r.DeviceID >= MaxDevices {
		return Reading{}, fmt.Errorf("%w: %d", ErrIdentityOutOfRange, r.DeviceID)
	}

	r.Timestamp = adv.Timestamp
	r.RSSI = int(adv.RSSI)
	return r, nil
}

func decodeFrame(b []byte) (Reading, error) {
	if len(b) != FrameLen {
		return Reading{}, fmt.Errorf("%w: length %d, want %d", ErrTemplateMismatch, len(b), FrameLen)
	}
	for i, want := range frameTemplate {
		if i == identityOffset {
			continue
		}
		if b[i] != want {
			return Reading{}, fmt.Errorf("%w at offset %d: got 0x%02X, want 0x%02X", ErrTemplateMismatch, i, b[i], want)
		}
	}
	return Reading{
		DeviceID:    int(b[identityOffset] >> 4),
		Temperature: int(binary.BigEndian.Uint16(b[20:22])),
		Gravity:     int(binary.BigEndian.Uint16(b[22:24])),
		TxPower:     int(int8(b[24])),
	}, nil
}
