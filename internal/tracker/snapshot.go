package tracker

import (
	"fmt"
	"time"
)

// LogHeader is the first line of every device log.
const LogHeader = "Temperature,Gravity,TxPower,Signal,Timestamp,DateTime\n"

// 100ns intervals between 1601-01-01 and the Unix epoch.
const fileTimeEpochOffset = 116444736000000000

// Snapshot is the filtered state of one device at a point in time.
type Snapshot struct {
	DeviceID    int       `json:"device_id"`
	Label       string    `json:"label,omitempty"`
	UUID        string    `json:"uuid"`
	Timestamp   time.Time `json:"timestamp"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	Samples     uint64    `json:"samples"`
	Temperature float64   `json:"temperature"`
	Gravity     float64   `json:"gravity"`
	TxPower     float64   `json:"tx_power"`
	Signal      float64   `json:"signal"`
}

// FileTimeTicks returns t as 100ns ticks since 1601-01-01 UTC.
func FileTimeTicks(t time.Time) int64 {
	return t.UnixNano()/100 + fileTimeEpochOffset
}

// FormatRow renders s as one device log line, stamped with s.Timestamp.
func FormatRow(s Snapshot) string {
	return fmt.Sprintf("%f,%f,%f,%f,%d,%q\n",
		s.Temperature, s.Gravity, s.TxPower, s.Signal,
		FileTimeTicks(s.Timestamp), s.Timestamp.Local().Format(time.ANSIC))
}
