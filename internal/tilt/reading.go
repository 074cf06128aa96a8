package tilt

import "time"

// Reading is a validated Tilt measurement.
type Reading struct {
	DeviceID    int
	Timestamp   time.Time
	RSSI        int // dBm
	TxPower     int
	Temperature int // degrees Fahrenheit
	Gravity     int // specific gravity x1000
}
