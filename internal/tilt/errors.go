package tilt

import "errors"

// Decode rejections. Most advertisements in range are not Tilts, so these are
// expected outcomes rather than faults.
var (
	// ErrNotABeacon indicates the advertisement is not non-connectable undirected
	ErrNotABeacon = errors.New("not a beacon advertisement")

	// ErrSignalLost indicates the radio reported the signal-lost RSSI sentinel
	ErrSignalLost = errors.New("signal lost")

	// ErrWrongVendor indicates no Apple manufacturer data is present
	ErrWrongVendor = errors.New("no apple manufacturer data")

	// ErrOversizedSection indicates an AD structure longer than MaxSectionLen
	ErrOversizedSection = errors.New("oversized data section")

	// ErrTemplateMismatch indicates the iBeacon frame does not match the Tilt layout
	ErrTemplateMismatch = errors.New("tilt frame template mismatch")

	// ErrUnexpectedSectionCount indicates the advertisement does not carry exactly two sections
	ErrUnexpectedSectionCount = errors.New("unexpected data section count")

	// ErrIdentityOutOfRange indicates a device identity outside the tracker table
	ErrIdentityOutOfRange = errors.New("device identity out of range")
)

var reasons = []struct {
	err    error
	reason string
}{
	{ErrNotABeacon, "not_a_beacon"},
	{ErrSignalLost, "signal_lost"},
	{ErrWrongVendor, "wrong_vendor"},
	{ErrOversizedSection, "oversized_section"},
	{ErrTemplateMismatch, "template_mismatch"},
	{ErrUnexpectedSectionCount, "unexpected_section_count"},
	{ErrIdentityOutOfRange, "identity_out_of_range"},
}

// Reason returns a short stable label for a decode rejection, "unknown" for
// any other error and "" for nil.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "unknown"
}
