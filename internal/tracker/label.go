package tracker

import "strings"

// Tilts are colour coded; identities 1..8 map to these labels in order.
var labels = [...]string{"Red", "Green", "Black", "Purple", "Orange", "Blue", "Yellow", "Pink"}

// LabelFor returns the colour label of a device identity. Identities without
// a colour (0 and 9..15) report false.
func LabelFor(id int) (string, bool) {
	if id < 1 || id > len(labels) {
		return "", false
	}
	return labels[id-1], true
}

// IdentityFor is the inverse of LabelFor, case-insensitive.
func IdentityFor(label string) (int, bool) {
	for i, l := range labels {
		if strings.EqualFold(l, label) {
			return i + 1, true
		}
	}
	return 0, false
}

// LogFileName returns the CSV log file name for a label.
func LogFileName(label string) string {
	return "TiltLog_" + label + ".txt"
}
