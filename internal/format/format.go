// Package format renders values for hop descriptors and CLI output.
package format

import (
	"math"
	"strconv"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Percent renders a fraction in [0,1] as a percentage with the given number
// of decimals, e.g. Percent(0.8, 2) == "80.00%".
func Percent(fraction float64, decimals int) string {
	if decimals < 0 {
		decimals = 0
	}
	return printer.Sprintf("%."+strconv.Itoa(decimals)+"f%%", fraction*100)
}

// CeilPercent rounds fraction up to 2 decimal places of percent before
// rendering it.
func CeilPercent(fraction float64) string {
	return Percent(math.Ceil(fraction*10000)/10000, 2)
}

// Range renders a distance in metres with an SI prefix.
func Range(metres float64) string {
	if math.IsInf(metres, 0) || math.IsNaN(metres) {
		return "∞"
	}
	if metres < 1 {
		return printer.Sprintf("%.2f m", metres)
	}
	return humanize.SIWithDigits(metres, 2, "m")
}

// Rate renders a data rate in bits per second.
func Rate(bps float64) string {
	if bps <= 0 {
		return "none"
	}
	if bps < 1 {
		return printer.Sprintf("%.3f b/s", bps)
	}
	return humanize.SIWithDigits(bps, 2, "b/s")
}

// Ellipsis shortens s to at most max runes, replacing the tail with "...".
func Ellipsis(s string, max int) string {
	r := []rune(s)
	if max <= 0 {
		return ""
	}
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
