package helpers

import (
	"html"
	"strconv"
	"strings"
)

// EscapeHTML escapes user- and source-supplied text for the chat
// transport's HTML parse mode.
func EscapeHTML(text string) string {
	return html.EscapeString(text)
}

// FormatPrice renders a price with no grouping and no trailing zeros, so
// notification bodies carry the exact numeric value.
func FormatPrice(price float64) string {
	return strconv.FormatFloat(price, 'f', -1, 64)
}

// FormatPercent renders a percentage with two decimals.
func FormatPercent(rate float64) string {
	return strconv.FormatFloat(rate, 'f', 2, 64)
}

// FormatReceipt turns a YYYYMMDD[ HHMMSS] disclosure timestamp into a
// display form. Malformed input is passed through untouched.
func FormatReceipt(date, tm string) string {
	if len(date) != 8 {
		return strings.TrimSpace(date + " " + tm)
	}
	out := date[:4] + "-" + date[4:6] + "-" + date[6:]
	if len(tm) >= 4 {
		out += " " + tm[:2] + ":" + tm[2:4]
	}
	return out
}
