// Package translation routes user-facing message labels through gotext.
// Without locale files installed the labels pass through unchanged, so
// the default deployment speaks the source language (Korean).
package translation

import (
	"github.com/leonelquinteros/gotext"
)

// Configure points gotext at a locale directory. Call once at startup;
// safe to skip when no translations are shipped.
func Configure(localesDir, lang string) {
	gotext.Configure(localesDir, lang, "default")
}

// Translate returns the translated message for msgID, or msgID itself
// when no translation exists.
func Translate(msgID string, vars ...interface{}) string {
	return gotext.Get(msgID, vars...)
}
