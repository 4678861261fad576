// Tracord - Live DJ Broadcast Metadata Relay
// Copyright 2026 Tracord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tracord/tracord

package library

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// foldString performs Unicode case folding. A fresh Caser per call: Caser
// carries internal state and is not safe for concurrent reuse.
func foldString(s string) string {
	return cases.Fold().String(s)
}

// Normalize canonicalizes a metadata string for index lookups: surrounding
// whitespace is trimmed, the text is canonically composed (NFC), and case
// is folded. Normalize is idempotent: Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	s = norm.NFC.String(s)
	s = foldString(s)
	// Folding can surface combining sequences again; recompose so repeated
	// application is stable.
	return norm.NFC.String(s)
}

// lookupKey builds the index key for a normalized (artist, title) pair.
// NUL is not expected in tag data, making it a safe separator.
func lookupKey(artist, title string) string {
	return Normalize(artist) + "\x00" + Normalize(title)
}
