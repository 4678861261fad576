// Tracord - Live DJ Broadcast Metadata Relay
// Copyright 2026 Tracord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tracord/tracord

package ogg

import (
	"encoding/binary"
	"strings"
	"unicode/utf8"
)

// Field names surfaced in MetadataBlock keys.
const (
	FieldArtist  = "ARTIST"
	FieldTitle   = "TITLE"
	FieldEncoder = "ENCODER"
)

// parseCommentBody decodes the Vorbis comment structure that follows the
// packet signature: a length-prefixed vendor string (skipped), an entry
// count, then length-prefixed KEY=value entries. All lengths are little
// endian u32. Parsing is forgiving: a truncated body yields the entries
// decoded so far, and an entry that is not valid UTF-8 or has no '=' is
// skipped individually rather than aborting the block.
func parseCommentBody(data []byte) MetadataBlock {
	block := make(MetadataBlock)

	vendorLen, rest, ok := readU32(data)
	if !ok || uint64(vendorLen) > uint64(len(rest)) {
		return block
	}
	rest = rest[vendorLen:] // vendor string is not retained

	count, rest, ok := readU32(rest)
	if !ok {
		return block
	}

	for i := uint32(0); i < count; i++ {
		var entryLen uint32
		entryLen, rest, ok = readU32(rest)
		if !ok || uint64(entryLen) > uint64(len(rest)) {
			break
		}
		entry := rest[:entryLen]
		rest = rest[entryLen:]

		if !utf8.Valid(entry) {
			continue
		}
		key, value, found := strings.Cut(string(entry), "=")
		if !found {
			continue
		}
		block[strings.ToUpper(key)] = value
	}
	return block
}

// suppressed reports whether a comment block represents stream startup or
// reconfiguration rather than a track change. Two cases: the block's only
// key is the encoder identification field, or neither artist nor title is
// populated. Exact key-set equality to {ENCODER} is the contract; broader
// suppression is a behavior change requiring sign-off.
func suppressed(block MetadataBlock) bool {
	if len(block) == 0 {
		return true
	}
	if len(block) == 1 {
		if _, only := block[FieldEncoder]; only {
			return true
		}
	}
	return block[FieldArtist] == "" && block[FieldTitle] == ""
}

// readU32 reads a little-endian u32 prefix, returning the remainder.
func readU32(data []byte) (uint32, []byte, bool) {
	if len(data) < 4 {
		return 0, nil, false
	}
	return binary.LittleEndian.Uint32(data[:4]), data[4:], true
}
