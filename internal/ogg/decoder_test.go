// Tracord - Live DJ Broadcast Metadata Relay
// Copyright 2026 Tracord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tracord/tracord

package ogg

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

// buildPage frames the given segments into one Ogg page. Each element of
// segments becomes one lacing entry, so callers control packet boundaries
// directly: a segment shorter than 255 bytes terminates a packet.
func buildPage(segments ...[]byte) []byte {
	var page bytes.Buffer
	page.WriteString("OggS")
	page.WriteByte(0)                                       // version
	page.WriteByte(0)                                       // header type
	page.Write(make([]byte, 8+4+4+4))                       // granule, serial, sequence, crc
	page.WriteByte(byte(len(segments)))                     // segment count
	for _, seg := range segments {
		page.WriteByte(byte(len(seg)))
	}
	for _, seg := range segments {
		page.Write(seg)
	}
	return page.Bytes()
}

// splitPacket slices a packet into lacing segments: full 255-byte chunks
// followed by a terminating short segment (possibly empty).
func splitPacket(pkt []byte) [][]byte {
	var segs [][]byte
	for len(pkt) >= maxSegmentSize {
		segs = append(segs, pkt[:maxSegmentSize])
		pkt = pkt[maxSegmentSize:]
	}
	return append(segs, pkt)
}

// commentPacket builds a Vorbis comment packet from KEY=value entries.
func commentPacket(vendor string, entries ...string) []byte {
	var pkt bytes.Buffer
	pkt.Write(commentSignature)
	writeU32(&pkt, uint32(len(vendor)))
	pkt.WriteString(vendor)
	writeU32(&pkt, uint32(len(entries)))
	for _, e := range entries {
		writeU32(&pkt, uint32(len(e)))
		pkt.WriteString(e)
	}
	return pkt.Bytes()
}

// rawCommentPacket builds a comment packet from pre-encoded entry bytes,
// for injecting invalid UTF-8.
func rawCommentPacket(entries ...[]byte) []byte {
	var pkt bytes.Buffer
	pkt.Write(commentSignature)
	writeU32(&pkt, 0)
	writeU32(&pkt, uint32(len(entries)))
	for _, e := range entries {
		writeU32(&pkt, uint32(len(e)))
		pkt.Write(e)
	}
	return pkt.Bytes()
}

func writeU32(w *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.Write(b[:])
}

func decodeAll(t *testing.T, stream []byte) []MetadataBlock {
	t.Helper()
	d := NewDecoder(bytes.NewReader(stream))
	var blocks []MetadataBlock
	for {
		block, err := d.Next()
		if errors.Is(err, io.EOF) {
			return blocks
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		blocks = append(blocks, block)
	}
}

func TestDecodeSinglePageComment(t *testing.T) {
	pkt := commentPacket("Traktor", "ARTIST=Daft Punk", "TITLE=One More Time")
	stream := buildPage(splitPacket(pkt)...)

	blocks := decodeAll(t, stream)
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
	if blocks[0][FieldArtist] != "Daft Punk" || blocks[0][FieldTitle] != "One More Time" {
		t.Errorf("block = %v", blocks[0])
	}
}

func TestDecodePacketSpanningPagesMatchesSinglePage(t *testing.T) {
	// A comment packet large enough to occupy several pages.
	long := make([]byte, 700)
	for i := range long {
		long[i] = 'x'
	}
	pkt := commentPacket("vendor",
		"ARTIST=Spanning Artist",
		"TITLE=Spanning Title",
		"COMMENT="+string(long),
	)

	single := buildPage(splitPacket(pkt)...)

	// Same packet with its segments scattered one per page.
	var multi bytes.Buffer
	for _, seg := range splitPacket(pkt) {
		multi.Write(buildPage(seg))
	}

	got1 := decodeAll(t, single)
	got2 := decodeAll(t, multi.Bytes())

	if len(got1) != 1 || len(got2) != 1 {
		t.Fatalf("blocks: single=%d multi=%d, want 1 each", len(got1), len(got2))
	}
	for k, v := range got1[0] {
		if got2[0][k] != v {
			t.Errorf("field %s: single=%q multi=%q", k, v, got2[0][k])
		}
	}
	if len(got1[0]) != len(got2[0]) {
		t.Errorf("field counts differ: %d vs %d", len(got1[0]), len(got2[0]))
	}
}

func TestEncoderOnlyBlockSuppressed(t *testing.T) {
	pkt := commentPacket("Traktor", "ENCODER=Traktor")
	if blocks := decodeAll(t, buildPage(splitPacket(pkt)...)); len(blocks) != 0 {
		t.Errorf("encoder-only block surfaced: %v", blocks)
	}
}

func TestEmptyArtistAndTitleSuppressed(t *testing.T) {
	pkt := commentPacket("v", "ARTIST=", "TITLE=", "GENRE=House")
	if blocks := decodeAll(t, buildPage(splitPacket(pkt)...)); len(blocks) != 0 {
		t.Errorf("artist/title-empty block surfaced: %v", blocks)
	}
}

func TestArtistOnlyBlockSurfaced(t *testing.T) {
	pkt := commentPacket("v", "ARTIST=Someone")
	blocks := decodeAll(t, buildPage(splitPacket(pkt)...))
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
}

func TestBadMagicAbortsStream(t *testing.T) {
	stream := buildPage(splitPacket(commentPacket("v", "ARTIST=A", "TITLE=T"))...)
	bad := append([]byte("NotO"), stream[4:]...)

	d := NewDecoder(bytes.NewReader(bad))
	if _, err := d.Next(); !errors.Is(err, ErrBadPage) {
		t.Errorf("err = %v, want ErrBadPage", err)
	}
}

func TestBadVersionAbortsStream(t *testing.T) {
	stream := buildPage(splitPacket(commentPacket("v", "ARTIST=A"))...)
	stream[4] = 9 // version field

	d := NewDecoder(bytes.NewReader(stream))
	if _, err := d.Next(); !errors.Is(err, ErrBadPage) {
		t.Errorf("err = %v, want ErrBadPage", err)
	}
}

func TestBadMagicMidStream(t *testing.T) {
	good := buildPage(splitPacket(commentPacket("v", "ARTIST=A", "TITLE=T"))...)
	bad := buildPage(splitPacket(commentPacket("v", "ARTIST=B", "TITLE=U"))...)
	copy(bad[:4], "XXXX")

	d := NewDecoder(bytes.NewReader(append(good, bad...)))

	if _, err := d.Next(); err != nil {
		t.Fatalf("first block: %v", err)
	}
	if _, err := d.Next(); !errors.Is(err, ErrBadPage) {
		t.Errorf("err = %v, want ErrBadPage", err)
	}
}

func TestInvalidUTF8EntrySkippedIndividually(t *testing.T) {
	pkt := rawCommentPacket(
		[]byte("ARTIST=Good Artist"),
		[]byte{'T', 'I', 'T', 'L', 'E', '=', 0xff, 0xfe},
		[]byte("GENRE=House"),
	)
	blocks := decodeAll(t, buildPage(splitPacket(pkt)...))
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
	block := blocks[0]
	if block[FieldArtist] != "Good Artist" || block["GENRE"] != "House" {
		t.Errorf("valid entries lost: %v", block)
	}
	if _, ok := block[FieldTitle]; ok {
		t.Errorf("invalid UTF-8 entry kept: %v", block)
	}
}

func TestEntryWithoutEqualsSkipped(t *testing.T) {
	pkt := commentPacket("v", "no separator here", "ARTIST=A")
	blocks := decodeAll(t, buildPage(splitPacket(pkt)...))
	if len(blocks) != 1 || len(blocks[0]) != 1 {
		t.Fatalf("blocks = %v", blocks)
	}
}

func TestKeysUppercased(t *testing.T) {
	pkt := commentPacket("v", "artist=A", "Title=T")
	blocks := decodeAll(t, buildPage(splitPacket(pkt)...))
	if len(blocks) != 1 {
		t.Fatal("expected one block")
	}
	if blocks[0][FieldArtist] != "A" || blocks[0][FieldTitle] != "T" {
		t.Errorf("keys not uppercased: %v", blocks[0])
	}
}

func TestAudioPacketsDiscarded(t *testing.T) {
	audio := make([]byte, 600)
	for i := range audio {
		audio[i] = byte(i)
	}
	comment := commentPacket("v", "ARTIST=A", "TITLE=T")

	var stream bytes.Buffer
	stream.Write(buildPage(splitPacket(audio)...))
	stream.Write(buildPage(splitPacket(comment)...))
	stream.Write(buildPage(splitPacket(audio)...))

	blocks := decodeAll(t, stream.Bytes())
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
}

func TestMultiplePacketsInOnePage(t *testing.T) {
	first := commentPacket("v", "ARTIST=A", "TITLE=T1")
	second := commentPacket("v", "ARTIST=A", "TITLE=T2")

	segs := append(splitPacket(first), splitPacket(second)...)
	blocks := decodeAll(t, buildPage(segs...))

	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(blocks))
	}
	if blocks[0][FieldTitle] != "T1" || blocks[1][FieldTitle] != "T2" {
		t.Errorf("order not preserved: %v", blocks)
	}
}

func TestTruncatedPageSurfacesUnexpectedEOF(t *testing.T) {
	stream := buildPage(splitPacket(commentPacket("v", "ARTIST=A", "TITLE=T"))...)
	d := NewDecoder(bytes.NewReader(stream[:len(stream)-3]))
	if _, err := d.Next(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("err = %v, want ErrUnexpectedEOF", err)
	}
}

func TestTruncatedCommentBodyKeepsDecodedEntries(t *testing.T) {
	pkt := commentPacket("v", "ARTIST=A", "TITLE=T")
	pkt = pkt[:len(pkt)-4] // cut into the final entry

	blocks := decodeAll(t, buildPage(splitPacket(pkt)...))
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
	if blocks[0][FieldArtist] != "A" {
		t.Errorf("block = %v", blocks[0])
	}
}

func TestOversizedCommentPacketAborts(t *testing.T) {
	// A comment packet whose lacing never terminates: every segment is 255
	// bytes, so the packet stays open page after page. The decoder must give
	// up once the accumulated packet passes maxPacketSize instead of growing
	// without bound.
	seg := make([]byte, maxSegmentSize)
	copy(seg, commentSignature)

	full := make([][]byte, 255)
	for i := range full {
		full[i] = seg
	}

	var stream bytes.Buffer
	pages := maxPacketSize/(255*maxSegmentSize) + 2
	for i := 0; i < pages; i++ {
		stream.Write(buildPage(full...))
	}

	d := NewDecoder(bytes.NewReader(stream.Bytes()))
	if _, err := d.Next(); !errors.Is(err, ErrBadPage) {
		t.Errorf("err = %v, want ErrBadPage", err)
	}
}

func TestCleanEOFAtPageBoundary(t *testing.T) {
	d := NewDecoder(bytes.NewReader(nil))
	if _, err := d.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want io.EOF", err)
	}
}
