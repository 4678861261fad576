// Tracord - Live DJ Broadcast Metadata Relay
// Copyright 2026 Tracord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tracord/tracord

// Package ogg implements a pull-based incremental decoder for the Ogg
// container stream Traktor broadcasts. The decoder surfaces embedded Vorbis
// comment blocks as they complete and drops everything else (audio payload)
// without buffering it, so a multi-hour broadcast never accumulates memory.
//
// Framing recap: the stream is a sequence of pages, each carrying a 27-byte
// header, a segment lacing table, and raw segment bytes. Packets are
// reassembled by concatenating segments; a segment shorter than 255 bytes
// terminates the packet, which is how a packet can span any number of pages.
package ogg

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/tracord/tracord/internal/metrics"
)

const (
	pageHeaderSize = 27
	maxSegmentSize = 255

	// readBufferSize is generous relative to the 320kbps audio pages the
	// broadcaster emits.
	readBufferSize = 32 * 1024

	// maxPacketSize caps comment packet accumulation. Real comment packets
	// are a few hundred bytes; a stream that keeps a packet open past this
	// is malformed or hostile and aborts like any other framing violation.
	maxPacketSize = 1 << 20
)

var (
	pageMagic = []byte("OggS")

	// commentSignature is the leading signature of a Vorbis comment packet:
	// packet type 3 followed by the codec identifier.
	commentSignature = []byte{0x03, 'v', 'o', 'r', 'b', 'i', 's'}
)

// ErrBadPage reports a page header whose magic or version field does not
// match the container constants. It is connection-scoped: the caller closes
// the stream and returns to accepting, nothing more.
var ErrBadPage = errors.New("ogg: bad page header")

// MetadataBlock maps uppercase comment field names (ARTIST, TITLE, ...) to
// their UTF-8 values. Blocks are transient: consumed immediately by the
// matcher and not retained.
type MetadataBlock map[string]string

// Decoder incrementally decodes one Ogg stream. Not safe for concurrent
// use; each connection owns its Decoder.
type Decoder struct {
	r *bufio.Reader

	// table holds the lacing values of the current page not yet consumed.
	table []byte

	// packet assembly state
	packet     []byte
	classified bool
	isComment  bool
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, readBufferSize)}
}

// Next blocks until the next metadata comment block completes and returns
// it. It returns io.EOF when the stream ends cleanly at a page boundary,
// ErrBadPage when the container framing is violated, and the underlying
// read error otherwise. Suppressed blocks (encoder-only, or no artist and
// no title) are skipped internally and never surfaced.
func (d *Decoder) Next() (MetadataBlock, error) {
	for {
		size, err := d.nextSegmentSize()
		if err != nil {
			return nil, err
		}
		if err := d.readSegment(size); err != nil {
			return nil, err
		}
		if size < maxSegmentSize {
			if block := d.finishPacket(); block != nil {
				return block, nil
			}
		}
	}
}

// nextSegmentSize pops the next lacing value, pulling in the next page
// header and segment table when the current page is exhausted.
func (d *Decoder) nextSegmentSize() (int, error) {
	for len(d.table) == 0 {
		if err := d.readPageHeader(); err != nil {
			return 0, err
		}
	}
	size := int(d.table[0])
	d.table = d.table[1:]
	return size, nil
}

// readPageHeader consumes one page header and its segment table. A page may
// legitimately declare zero segments; the caller loops.
func (d *Decoder) readPageHeader() error {
	var header [pageHeaderSize]byte
	if _, err := io.ReadFull(d.r, header[:]); err != nil {
		// A clean EOF at a page boundary ends the stream; a partial header
		// is a truncated page and surfaces as ErrUnexpectedEOF.
		return err
	}

	if !bytes.Equal(header[:4], pageMagic) || header[4] != 0 {
		return ErrBadPage
	}

	segments := int(header[26])
	d.table = make([]byte, segments)
	if _, err := io.ReadFull(d.r, d.table); err != nil {
		return unexpected(err)
	}

	metrics.PagesDecoded.Inc()
	return nil
}

// readSegment consumes one segment, appending it to the packet buffer until
// the packet is classified as uninteresting, after which the bytes are
// discarded to keep the stream position synchronized.
func (d *Decoder) readSegment(size int) error {
	if d.classified && !d.isComment {
		if _, err := d.r.Discard(size); err != nil {
			return unexpected(err)
		}
		return nil
	}

	if size > 0 {
		if len(d.packet)+size > maxPacketSize {
			return fmt.Errorf("ogg: packet exceeds %d bytes: %w", maxPacketSize, ErrBadPage)
		}
		start := len(d.packet)
		d.packet = append(d.packet, make([]byte, size)...)
		if _, err := io.ReadFull(d.r, d.packet[start:]); err != nil {
			return unexpected(err)
		}
	}

	// Classify as soon as enough leading bytes are in: non-comment packets
	// (audio, identification, setup) stop accumulating immediately.
	if !d.classified && len(d.packet) >= len(commentSignature) {
		d.classified = true
		d.isComment = bytes.Equal(d.packet[:len(commentSignature)], commentSignature)
		if !d.isComment {
			d.packet = nil
		}
	}
	return nil
}

// finishPacket completes the current packet and returns a surfaced block
// when it was a comment packet that survives suppression. Packets shorter
// than the signature were never classified and cannot be comment packets.
func (d *Decoder) finishPacket() MetadataBlock {
	isComment := d.classified && d.isComment
	data := d.packet

	d.packet = nil
	d.classified = false
	d.isComment = false

	if !isComment {
		metrics.PacketsDecoded.WithLabelValues("other").Inc()
		return nil
	}
	metrics.PacketsDecoded.WithLabelValues("comment").Inc()

	block := parseCommentBody(data[len(commentSignature):])
	if suppressed(block) {
		metrics.MetadataBlocks.WithLabelValues("suppressed").Inc()
		return nil
	}
	metrics.MetadataBlocks.WithLabelValues("surfaced").Inc()
	return block
}

// unexpected maps a bare EOF inside a structure to ErrUnexpectedEOF so
// callers can distinguish truncation from a clean stream end.
func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
