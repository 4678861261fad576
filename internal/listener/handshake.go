// Tracord - Live DJ Broadcast Metadata Relay
// Copyright 2026 Tracord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tracord/tracord

package listener

import (
	"bufio"
	"fmt"
	"io"
	"net/textproto"
	"strings"
)

// Traktor (like other Icecast source clients) opens the stream with an
// HTTP-style request using the SOURCE method:
//
//	SOURCE /stream HTTP/1.0
//	Content-Type: application/ogg
//	...
//
// followed by a blank line and then raw container bytes on the same
// connection. The handshake is acknowledged with a bare status line.
const (
	sourceMethod = "SOURCE"

	statusOK               = "HTTP/1.0 200 OK\r\n\r\n"
	statusMethodNotAllowed = "HTTP/1.0 405 Method Not Allowed\r\n\r\n"
	statusBadRequest       = "HTTP/1.0 400 Bad Request\r\n\r\n"
)

// handshakeError describes a rejected handshake and the status line already
// owed to the peer.
type handshakeError struct {
	reason string
	status string
}

func (e *handshakeError) Error() string { return "handshake rejected: " + e.reason }

// readHandshake consumes the request line and headers from br. On success
// the reader is positioned at the first byte of the container stream.
func readHandshake(br *bufio.Reader) (mountpoint string, err *handshakeError) {
	tp := textproto.NewReader(br)

	line, readErr := tp.ReadLine()
	if readErr != nil {
		return "", &handshakeError{reason: fmt.Sprintf("read request line: %v", readErr), status: statusBadRequest}
	}

	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", &handshakeError{reason: fmt.Sprintf("malformed request line %q", line), status: statusBadRequest}
	}
	if fields[0] != sourceMethod {
		return "", &handshakeError{reason: fmt.Sprintf("unexpected method %q", fields[0]), status: statusMethodNotAllowed}
	}

	// Headers are read for stream-position correctness and otherwise ignored.
	if _, readErr := tp.ReadMIMEHeader(); readErr != nil && readErr != io.EOF {
		return "", &handshakeError{reason: fmt.Sprintf("read headers: %v", readErr), status: statusBadRequest}
	}

	return fields[1], nil
}
