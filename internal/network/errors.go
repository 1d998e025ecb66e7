package network

import "errors"

// Transport errors.
var (
	// ErrPermissionDenied indicates raw sockets could not be opened
	ErrPermissionDenied = errors.New("raw sockets require root or CAP_NET_RAW")

	// ErrClosed indicates the connection has been closed
	ErrClosed = errors.New("connection closed")

	// ErrMalformedPacket indicates an outgoing packet without a valid IP header
	ErrMalformedPacket = errors.New("malformed packet")

	// ErrNoRoute indicates no local source address reaches the destination
	ErrNoRoute = errors.New("no route to destination")
)
