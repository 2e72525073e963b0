package client

import "errors"

var (
	// ErrUnsupportedAuth means the server offered no auth method we implement.
	ErrUnsupportedAuth = errors.New("no supported auth method offered")

	// ErrAccessDenied wraps a server ACCESS_DENIED.
	ErrAccessDenied = errors.New("access denied")

	// ErrResultsClosed means the mesh pipeline shut down under a live session.
	ErrResultsClosed = errors.New("mesh results closed")

	// ErrHandshakeTimeout means READY was not reached in time.
	ErrHandshakeTimeout = errors.New("handshake timeout")

	// ErrSessionClosed is returned by Post once the session has ended.
	ErrSessionClosed = errors.New("session closed")
)
