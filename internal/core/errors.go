// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors. Callers wrap them with context and test with errors.Is.
var (
	// Rule install errors
	ErrOutOfRange        = errors.New("dsmark: value out of range")
	ErrNotFound          = errors.New("dsmark: extension not found")
	ErrUnsupportedFamily = errors.New("dsmark: unsupported address family")
	ErrTableMismatch     = errors.New("dsmark: extension not valid in table")

	// Packet access errors
	ErrPacketTooShort   = errors.New("dsmark: packet too short")
	ErrUnsupportedProto = errors.New("dsmark: unsupported protocol")
	ErrNotWritable      = errors.New("dsmark: packet header not writable")

	// Pipeline errors
	ErrPipelineStopped = errors.New("dsmark: pipeline stopped")
	ErrPluginNotFound  = errors.New("dsmark: plugin not found")

	// Configuration errors
	ErrConfigInvalid = errors.New("dsmark: invalid configuration")
)
