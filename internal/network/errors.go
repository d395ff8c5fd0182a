package network

import "errors"

var (
	// ErrGeneratorExhausted is returned by Populate when a sequence parameter
	// yields fewer values than the graph has nodes.
	ErrGeneratorExhausted = errors.New("parameter sequence exhausted")

	// ErrUnknownNode is returned when an edge or lookup names a node that is
	// not in the graph.
	ErrUnknownNode = errors.New("unknown node")
)
