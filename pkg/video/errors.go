package video

import "errors"

// Sentinel errors for the decode pipeline. Callers classify with errors.Is.

// Construction errors. The pipeline is never started when one of these is
// returned.
var (
	// ErrNoVideoStream indicates the container has no decodable video stream.
	ErrNoVideoStream = errors.New("no video stream found")

	// ErrInvalidCodecParameters indicates the stream reports no pixel format
	// or zero dimensions.
	ErrInvalidCodecParameters = errors.New("invalid video codec parameters")
)

// Decode loop errors.
var (
	// ErrDecoderEOF indicates the decoder is fully drained.
	ErrDecoderEOF = errors.New("decoder exhausted")

	// ErrDecoderFault indicates an unclassified decoder failure.
	ErrDecoderFault = errors.New("decoder fault")

	// ErrShapeMismatch indicates a decoded image does not fit a pool buffer.
	ErrShapeMismatch = errors.New("frame buffer shape mismatch")

	// ErrEmptyStream indicates a whole loop of the input produced no packet.
	ErrEmptyStream = errors.New("stream yielded no packets")
)

// Lifecycle errors.
var (
	// ErrAlreadyStarted indicates StartDecoding was called twice.
	ErrAlreadyStarted = errors.New("decoding already started")

	// ErrPipelineClosed indicates the pipeline was closed and cannot restart.
	ErrPipelineClosed = errors.New("pipeline closed")

	// ErrDrainCeiling indicates the decoder never reported end of stream
	// while draining.
	ErrDrainCeiling = errors.New("drain iteration ceiling exceeded")
)
