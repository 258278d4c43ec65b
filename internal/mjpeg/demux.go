// Package mjpeg splits the raw byte output of a video decoder into
// discrete JPEG frames and re-emits them as a multipart viewer stream.
package mjpeg

import "bytes"

var (
	soi = []byte{0xFF, 0xD8} // start of image
	eoi = []byte{0xFF, 0xD9} // end of image
)

// Demuxer extracts complete JPEG frames from an arbitrarily-chunked byte
// stream. It is a plain fold over chunks: state is one buffer, Feed
// appends a chunk and returns every frame completed by it. A Demuxer is
// local to one decode session and is not safe for concurrent use.
type Demuxer struct {
	buf []byte
}

// NewDemuxer creates a demuxer for a fresh byte stream.
func NewDemuxer() *Demuxer {
	return &Demuxer{}
}

// Feed appends a chunk to the internal buffer and returns zero or more
// complete frames, each one an independent copy including both markers.
//
// Bytes before the first start marker are noise and get discarded, except
// a trailing 0xFF which could be the first half of a split marker. An
// unterminated frame stays buffered until the closing marker arrives, so
// memory is bounded by one in-flight frame plus trailing noise.
func (d *Demuxer) Feed(chunk []byte) [][]byte {
	if len(chunk) == 0 {
		return nil
	}
	d.buf = append(d.buf, chunk...)

	var frames [][]byte
	for {
		start := bytes.Index(d.buf, soi)
		if start < 0 {
			// Nothing but noise. Keep a trailing 0xFF: it may be the
			// first byte of a start marker split across chunks.
			if n := len(d.buf); n > 0 && d.buf[n-1] == 0xFF {
				d.buf = []byte{0xFF}
			} else {
				d.buf = nil
			}
			return frames
		}

		end := bytes.Index(d.buf[start+2:], eoi)
		if end < 0 {
			// Frame still open; drop the noise ahead of it and wait.
			if start > 0 {
				d.buf = append([]byte(nil), d.buf[start:]...)
			}
			return frames
		}
		end += start + 2 + 2 // absolute offset one past the end marker

		frame := make([]byte, end-start)
		copy(frame, d.buf[start:end])
		frames = append(frames, frame)

		d.buf = append([]byte(nil), d.buf[end:]...)
	}
}

// Reset discards all buffered state so the demuxer can be reused for a
// new stream session.
func (d *Demuxer) Reset() {
	d.buf = nil
}
