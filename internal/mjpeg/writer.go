package mjpeg

import (
	"fmt"
	"io"
	"net/http"
)

// Boundary separates parts of the multipart viewer stream.
const Boundary = "frame"

// ContentType is the value served to MJPEG viewers.
const ContentType = "multipart/x-mixed-replace; boundary=" + Boundary

// Writer emits JPEG frames as a multipart/x-mixed-replace stream, the
// format browsers render natively inside an <img> tag.
type Writer struct {
	w io.Writer
}

// NewWriter wraps w for multipart frame output. When w is an
// http.ResponseWriter the caller is expected to set ContentType first.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteFrame writes a single frame part and flushes it to the client
// when the underlying writer supports flushing.
func (mw *Writer) WriteFrame(frame []byte) error {
	header := fmt.Sprintf("--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", Boundary, len(frame))
	if _, err := io.WriteString(mw.w, header); err != nil {
		return fmt.Errorf("writing frame header: %w", err)
	}
	if _, err := mw.w.Write(frame); err != nil {
		return fmt.Errorf("writing frame body: %w", err)
	}
	if _, err := io.WriteString(mw.w, "\r\n"); err != nil {
		return fmt.Errorf("writing frame trailer: %w", err)
	}
	if f, ok := mw.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
