package stream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/facemark/facemark/internal/mjpeg"
)

// OutputSpec fixes the decoder's output parameters: MJPEG frames at the
// given size, rate and quality.
type OutputSpec struct {
	Width   int
	Height  int
	FPS     int
	Quality int // JPEG quality scale, 2 (best) to 31
}

// DefaultOutput matches a 720p preview stream.
var DefaultOutput = OutputSpec{Width: 1280, Height: 720, FPS: 10, Quality: 5}

// Supervisor owns at most one decoder subprocess per session key and
// forwards demuxed frames to that session's viewers. Start and Stop are
// serialized per key; the subprocess is terminated when the last viewer
// leaves or on shutdown, never leaked.
type Supervisor struct {
	binary string
	grace  time.Duration

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	cancel    context.CancelFunc
	hub       *Hub
	done      chan struct{}
	stopTimer *time.Timer
}

// NewSupervisor creates a supervisor that launches the given decoder
// binary (e.g. "ffmpeg") and stops idle sessions after the grace period.
func NewSupervisor(binary string, grace time.Duration) *Supervisor {
	if binary == "" {
		binary = "ffmpeg"
	}
	if grace <= 0 {
		grace = 5 * time.Second
	}
	return &Supervisor{
		binary:   binary,
		grace:    grace,
		sessions: make(map[string]*session),
	}
}

// decoderArgs builds the decoder invocation: transport selection, source
// URL, MJPEG output at the requested rate/size/quality on stdout.
func decoderArgs(sourceURL string, spec OutputSpec) []string {
	var args []string
	if strings.HasPrefix(sourceURL, "rtsp://") {
		args = append(args, "-rtsp_transport", "tcp")
	}
	args = append(args,
		"-i", sourceURL,
		"-an",
		"-f", "mjpeg",
		"-q:v", fmt.Sprintf("%d", spec.Quality),
		"-r", fmt.Sprintf("%d", spec.FPS),
		"-vf", fmt.Sprintf("scale=%d:%d", spec.Width, spec.Height),
		"pipe:1",
	)
	return args
}

// Start launches the decoder for the given session key. An already
// running session for the key is stopped first.
func (s *Supervisor) Start(ctx context.Context, key, sourceURL string, spec OutputSpec) error {
	if sourceURL == "" {
		return ErrInvalidSource
	}
	if _, err := exec.LookPath(s.binary); err != nil {
		return fmt.Errorf("%w: %s", ErrDecoderUnavailable, s.binary)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.sessions[key]; ok {
		s.stopLocked(key, old)
	}

	// The caller's ctx only gates the spawn. The subprocess lifetime is
	// owned by the supervisor: it ends on Stop, StopAll or the
	// last-viewer grace timer, not when the starting request finishes.
	runCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(runCtx, s.binary, decoderArgs(sourceURL, spec)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("decoder stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("decoder stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("%w: %v", ErrDecoderUnavailable, err)
	}

	sess := &session{
		cancel: cancel,
		hub:    NewHub(),
		done:   make(chan struct{}),
	}
	s.sessions[key] = sess

	// Diagnostics are observed for liveness only, never parsed here.
	go drainDiagnostics(stderr)
	go s.pump(key, sess, stdout, cmd)

	log.Printf("stream %s: decoder started (source=%s, %dx%d@%dfps)",
		key, sourceURL, spec.Width, spec.Height, spec.FPS)
	return nil
}

// pump demuxes decoder output and publishes frames until the stream
// ends, then tears the session down.
func (s *Supervisor) pump(key string, sess *session, stdout io.Reader, cmd *exec.Cmd) {
	defer close(sess.done)

	demux := mjpeg.NewDemuxer()
	buf := make([]byte, 32*1024)
	frames := 0
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			for _, frame := range demux.Feed(buf[:n]) {
				sess.hub.Publish(frame)
				frames++
			}
		}
		if err != nil {
			break
		}
	}

	if err := cmd.Wait(); err != nil && frames == 0 {
		log.Printf("stream %s: decoder exited without producing frames: %v", key, err)
	}

	sess.hub.closeAll()

	s.mu.Lock()
	if s.sessions[key] == sess {
		delete(s.sessions, key)
	}
	s.mu.Unlock()
	log.Printf("stream %s: decoder stopped after %d frames", key, frames)
}

func drainDiagnostics(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		// Keep the decoder's pipe drained; the text itself only matters
		// to the connectivity test.
	}
}

// Subscribe attaches a viewer to a running session. Returns the frame
// channel and an unsubscribe func. When the last viewer leaves, the
// session's decoder is stopped after the grace period unless a new
// viewer arrives first.
func (s *Supervisor) Subscribe(key string) (<-chan []byte, func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		return nil, nil, false
	}
	if sess.stopTimer != nil {
		sess.stopTimer.Stop()
		sess.stopTimer = nil
	}

	id, ch := sess.hub.Subscribe()
	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.sessions[key] != sess {
			return
		}
		if remaining := sess.hub.Unsubscribe(id); remaining == 0 {
			sess.stopTimer = time.AfterFunc(s.grace, func() { s.Stop(key) })
		}
	}
	return ch, cancel, true
}

// Running reports whether a session is active for the key.
func (s *Supervisor) Running(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[key]
	return ok
}

// Latest returns the most recent frame of a session, if any.
func (s *Supervisor) Latest(key string) ([]byte, bool) {
	s.mu.Lock()
	sess, ok := s.sessions[key]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	frame := sess.hub.Latest()
	return frame, frame != nil
}

// Stop terminates the session's decoder. Calling it with no active
// session is a no-op.
func (s *Supervisor) Stop(key string) {
	s.mu.Lock()
	sess, ok := s.sessions[key]
	if ok {
		s.stopLocked(key, sess)
	}
	s.mu.Unlock()

	if ok {
		<-sess.done
	}
}

// stopLocked signals the session's subprocess to die and removes it from
// the table. Callers hold s.mu.
func (s *Supervisor) stopLocked(key string, sess *session) {
	if sess.stopTimer != nil {
		sess.stopTimer.Stop()
		sess.stopTimer = nil
	}
	sess.cancel()
	delete(s.sessions, key)
}

// StopAll terminates every active session; used on process shutdown.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	var waiting []*session
	for key, sess := range s.sessions {
		s.stopLocked(key, sess)
		waiting = append(waiting, sess)
	}
	s.mu.Unlock()

	for _, sess := range waiting {
		<-sess.done
	}
}
