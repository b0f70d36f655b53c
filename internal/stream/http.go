package stream

import (
	"context"
	"io"
	"net/http"
	"os/exec"
	"strconv"

	"github.com/decred/slog"

	"github.com/satindergrewal/bioradio/internal/audio"
)

// KindHTTP and KindWebRTC label remote listeners.
const (
	KindHTTP   = "http"
	KindWebRTC = "webrtc"
)

// HTTPHandler serves a chunked MP3 stream. Each connection runs its own
// FFmpeg process encoding PCM to MP3 in real time.
type HTTPHandler struct {
	broadcaster *Broadcaster
	log         slog.Logger
	ffmpeg      string
}

// NewHTTPHandler creates an HTTP stream handler.
func NewHTTPHandler(b *Broadcaster, log slog.Logger) *HTTPHandler {
	if log == nil {
		log = slog.Disabled
	}
	return &HTTPHandler{broadcaster: b, log: log, ffmpeg: "ffmpeg"}
}

func mp3Args() []string {
	return []string{
		"-f", "s16le",
		"-ar", strconv.Itoa(audio.SampleRate),
		"-ac", strconv.Itoa(audio.Channels),
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", "192k",
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cmd := exec.CommandContext(ctx, h.ffmpeg, mp3Args()...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		h.log.Errorf("HTTP stream: stdin pipe: %v", err)
		http.Error(w, "stream unavailable", http.StatusServiceUnavailable)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		h.log.Errorf("HTTP stream: stdout pipe: %v", err)
		http.Error(w, "stream unavailable", http.StatusServiceUnavailable)
		return
	}
	if err := cmd.Start(); err != nil {
		h.log.Errorf("HTTP stream: ffmpeg start: %v", err)
		http.Error(w, "stream unavailable", http.StatusServiceUnavailable)
		return
	}
	defer cmd.Wait()

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("ICY-Name", "bioradio")

	listener := h.broadcaster.Subscribe(KindHTTP)
	defer h.broadcaster.Unsubscribe(listener)
	h.log.Infof("HTTP listener connected from %s (total: %d)", r.RemoteAddr, h.broadcaster.ListenerCount())
	defer h.log.Infof("HTTP listener %s disconnected", r.RemoteAddr)

	go func() {
		defer stdin.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-listener.Done():
				return
			case frame := <-listener.C:
				if _, err := stdin.Write(audio.SamplesToBytes(frame)); err != nil {
					return
				}
			}
		}
	}()

	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				break
			}
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				h.log.Warnf("HTTP stream: ffmpeg read: %v", err)
			}
			break
		}
	}
	cancel()
}
