package stream

import (
	"encoding/json"
	"net/http"
	"slices"
	"sync"

	"github.com/decred/slog"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"gopkg.in/hraban/opus.v2"

	"github.com/satindergrewal/bioradio/internal/audio"
)

const opusBitrate = 128000

// WebRTCHandler answers SDP offers and streams Opus to each peer.
type WebRTCHandler struct {
	broadcaster *Broadcaster
	log         slog.Logger

	mu    sync.Mutex
	peers []*webrtc.PeerConnection
}

// NewWebRTCHandler creates a WebRTC stream handler.
func NewWebRTCHandler(b *Broadcaster, log slog.Logger) *WebRTCHandler {
	if log == nil {
		log = slog.Disabled
	}
	return &WebRTCHandler{broadcaster: b, log: log}
}

// PeerCount returns the number of active peers.
func (h *WebRTCHandler) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// ServeHTTP expects a JSON session description offer and replies with the
// answer once ICE gathering is complete.
func (h *WebRTCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		http.Error(w, "invalid SDP offer", http.StatusBadRequest)
		return
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		http.Error(w, "create peer connection failed", http.StatusInternalServerError)
		return
	}
	fail := func(msg string, code int, err error) {
		pc.Close()
		h.log.Warnf("WebRTC offer from %s: %s: %v", r.RemoteAddr, msg, err)
		http.Error(w, msg, code)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio",
		"bioradio",
	)
	if err != nil {
		fail("create audio track failed", http.StatusInternalServerError, err)
		return
	}
	if _, err := pc.AddTrack(track); err != nil {
		fail("add track failed", http.StatusInternalServerError, err)
		return
	}
	if err := pc.SetRemoteDescription(offer); err != nil {
		fail("set remote description failed", http.StatusBadRequest, err)
		return
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		fail("create answer failed", http.StatusInternalServerError, err)
		return
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		fail("set local description failed", http.StatusInternalServerError, err)
		return
	}
	select {
	case <-gatherComplete:
	case <-r.Context().Done():
		pc.Close()
		return
	}

	h.mu.Lock()
	h.peers = append(h.peers, pc)
	h.mu.Unlock()
	h.log.Infof("WebRTC peer connected (total: %d)", h.PeerCount())

	listener := h.broadcaster.Subscribe(KindWebRTC)
	go h.streamToPeer(listener, track)

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed,
			webrtc.PeerConnectionStateDisconnected:
			h.broadcaster.Unsubscribe(listener)
			if h.removePeer(pc) {
				pc.Close()
				h.log.Infof("WebRTC peer disconnected (remaining: %d)", h.PeerCount())
			}
		}
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pc.LocalDescription())
}

func (h *WebRTCHandler) streamToPeer(listener *Listener, track *webrtc.TrackLocalStaticSample) {
	defer h.broadcaster.Unsubscribe(listener)

	enc, err := opus.NewEncoder(audio.SampleRate, audio.Channels, opus.AppAudio)
	if err != nil {
		h.log.Errorf("WebRTC: opus encoder: %v", err)
		return
	}
	if err := enc.SetBitrate(opusBitrate); err != nil {
		h.log.Warnf("WebRTC: set bitrate: %v", err)
	}

	buf := make([]byte, 4000)
	for {
		select {
		case <-listener.Done():
			return
		case frame := <-listener.C:
			n, err := enc.Encode(frame, buf)
			if err != nil {
				h.log.Warnf("WebRTC: opus encode: %v", err)
				continue
			}
			if err := track.WriteSample(media.Sample{
				Data:     buf[:n],
				Duration: audio.FrameDuration,
			}); err != nil {
				return
			}
		}
	}
}

// removePeer reports whether pc was still registered.
func (h *WebRTCHandler) removePeer(pc *webrtc.PeerConnection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	i := slices.Index(h.peers, pc)
	if i < 0 {
		return false
	}
	h.peers = slices.Delete(h.peers, i, i+1)
	return true
}

// Close hangs up every peer.
func (h *WebRTCHandler) Close() {
	h.mu.Lock()
	peers := h.peers
	h.peers = nil
	h.mu.Unlock()
	for _, pc := range peers {
		pc.Close()
	}
}
