package lyria

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/decred/slog"
	"github.com/gorilla/websocket"
)

// DefaultURL is the realtime music generation endpoint.
const DefaultURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateMusic"

const (
	handshakeTimeout = 15 * time.Second
	writeTimeout     = 10 * time.Second
	maxMessageSize   = 8 << 20 // audio frames are a few hundred KB
)

var ErrSessionClosed = errors.New("session closed")

// Client opens music generation sessions.
type Client struct {
	url    string
	apiKey string
	log    slog.Logger
	dialer websocket.Dialer
}

// NewClient creates a client for the endpoint at rawURL, authenticating
// with apiKey. An empty rawURL selects DefaultURL.
func NewClient(rawURL, apiKey string, log slog.Logger) *Client {
	if rawURL == "" {
		rawURL = DefaultURL
	}
	if log == nil {
		log = slog.Disabled
	}
	return &Client{
		url:    rawURL,
		apiKey: apiKey,
		log:    log,
		dialer: websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   64 << 10,
			WriteBufferSize:  16 << 10,
		},
	}
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if c.apiKey != "" {
		q := u.Query()
		q.Set("key", c.apiKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Connect dials the endpoint, sends the setup message for model and starts
// delivering inbound events to cb. The returned session is live until it
// is closed or the remote end drops it.
func (c *Client) Connect(ctx context.Context, model string, cb Callbacks) (*Session, error) {
	if model == "" {
		model = DefaultModel
	}
	endpoint, err := c.endpoint()
	if err != nil {
		return nil, err
	}

	conn, resp, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	s := &Session{conn: conn, log: c.log, cb: cb}

	var setup setupMessage
	setup.Setup.Model = model
	if err := s.write(ctx, setup); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setup: %w", err)
	}

	c.log.Infof("Connected to %s (model %s)", c.url, model)
	go s.readLoop()
	return s, nil
}

// Session is a live connection to the generator. Writes are serialized;
// inbound events are delivered through the Callbacks given to Connect.
type Session struct {
	conn *websocket.Conn
	log  slog.Logger
	cb   Callbacks

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) write(ctx context.Context, v any) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(deadline)
	return s.conn.WriteJSON(v)
}

// SetWeightedPrompts replaces the full weighted prompt set.
func (s *Session) SetWeightedPrompts(ctx context.Context, prompts []WeightedPrompt) error {
	var msg clientContentMessage
	msg.ClientContent.WeightedPrompts = prompts
	if msg.ClientContent.WeightedPrompts == nil {
		msg.ClientContent.WeightedPrompts = []WeightedPrompt{}
	}
	return s.write(ctx, msg)
}

// SetMusicGenerationConfig replaces the full generation config.
func (s *Session) SetMusicGenerationConfig(ctx context.Context, cfg GenerationConfig) error {
	return s.write(ctx, configMessage{MusicGenerationConfig: cfg})
}

func (s *Session) Play(ctx context.Context) error  { return s.control(ctx, ControlPlay) }
func (s *Session) Pause(ctx context.Context) error { return s.control(ctx, ControlPause) }
func (s *Session) Stop(ctx context.Context) error  { return s.control(ctx, ControlStop) }

// ResetContext asks the generator to drop its musical context.
func (s *Session) ResetContext(ctx context.Context) error {
	return s.control(ctx, ControlResetContext)
}

func (s *Session) control(ctx context.Context, pc PlaybackControl) error {
	return s.write(ctx, controlMessage{PlaybackControl: pc})
}

// Close sends a normal close frame and tears down the connection. The
// read loop reports it as a clean close.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closed")
	s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	s.writeMu.Unlock()
	return s.conn.Close()
}

func (s *Session) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.finish(err)
			return
		}

		var msg ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Warnf("Dropping malformed server message: %v", err)
			continue
		}
		if msg.Warning != "" {
			s.log.Warnf("Server warning: %s", msg.Warning)
		}
		if s.cb.OnMessage != nil {
			s.cb.OnMessage(&msg)
		}
	}
}

// finish classifies the error that ended the read loop.
func (s *Session) finish(err error) {
	ev, isClose := classifyClose(err)
	if !isClose && s.isClosed() {
		ev, isClose = CloseEvent{Code: websocket.CloseNormalClosure, Reason: "client closed", Clean: true}, true
	}

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.conn.Close()

	switch {
	case isClose && ev.Clean:
		s.log.Debugf("Session closed: %v", ev)
		if s.cb.OnClose != nil {
			s.cb.OnClose(ev)
		}
	case isClose:
		s.log.Errorf("Unexpected websocket close: %v", ev)
		if s.cb.OnClose != nil {
			s.cb.OnClose(ev)
		}
	default:
		s.log.Errorf("Session read error: %v", err)
		if s.cb.OnError != nil {
			s.cb.OnError(err)
		}
	}
}

// classifyClose reports whether err is a websocket close and whether it
// was an expected one.
func classifyClose(err error) (CloseEvent, bool) {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return CloseEvent{}, false
	}
	ev := CloseEvent{Code: ce.Code, Reason: ce.Text}
	ev.Clean = websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
	return ev, true
}
