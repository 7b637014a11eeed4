package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/oauth2"

	"github.com/onnwee/streamrelay/chat"
	"github.com/onnwee/streamrelay/relay"
	"github.com/onnwee/streamrelay/session"
	"github.com/onnwee/streamrelay/telemetry"
	"github.com/onnwee/streamrelay/youtubeapi"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	maxFrameSize = 8 << 20
	sendBuffer   = 64
)

// Inbound event types.
const (
	eventSetDestinations = "set_destinations"
	eventSetRTMPURLs     = "set_rtmp_urls"
	eventStopStreaming   = "stop_streaming"
)

// Outbound event types.
const (
	eventStreamStatus = "stream_status"
	eventChatStatus   = "chat_status"
	eventChatUpdate   = "chat_update"
)

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type credentials struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type setDestinations struct {
	Destinations []string     `json:"destinations"`
	Credentials  *credentials `json:"credentials,omitempty"`
}

// setRTMPURLs is the older form of set_destinations.
type setRTMPURLs struct {
	URLs         []string `json:"urls"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
}

type streamStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type chatStatus struct {
	State   string `json:"state"`
	Message string `json:"message,omitempty"`
}

type outbound struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// HandleWebsocket upgrades the operator connection and runs its session until the socket closes.
func (h *Handlers) HandleWebsocket(w http.ResponseWriter, r *http.Request) {
	if n := h.conns.Add(1); n > int64(h.cfg.MaxSessions) {
		h.conns.Add(-1)
		http.Error(w, "session limit reached", http.StatusServiceUnavailable)
		return
	}
	defer h.conns.Add(-1)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		telemetry.LoggerWithCorr(r.Context()).Warn("websocket upgrade failed", slog.Any("err", err), slog.String("component", "ws"))
		return
	}

	id := session.ID(uuid.New().String())
	c := newClient(id, conn, telemetry.LoggerWithCorr(r.Context()).With(slog.String("component", "ws"), slog.String("session", string(id))))
	c.logger.Info("operator connected", slog.String("remote", clientIP(r)))

	go c.writePump()
	go func() {
		select {
		case <-h.ctx.Done():
			_ = conn.Close()
		case <-c.done:
		}
	}()

	defer func() {
		h.sessions.OnTransportDisconnect(id)
		c.close()
		_ = conn.Close()
		c.logger.Info("operator disconnected")
	}()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read failed", slog.Any("err", err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		switch kind {
		case websocket.BinaryMessage:
			h.sessions.Ingest(id, data)
		case websocket.TextMessage:
			h.dispatch(r, c, data)
		}
	}
}

func (h *Handlers) dispatch(r *http.Request, c *client, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("malformed event", slog.Any("err", err))
		return
	}

	switch env.Type {
	case eventSetDestinations:
		var req setDestinations
		if err := decodeData(env.Data, &req); err != nil {
			c.logger.Warn("malformed set_destinations", slog.Any("err", err))
			return
		}
		var creds credentials
		if req.Credentials != nil {
			creds = *req.Credentials
		}
		h.start(r, c, req.Destinations, creds)
	case eventSetRTMPURLs:
		var req setRTMPURLs
		if err := decodeData(env.Data, &req); err != nil {
			c.logger.Warn("malformed set_rtmp_urls", slog.Any("err", err))
			return
		}
		h.start(r, c, req.URLs, credentials{AccessToken: req.AccessToken, RefreshToken: req.RefreshToken})
	case eventStopStreaming:
		h.sessions.Stop(c.id)
	default:
		c.logger.Debug("ignoring unknown event", slog.String("type", env.Type))
	}
}

func decodeData(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func (h *Handlers) start(r *http.Request, c *client, destinations []string, creds credentials) {
	cred := h.credentialFor(r, c, creds)
	if err := h.sessions.Start(r.Context(), c.id, c, destinations, cred); err != nil {
		// already reported to the client as stream_status
		c.logger.Debug("session start failed", slog.Any("err", err))
	}
}

// credentialFor prefers tokens sent with the event over the default credential.
func (h *Handlers) credentialFor(r *http.Request, c *client, creds credentials) *youtubeapi.Credential {
	if h.yt != nil && (creds.AccessToken != "" || creds.RefreshToken != "") {
		cred, err := h.yt.SessionCredential(r.Context(), creds.AccessToken, creds.RefreshToken, func(tok *oauth2.Token) {
			c.logger.Info("session youtube token refreshed", slog.String("access_token", youtubeapi.Mask(tok.AccessToken)), slog.Time("expiry", tok.Expiry))
		})
		if err == nil {
			return cred
		}
		c.logger.Warn("ignoring session credentials", slog.Any("err", err))
	}
	return h.DefaultCredential()
}

// client is the session.Sink for one websocket. Events are queued and written by writePump so
// relay and chat goroutines never block on the network.
type client struct {
	id     session.ID
	conn   *websocket.Conn
	logger *slog.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(id session.ID, conn *websocket.Conn, logger *slog.Logger) *client {
	return &client{
		id:     id,
		conn:   conn,
		logger: logger,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

// StreamStatus implements session.Sink.
func (c *client) StreamStatus(st relay.Status) {
	c.emit(eventStreamStatus, streamStatus{Status: st.State.String(), Message: st.Message})
}

// ChatState implements chat.Listener.
func (c *client) ChatState(st chat.PollState, err error) {
	out := chatStatus{State: st.String()}
	if err != nil {
		out.Message = err.Error()
	}
	c.emit(eventChatStatus, out)
}

// ChatMessages implements chat.Listener.
func (c *client) ChatMessages(msgs []chat.Message) {
	if msgs == nil {
		msgs = []chat.Message{}
	}
	c.emit(eventChatUpdate, msgs)
}

func (c *client) emit(typ string, data any) {
	b, err := json.Marshal(outbound{Type: typ, Data: data})
	if err != nil {
		c.logger.Error("encode event", slog.String("type", typ), slog.Any("err", err))
		return
	}
	select {
	case c.send <- b:
	case <-c.done:
	default:
		c.logger.Warn("client too slow; event dropped", slog.String("type", typ))
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.logger.Debug("websocket write failed", slog.Any("err", err))
				c.close()
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				_ = c.conn.Close()
				return
			}
		case <-c.done:
			c.flush()
			return
		}
	}
}

// flush writes what is already queued, so the final stream_status reaches the client before
// the socket closes.
func (c *client) flush() {
	for {
		select {
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		default:
			_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}
