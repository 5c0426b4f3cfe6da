// ABOUTME: Websocket transport for human surfaces at /ui/ws
// ABOUTME: One writer goroutine per client merges replies, pushed events and pings

package surface

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/mcp-feedback/internal/observer"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 32 << 20 // attachments travel base64 encoded
	sendBufferSize = 64
)

// RegisterRoutes registers the websocket endpoint on the given ServeMux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ui/ws", h.ServeWS)
}

// ServeWS upgrades the request and serves one surface until it disconnects.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	var events <-chan observer.Event
	if h.events != nil {
		events, _ = h.events.Subscribe(ctx)
	}

	send := make(chan Outbound, sendBufferSize)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(ctx, conn, events, send)
		cancel()
		_ = conn.Close()
	}()

	h.logger.Info("surface connected", "remote", r.RemoteAddr)

	reply := func(out Outbound) {
		select {
		case send <- out:
		case <-ctx.Done():
		}
	}
	reply(Outbound{Type: TypeToolCalls, Data: h.renderer.ToolCalls(h.broker.ListAll())})

	h.readLoop(ctx, conn, reply)

	cancel()
	<-writerDone
	h.logger.Info("surface disconnected", "remote", r.RemoteAddr)
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, reply func(Outbound)) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("surface disconnected unexpectedly", "error", err)
			}
			return
		}

		var in Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			h.logger.Warn("invalid surface message", "error", err)
			reply(Outbound{Type: TypeError, Message: "invalid message: " + err.Error()})
			continue
		}

		h.Handle(ctx, in, reply)
	}
}

// writeLoop owns every write to conn.
func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, events <-chan observer.Event, send <-chan Outbound) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	write := func(out Outbound) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(out); err != nil {
			h.logger.Debug("surface write failed", "type", out.Type, "error", err)
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case out := <-send:
			if !write(out) {
				return
			}
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			out, ok := h.eventMessage(ev)
			if !ok {
				continue
			}
			if !write(out) {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
