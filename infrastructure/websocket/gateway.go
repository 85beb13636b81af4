// Package websocket is the transport of the real-time core: it authenticates
// upgrade requests, decodes inbound frames into hub operations and drains
// each connection's outbound queue.
package websocket

import (
	"chat-core/contract"
	"chat-core/domain"
	"chat-core/errors"
	"chat-core/services"
	"chat-core/sink"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	maxFrameSize = int64(64 * 1024)
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
)

type Authenticator interface {
	Authenticate(r *http.Request) (domain.Identity, error)
}

type Gateway struct {
	log          *slog.Logger
	hub          services.IHub
	auth         Authenticator
	upgrader     websocket.Upgrader
	bufferSize   int
	writeTimeout time.Duration
}

func NewGateway(log *slog.Logger, hub services.IHub, auth Authenticator, bufferSize int, writeTimeout time.Duration) *Gateway {
	return &Gateway{
		log:  log,
		hub:  hub,
		auth: auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Identity comes from the token, not from cookies
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		bufferSize:   bufferSize,
		writeTimeout: writeTimeout,
	}
}

// ServeHTTP owns one connection for its whole lifetime.
// An invalid token is answered with 401 before any upgrade.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, err := g.auth.Authenticate(r)
	if err != nil {
		g.log.Debug("Upgrade refused", "remote", r.RemoteAddr, "error", err)
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Debug("Upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	outbound := sink.NewConnectionSink(g.log, g.bufferSize)
	conn := contract.Connection{
		ID:       domain.ConnectionID(uuid.NewString()),
		Identity: identity,
		Sink:     outbound,
	}
	log := g.log.With("connection_id", conn.ID, "user_id", identity.UserID)

	ctx, cancel := context.WithCancel(r.Context())
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		g.writeLoop(ctx, log, ws, outbound)
	}()

	g.hub.Connect(conn)
	g.readLoop(ctx, log, ws, conn)

	g.hub.Disconnect(conn.ID)
	cancel()
	<-writerDone
	_ = ws.Close()
}

func (g *Gateway) readLoop(ctx context.Context, log *slog.Logger, ws *websocket.Conn, conn contract.Connection) {
	ws.SetReadLimit(maxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("Connection lost", "error", err)
			}
			return
		}
		g.dispatch(ctx, conn, data)
	}
}

// writeLoop is the only writer of the socket.
// It closes the socket when the sink overflowed, which ends the read loop.
func (g *Gateway) writeLoop(ctx context.Context, log *slog.Logger, ws *websocket.Conn, outbound *sink.ConnectionSink) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Server shutdown or read loop exit: unblock the reader either way
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(g.writeTimeout))
			_ = ws.Close()
			return
		case <-outbound.Overflow():
			log.Warn("Slow consumer, closing connection")
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, errors.ErrSlowConsumer.Error()),
				time.Now().Add(g.writeTimeout))
			_ = ws.Close()
			return
		case e := <-outbound.Events:
			data, err := Encode(e)
			if err != nil {
				log.Error("Failed to encode event", "event", e.Name(), "error", err)
				continue
			}
			_ = ws.SetWriteDeadline(time.Now().Add(g.writeTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug("Write failed, closing connection", "error", err)
				_ = ws.Close()
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(g.writeTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = ws.Close()
				return
			}
		}
	}
}

// dispatch decodes one inbound frame and runs the matching hub operation.
// Errors are reported to the connection by the hub itself.
func (g *Gateway) dispatch(ctx context.Context, conn contract.Connection, data []byte) {
	var frame InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		g.hub.ReportError(ctx, conn, "", fmt.Errorf("%w: malformed frame", errors.ErrInvalidPayload))
		return
	}

	switch frame.Event {
	case JoinConversation, LeaveConversation, StartTyping, StopTyping, MarkRead:
		var p ConversationPayload
		if err := decode(frame.Data, &p); err != nil {
			g.hub.ReportError(ctx, conn, frame.Event, err)
			return
		}
		switch frame.Event {
		case JoinConversation:
			_ = g.hub.JoinConversation(ctx, conn, p.ConversationID)
		case LeaveConversation:
			g.hub.LeaveConversation(conn, p.ConversationID)
		case StartTyping:
			g.hub.StartTyping(ctx, conn, p.ConversationID)
		case StopTyping:
			g.hub.StopTyping(ctx, conn, p.ConversationID)
		case MarkRead:
			_ = g.hub.MarkRead(ctx, conn, p.ConversationID)
		}
	case SendMessage:
		var p SendMessagePayload
		if err := decode(frame.Data, &p); err != nil {
			g.hub.ReportError(ctx, conn, frame.Event, err)
			return
		}
		_ = g.hub.SendMessage(ctx, conn, p.ToCommand())
	case GetOnlineUsers:
		var p OnlineUsersPayload
		if err := decode(frame.Data, &p); err != nil {
			g.hub.ReportError(ctx, conn, frame.Event, err)
			return
		}
		g.hub.GetOnlineUsers(ctx, conn, p.UserIDs)
	default:
		g.hub.ReportError(ctx, conn, frame.Event, fmt.Errorf("%w: %q", errors.ErrUnknownEvent, frame.Event))
	}
}

func decode(data json.RawMessage, out any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", errors.ErrInvalidPayload)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	return nil
}
