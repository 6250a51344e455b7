package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"proconnect/internal/access"
	"proconnect/internal/identity"
	"proconnect/internal/relay"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 12 * time.Second
	pingPeriod      = 3 * time.Second // must be < pongWait
	dispatchTimeout = 1900 * time.Millisecond
)

type Options struct {
	OutboxSize int
	ReadLimit  int64
}

type WsServer struct {
	engine   *relay.Engine
	resolver *identity.Resolver
	router   *Router
	upgrader websocket.Upgrader
	opts     Options
}

func NewWsServer(engine *relay.Engine, resolver *identity.Resolver, opts Options) *WsServer {
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = 64
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 8 << 10
	}
	srv := &WsServer{
		engine:   engine,
		resolver: resolver,
		router:   NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true }, // dev‑only
		},
		opts: opts,
	}
	srv.registerHandlers() // ← all WS endpoints configured here
	return srv
}

// ---------------------------------------------------------------------------
//  Public: Gin entry‑point
// ---------------------------------------------------------------------------

// Handle upgrades the request. A missing token connects anonymously; an
// invalid one is rejected before the upgrade.
func (s *WsServer) Handle(ginCtx *gin.Context) {
	id, err := s.resolver.Resolve(ginCtx.Request)
	if err != nil {
		ginCtx.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	rawConn, err := s.upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.accept", zap.Error(err))
		return
	}
	rawConn.SetReadLimit(s.opts.ReadLimit)

	wsConn := newClientConn(rawConn, s.opts.OutboxSize)
	conn, err := s.engine.Connect(id, wsConn)
	if err != nil {
		zap.L().Error("ws.register", zap.Error(err))
		_ = rawConn.Close()
		return
	}

	go wsConn.writePump()
	go s.reader(&ConnContext{ConnID: conn.ID}, wsConn)
}

// ---------------------------------------------------------------------------
//  Private helpers
// ---------------------------------------------------------------------------

func (s *WsServer) registerHandlers() {
	Register(s.router, EventJoinRoom,
		func(ctx context.Context, cc *ConnContext, req JoinRoomRequest) (RoomAck, error) {
			err := s.engine.Join(ctx, cc.ConnID, req.RoomID, req.Passcode, req.SegmentID)
			return RoomAck{RoomID: req.RoomID}, err
		},
	)
	Register(s.router, EventLeaveRoom,
		func(ctx context.Context, cc *ConnContext, req LeaveRoomRequest) (RoomAck, error) {
			err := s.engine.Leave(ctx, cc.ConnID, req.RoomID)
			return RoomAck{RoomID: req.RoomID}, err
		},
	)
	Register(s.router, EventSendMessage,
		func(ctx context.Context, cc *ConnContext, req SendMessageRequest) (SendMessageAck, error) {
			msg, err := s.engine.Send(ctx, cc.ConnID, req.RoomID, req.Payload)
			return SendMessageAck{RoomID: req.RoomID, Seq: msg.Seq}, err
		},
	)
}

// reader handles one connection's frames in order and disconnects it from
// the relay when the socket goes away.
func (s *WsServer) reader(cc *ConnContext, conn *clientConn) {
	defer func() {
		s.engine.Disconnect(cc.ConnID)
		conn.Close()
	}()

	_ = conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	conn.rawConn.SetPongHandler(func(string) error {
		return conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var env inbound
		if err := conn.rawConn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				zap.L().Debug("ws.read", zap.String("conn", cc.ConnID), zap.Error(err))
			}
			return // client closed or errored
		}

		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		res, err := s.router.dispatch(ctx, cc, env)
		cancel()

		var reply Envelope
		if err != nil {
			if errors.Is(err, relay.ErrUnknownConnection) {
				return
			}
			reply = Envelope{Event: EventError, Body: errorBody(env.Event, err)}
		} else {
			reply = Envelope{Event: env.Event + "-ack", Body: res}
		}
		if !conn.enqueue(reply) {
			return
		}
	}
}

func errorBody(event string, err error) ErrorBody {
	body := ErrorBody{Event: event, Error: err.Error()}
	if r := access.ReasonOf(err); r != "" {
		body.Error = "access_denied"
		body.Reason = string(r)
	}
	switch {
	case errors.Is(err, ErrBadRequest):
		body.Error = ErrBadRequest.Error()
	case errors.Is(err, ErrUnknownEvent):
		body.Error = ErrUnknownEvent.Error()
	case errors.Is(err, relay.ErrMembershipBusy):
		body.Error = "membership_busy"
	}
	return body
}
