package ws

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jsherman999/parknow/internal/catalog"
	"github.com/jsherman999/parknow/internal/parking"
	"go.uber.org/zap"
)

type State int32

const (
	Connecting State = iota
	Active
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Active:
		return "active"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Close reasons, also used as the metrics label.
const (
	ReasonNotFound   = "not_found"
	ReasonPeerClosed = "peer_closed"
	ReasonWriteError = "write_error"
	ReasonEvicted    = "evicted"
	ReasonShutdown   = "shutdown"
)

// NotFoundMessage is the single payload sent before closing a stream for an unknown facility.
const NotFoundMessage = "Location not found"

type errorPayload struct {
	Error string `json:"error"`
}

// Session bridges one WebSocket connection to one facility hub.
// It is used once: CONNECTING -> ACTIVE -> CLOSED.
type Session struct {
	ID         string
	FacilityID string

	conn   *websocket.Conn
	opts   Options
	logger *zap.Logger
	state  atomic.Int32
}

func newSession(conn *websocket.Conn, facilityID string, opts Options, logger *zap.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		ID:         id,
		FacilityID: facilityID,
		conn:       conn,
		opts:       opts,
		logger:     logger.With(zap.String("session", id), zap.String("facility", facilityID)),
	}
}

func (s *Session) State() State { return State(s.state.Load()) }

// run serves the session until the peer leaves, a write fails, the hub evicts it or
// ctx is cancelled. The subscription is always released before run returns.
func (s *Session) run(ctx context.Context, cat *catalog.Catalog) string {
	defer s.conn.Close()
	defer s.state.Store(int32(Closed))

	f, err := cat.Lookup(s.FacilityID)
	if err != nil {
		_ = s.writeJSON(errorPayload{Error: NotFoundMessage})
		s.closeWith(websocket.CloseNormalClosure, "")
		return ReasonNotFound
	}

	s.state.Store(int32(Active))
	sub := f.Hub.Attach()
	defer sub.Close()

	peerGone := make(chan struct{})
	go s.readLoop(peerGone)

	var lastSeq uint64
	sent := false
	if s.opts.SendInitial {
		snap := f.Registry.Read()
		if err := s.writeSlots(snap); err != nil {
			s.logger.Debug("initial write failed", zap.Error(err))
			return ReasonWriteError
		}
		lastSeq, sent = snap.Seq, true
	}

	ping := time.NewTicker(s.opts.pingPeriod())
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			s.closeWith(websocket.CloseGoingAway, "server shutting down")
			return ReasonShutdown

		case <-peerGone:
			return ReasonPeerClosed

		case snap, ok := <-sub.C:
			if !ok {
				if ctx.Err() != nil {
					s.closeWith(websocket.CloseGoingAway, "server shutting down")
					return ReasonShutdown
				}
				s.closeWith(websocket.CloseTryAgainLater, "viewer too slow")
				return ReasonEvicted
			}
			// the initial read may already cover snapshots queued before it
			if sent && snap.Seq <= lastSeq {
				continue
			}
			if err := s.writeSlots(snap); err != nil {
				s.logger.Debug("write failed", zap.Error(err), zap.Uint64("seq", snap.Seq))
				return ReasonWriteError
			}
			lastSeq, sent = snap.Seq, true

		case <-ping.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Debug("ping failed", zap.Error(err))
				return ReasonWriteError
			}
		}
	}
}

// readLoop only consumes control frames and detects the peer leaving; viewers send nothing useful.
func (s *Session) readLoop(done chan<- struct{}) {
	defer close(done)
	s.conn.SetReadLimit(4096)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.logger.Debug("read error", zap.Error(err))
			}
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	}
}

func (s *Session) writeSlots(snap parking.Snapshot) error {
	return s.writeJSON(snap.Slots)
}

func (s *Session) writeJSON(v any) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
	return s.conn.WriteJSON(v)
}

func (s *Session) closeWith(code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.opts.WriteWait))
}
