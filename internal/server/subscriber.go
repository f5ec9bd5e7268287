package server

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"les02bridge/internal/hub"
)

// ErrSubscriberClosed is returned by Send after the connection is gone.
var ErrSubscriberClosed = errors.New("server: subscriber closed")

// maxInboundMessage bounds what a subscriber may send us. Inbound commands
// are reserved by the protocol and currently discarded.
const maxInboundMessage = 4096

// WSSubscriber is a WebSocket connection registered with the hub.
type WSSubscriber struct {
	id           string
	conn         *websocket.Conn
	outbox       chan hub.Message
	writeTimeout time.Duration
	log          *zap.Logger

	closed    chan struct{}
	closeOnce sync.Once
}

func newWSSubscriber(conn *websocket.Conn, outboxSize int, writeTimeout time.Duration, log *zap.Logger) *WSSubscriber {
	id := uuid.NewString()
	return &WSSubscriber{
		id:           id,
		conn:         conn,
		outbox:       make(chan hub.Message, outboxSize),
		writeTimeout: writeTimeout,
		log:          log.With(zap.String("subscriber", id), zap.String("remote", conn.RemoteAddr().String())),
		closed:       make(chan struct{}),
	}
}

func (s *WSSubscriber) ID() string { return s.id }

// Send queues m for the write pump. A full outbox means the peer is not
// keeping up and yields hub.ErrSlowSubscriber.
func (s *WSSubscriber) Send(m hub.Message) error {
	select {
	case <-s.closed:
		return ErrSubscriberClosed
	default:
	}

	select {
	case s.outbox <- m:
		return nil
	default:
		return hub.ErrSlowSubscriber
	}
}

// Close stops the write pump, which sends a close frame and releases the
// connection. Safe to call more than once.
func (s *WSSubscriber) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// writePump is the only goroutine writing to conn. After Close it flushes
// whatever is already queued, then sends the close frame.
func (s *WSSubscriber) writePump() {
	defer s.conn.Close()

	for {
		select {
		case m := <-s.outbox:
			if !s.write(m) {
				return
			}

		case <-s.closed:
			if !s.flush() {
				return
			}
			deadline := time.Now().Add(s.writeTimeout)
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), deadline)
			return
		}
	}
}

// flush writes queued messages without waiting for more.
func (s *WSSubscriber) flush() bool {
	for {
		select {
		case m := <-s.outbox:
			if !s.write(m) {
				return false
			}
		default:
			return true
		}
	}
}

func (s *WSSubscriber) write(m hub.Message) bool {
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := s.conn.WriteMessage(m.Type, m.Data); err != nil {
		s.log.Debug("write failed", zap.Error(err))
		s.Close()
		return false
	}
	return true
}

// readPump drains inbound frames so control messages are processed and a
// closed transport is noticed, then unregisters the subscriber.
func (s *WSSubscriber) readPump(h *hub.Hub) {
	defer h.Unregister(s)

	s.conn.SetReadLimit(maxInboundMessage)
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("connection closed", zap.Error(err))
			}
			return
		}
	}
}
