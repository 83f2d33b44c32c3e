package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"vab-bridge/metrics"
)

// inMessage is an inbound WebSocket message.
type inMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// outMessage is an outbound WebSocket message; Time is the average latency
// in milliseconds.
type outMessage struct {
	Type string `json:"type"`
	Time int64  `json:"time"`
	Data string `json:"data"`
}

// sendQueueSize bounds the outbound messages waiting for the writer.
const sendQueueSize = 256

// WebSocket serves the dispatcher to one peer at a time. Inbound messages are
// handled in order by the reading goroutine; outbound messages are queued to a
// separate writer, so an asynchronous result may be sent after the responses
// to newer messages.
type WebSocket struct {
	d         *Dispatcher
	serviceID string
	logger    *zap.Logger
	upgrader  websocket.Upgrader
	busy      atomic.Bool
}

// NewWebSocket creates the WebSocket transport for serviceID.
func NewWebSocket(d *Dispatcher, serviceID string) *WebSocket {
	return &WebSocket{
		d:         d,
		serviceID: serviceID,
		logger:    d.logger.Named("websocket"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
// A second peer is refused while one is connected.
func (ws *WebSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !ws.busy.CompareAndSwap(false, true) {
		http.Error(w, "connection already in use", http.StatusConflict)
		return
	}
	defer ws.busy.Store(false)

	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Warn("upgrade failed", zap.Error(err))
		return
	}
	ws.serve(r.Context(), conn)
}

type wsEmitter struct {
	out  chan<- outMessage
	done <-chan struct{}
}

func (e *wsEmitter) Emit(typeTag string, avgMillis int64, payload string) error {
	select {
	case e.out <- outMessage{Type: typeTag, Time: avgMillis, Data: payload}:
		return nil
	case <-e.done:
		return ErrNoEmitter
	}
}

// jsonConn is the part of *websocket.Conn the writer uses.
type jsonConn interface {
	WriteJSON(v any) error
	Close() error
}

// writeLoop sends queued messages until done closes, then writes whatever is
// still queued before returning.
func (ws *WebSocket) writeLoop(conn jsonConn, out <-chan outMessage, done <-chan struct{}) {
	write := func(msg outMessage) bool {
		if err := conn.WriteJSON(msg); err != nil {
			ws.logger.Warn("write failed", zap.String("type", msg.Type), zap.Error(err))
			conn.Close()
			return false
		}
		return true
	}
	for {
		select {
		case msg := <-out:
			if !write(msg) {
				return
			}
		case <-done:
			for {
				select {
				case msg := <-out:
					if !write(msg) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (ws *WebSocket) serve(ctx context.Context, conn *websocket.Conn) {
	out := make(chan outMessage, sendQueueSize)
	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		ws.writeLoop(conn, out, done)
	}()

	ws.d.SetEmitter(&wsEmitter{out: out, done: done})
	ws.d.AttachServices()
	ws.logger.Info("peer connected", zap.String("remote", conn.RemoteAddr().String()))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				ws.logger.Warn("read failed", zap.Error(err))
			}
			break
		}
		var msg inMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			ws.logger.Warn("malformed message dropped", zap.Error(err))
			metrics.RecordDispatch("unknown", metrics.OutcomeDecodeError)
			continue
		}
		if msg.Type == "" {
			ws.logger.Warn("message without type dropped")
			continue
		}
		ws.d.Dispatch(ctx, ws.serviceID, msg.Type, payloadText(msg.Data))
	}

	ws.d.SetEmitter(nil)
	close(done)
	wg.Wait()
	conn.Close()
	ws.logger.Info("peer disconnected")
}

// payloadText returns a JSON string value unquoted and any other JSON value
// as its text.
func payloadText(data json.RawMessage) string {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}
	return string(data)
}
