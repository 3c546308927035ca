// internal/bridge/hub.go
package bridge

import (
	"context"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/jason-s-yu/turnsync/internal/middleware"
	"github.com/jason-s-yu/turnsync/internal/models"
	"github.com/jason-s-yu/turnsync/internal/session"
	"github.com/sirupsen/logrus"
)

// Subprotocol is the WebSocket subprotocol UIs must request.
const Subprotocol = "turnsync"

// BadSubprotocolError closes connections that did not negotiate Subprotocol.
const BadSubprotocolError = 3000

// Commander receives the local player's inputs. *session.Session implements it.
type Commander interface {
	Submit(value int)
	AnswerQuestion(correct bool)
	SubmitProgress(p models.QuizProgress)
	Leave()
	AckRanking()
}

// sticky lists the message types a UI needs to redraw after connecting,
// in the order they are replayed.
var sticky = []string{"turn", "ranking", "question", "match_ended", "leave"}

// connection is one connected UI.
type connection struct {
	ID      uuid.UUID
	OutChan chan map[string]interface{}
	log     *logrus.Entry
}

// Write pushes a message onto OutChan without blocking. A full channel
// drops the message.
func (c *connection) Write(msg map[string]interface{}) {
	select {
	case c.OutChan <- msg:
	default:
		msgType, _ := msg["type"].(string)
		c.log.WithField("type", msgType).Warn("OutChan full, dropped message")
	}
}

func (c *connection) WriteError(msg string) {
	c.Write(map[string]interface{}{
		"type":    "error",
		"message": msg,
	})
}

// Hub fans session output out to every connected UI and feeds their
// inputs back to the session. It implements session.Presenter and
// session.Navigator.
type Hub struct {
	logger *logrus.Logger

	mu    sync.Mutex
	conns map[uuid.UUID]*connection
	last  map[string]map[string]interface{}
	cmd   Commander

	leaveOnce sync.Once
	done      chan struct{}
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		logger: logger,
		conns:  make(map[uuid.UUID]*connection),
		last:   make(map[string]map[string]interface{}),
		done:   make(chan struct{}),
	}
}

// Attach routes inbound messages to cmd.
func (h *Hub) Attach(cmd Commander) {
	h.mu.Lock()
	h.cmd = cmd
	h.mu.Unlock()
}

// Done is closed once the session has navigated away.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Connections reports how many UIs are connected.
func (h *Hub) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) broadcast(msg map[string]interface{}) {
	typ, _ := msg["type"].(string)
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range sticky {
		if s == typ {
			h.last[typ] = msg
		}
	}
	// A question is answered before the turn moves on.
	if typ == "turn" || typ == "match_ended" {
		delete(h.last, "question")
	}
	for _, c := range h.conns {
		c.Write(msg)
	}
}

func (h *Hub) ReplayStep(step session.ReplayStep) {
	h.broadcast(map[string]interface{}{"type": "replay_step", "step": step})
}

func (h *Hub) TurnChanged(state session.TurnState) {
	h.broadcast(map[string]interface{}{"type": "turn", "state": state.String()})
}

func (h *Hub) PlayerLeft(username string) {
	h.broadcast(map[string]interface{}{"type": "player_left", "username": username})
}

func (h *Hub) PromptQuestion(position int) {
	h.broadcast(map[string]interface{}{"type": "question", "position": position})
}

func (h *Hub) RankingChanged(ranking []models.RankingEntry) {
	h.broadcast(map[string]interface{}{"type": "ranking", "ranking": ranking})
}

func (h *Hub) MatchEnded(winner string, ranking []models.RankingEntry) {
	h.broadcast(map[string]interface{}{"type": "match_ended", "winner": winner, "ranking": ranking})
}

func (h *Hub) Notice(msg string) {
	h.broadcast(map[string]interface{}{"type": "notice", "message": msg})
}

// Leave tells every UI the session is over and closes Done.
func (h *Hub) Leave(reason string, err error) {
	msg := map[string]interface{}{"type": "leave", "reason": reason}
	if err != nil {
		msg["error"] = err.Error()
	}
	h.broadcast(msg)
	h.leaveOnce.Do(func() { close(h.done) })
}

func (h *Hub) add(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.ID] = c
	c.Write(map[string]interface{}{"type": "hello", "id": c.ID.String()})
	for _, typ := range sticky {
		if msg, ok := h.last[typ]; ok {
			c.Write(msg)
		}
	}
}

func (h *Hub) remove(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c.ID]; !ok {
		return
	}
	delete(h.conns, c.ID)
	close(c.OutChan)
}

// Handler upgrades UI connections.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{Subprotocol},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			h.logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != Subprotocol {
			c.Close(BadSubprotocolError, "client must speak the turnsync subprotocol")
			return
		}

		id := uuid.New()
		conn := &connection{
			ID:      id,
			OutChan: make(chan map[string]interface{}, 32),
			log:     h.logger.WithField("conn", id),
		}
		middleware.LogWebSocketConnect(h.logger, r.RemoteAddr, r.URL.Path)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		h.add(conn)
		go h.writePump(ctx, c, conn)

		err = h.readPump(ctx, c, conn)
		h.remove(conn)
		middleware.LogWebSocketDisconnect(h.logger, r.RemoteAddr, r.URL.Path, err)
		c.Close(websocket.StatusNormalClosure, "")
	}
}

func (h *Hub) writePump(ctx context.Context, c *websocket.Conn, conn *connection) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-conn.OutChan:
			if !ok {
				return
			}
			if err := wsjson.Write(ctx, c, msg); err != nil {
				conn.log.WithError(err).Debug("write failed")
				return
			}
		}
	}
}

func (h *Hub) readPump(ctx context.Context, c *websocket.Conn, conn *connection) error {
	for {
		var packet map[string]interface{}
		if err := wsjson.Read(ctx, c, &packet); err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return nil
			}
			return err
		}
		h.handleMessage(packet, conn)
	}
}

// handleMessage interprets the "type" field of a UI message.
func (h *Hub) handleMessage(packet map[string]interface{}, conn *connection) {
	h.mu.Lock()
	cmd := h.cmd
	h.mu.Unlock()
	if cmd == nil {
		conn.WriteError("session not ready")
		return
	}

	action, _ := packet["type"].(string)
	switch action {
	case "roll", "submit":
		v, ok := packet["value"].(float64)
		if !ok {
			conn.WriteError("value must be a number")
			return
		}
		cmd.Submit(int(v))
	case "pass":
		cmd.Submit(0)
	case "answer":
		correct, ok := packet["correct"].(bool)
		if !ok {
			conn.WriteError("correct must be a boolean")
			return
		}
		cmd.AnswerQuestion(correct)
	case "progress":
		cmd.SubmitProgress(models.QuizProgress{
			Answered: intField(packet, "answered"),
			Score:    intField(packet, "score"),
			Time:     intField(packet, "time"),
		})
	case "leave":
		cmd.Leave()
	case "ack_ranking":
		cmd.AckRanking()
	default:
		conn.log.WithField("type", action).Warn("unknown message type")
		conn.WriteError("unknown message type")
	}
}

func intField(packet map[string]interface{}, key string) int {
	v, _ := packet[key].(float64)
	return int(v)
}
