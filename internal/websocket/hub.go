// Package websocket рассылает клиентам изменения статуса задач конвертации.
package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Krimson/gnss-quality/internal/logging"
	"github.com/Krimson/gnss-quality/internal/metrics"
	"github.com/Krimson/gnss-quality/internal/task"
)

const (
	sendBuffer = 16
	writeWait  = 10 * time.Second
)

// Hub подписки клиентов на задачи
type Hub struct {
	// task id -> подписчики
	subscribers map[string]map[*Client]struct{}

	join  chan *Client
	leave chan *Client
	// События для рассылки подписчикам задачи
	events chan envelope

	// закрывается при остановке Run
	done chan struct{}

	mu  sync.RWMutex
	log zerolog.Logger
}

// Client подписчик одной задачи
type Client struct {
	hub    *Hub
	ws     *websocket.Conn
	outbox chan []byte
	taskID string
}

type envelope struct {
	taskID  string
	payload []byte
}

var upgrader = websocket.Upgrader{
	// фронтенд обслуживается с другого origin
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub создает Hub, рассылка начинается после Run
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[*Client]struct{}),
		join:        make(chan *Client),
		leave:       make(chan *Client),
		events:      make(chan envelope, 64),
		done:        make(chan struct{}),
		log:         logging.Component("websocket"),
	}
}

// Run обслуживает подписки и рассылку до отмены ctx
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for _, clients := range h.subscribers {
				for c := range clients {
					h.drop(c)
				}
			}
			h.mu.Unlock()
			return

		case c := <-h.join:
			h.mu.Lock()
			clients, ok := h.subscribers[c.taskID]
			if !ok {
				clients = make(map[*Client]struct{})
				h.subscribers[c.taskID] = clients
			}
			clients[c] = struct{}{}
			h.mu.Unlock()
			metrics.WebSocketClients.Inc()
			h.log.Debug().Str("task_id", c.taskID).Msg("Client subscribed")

		case c := <-h.leave:
			h.mu.Lock()
			h.drop(c)
			h.mu.Unlock()
			h.log.Debug().Str("task_id", c.taskID).Msg("Client unsubscribed")

		case ev := <-h.events:
			h.mu.Lock()
			for c := range h.subscribers[ev.taskID] {
				select {
				case c.outbox <- ev.payload:
				default:
					// клиент не успевает читать
					h.drop(c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// drop вызывается под h.mu
func (h *Hub) drop(c *Client) {
	clients, ok := h.subscribers[c.taskID]
	if !ok {
		return
	}
	if _, ok := clients[c]; !ok {
		return
	}

	delete(clients, c)
	if len(clients) == 0 {
		delete(h.subscribers, c.taskID)
	}
	close(c.outbox)
	metrics.WebSocketClients.Dec()
}

// Notify реализует task.Notifier
func (h *Hub) Notify(event task.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to marshal task event")
		return
	}

	select {
	case h.events <- envelope{taskID: event.TaskID, payload: payload}:
	default:
		h.log.Warn().Str("task_id", event.TaskID).Msg("Event queue full, dropping event")
	}
}

// ClientCount число подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, clients := range h.subscribers {
		n += len(clients)
	}
	return n
}

// Serve переводит запрос в WebSocket и подписывает клиента на задачу.
// initial отправляется сразу после подключения, если задан.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, taskID string, initial *task.Event) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Str("task_id", taskID).Msg("Failed to upgrade connection")
		return
	}

	c := &Client{
		hub:    h,
		ws:     ws,
		outbox: make(chan []byte, sendBuffer),
		taskID: taskID,
	}
	if initial != nil {
		if payload, err := json.Marshal(initial); err == nil {
			c.outbox <- payload
		}
	}

	select {
	case h.join <- c:
	case <-h.done:
		ws.Close()
		return
	}

	go c.writeLoop()
	go c.readLoop()
}

// readLoop держит соединение до закрытия клиентом, входящие сообщения игнорируются
func (c *Client) readLoop() {
	defer func() {
		select {
		case c.hub.leave <- c:
		case <-c.hub.done:
		}
		c.ws.Close()
	}()

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn().Err(err).Str("task_id", c.taskID).Msg("WebSocket error")
			}
			return
		}
	}
}

func (c *Client) writeLoop() {
	defer c.ws.Close()

	for payload := range c.outbox {
		c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
			c.hub.log.Warn().Err(err).Str("task_id", c.taskID).Msg("Failed to write message")
			return
		}
	}

	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
