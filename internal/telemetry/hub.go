package telemetry

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"sniper/internal/logger"
)

const (
	writeWait      = 5 * time.Second
	clientBuffer   = 32
	maxInboundSize = 1 << 20
)

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub раздает телеметрию подключенным websocket-клиентам.
// Медленный клиент теряет сообщения, но не тормозит остальных.
type Hub struct {
	mu        sync.RWMutex
	clients   map[*hubClient]struct{}
	upgrader  websocket.Upgrader
	onMessage func(data []byte)
	logger    *logger.LoggerManager

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// NewHub создает хаб
func NewHub(loggerManager *logger.LoggerManager) *Hub {
	if loggerManager == nil {
		loggerManager = logger.Discard()
	}
	return &Hub{
		clients: make(map[*hubClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			// локальный инструмент, браузер открывает страницу с другого порта
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: loggerManager,
	}
}

// OnMessage задает обработчик входящих сообщений клиентов
func (h *Hub) OnMessage(fn func(data []byte)) {
	h.mu.Lock()
	h.onMessage = fn
	h.mu.Unlock()
}

// Clients число подключенных клиентов
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats отправленные и отброшенные сообщения
func (h *Hub) Stats() (sent, dropped uint64) {
	return h.sent.Load(), h.dropped.Load()
}

// ServeHTTP принимает websocket-подключение
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("⚠️ websocket upgrade: %v", err)
		return
	}
	c := &hubClient{conn: conn, send: make(chan []byte, clientBuffer)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("🔌 клиент телеметрии подключен: %s (всего: %d)", r.RemoteAddr, total)

	go h.writePump(c)
	h.readPump(c)

	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	total = len(h.clients)
	h.mu.Unlock()
	h.logger.Info("🔌 клиент телеметрии отключен: %s (всего: %d)", r.RemoteAddr, total)
}

func (h *Hub) readPump(c *hubClient) {
	c.conn.SetReadLimit(maxInboundSize)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		h.mu.RLock()
		fn := h.onMessage
		h.mu.RUnlock()
		if fn != nil {
			fn(data)
		}
	}
}

func (h *Hub) writePump(c *hubClient) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
		h.sent.Add(1)
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

// Send реализует Sink: сообщение кодируется один раз и ставится в очередь каждому клиенту
func (h *Hub) Send(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// Close отключает всех клиентов
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
