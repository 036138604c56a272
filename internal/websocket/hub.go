package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tempmail/portal/internal/auth/jwt"
	"tempmail/portal/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// upgraderFactory 创建带有 Origin 验证的 WebSocket 升级器
func upgraderFactory(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			for _, origin := range allowedOrigins {
				if origin == "*" {
					return true
				}
			}

			requestOrigin := r.Header.Get("Origin")
			if requestOrigin == "" {
				// 同源请求没有 Origin 头
				return true
			}
			for _, origin := range allowedOrigins {
				if requestOrigin == origin {
					return true
				}
			}
			return false
		},
	}
}

// MessageType 定义 WebSocket 消息类型
type MessageType string

const (
	MessageTypeInboxUpdate MessageType = "inbox_update"
	MessageTypePing        MessageType = "ping"
	MessageTypeError       MessageType = "error"
)

// Message 定义 WebSocket 消息结构
type Message struct {
	Type      MessageType     `json:"type"`
	Address   string          `json:"address,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// InboxUpdateData 收件箱更新通知数据
type InboxUpdateData struct {
	Address  string                  `json:"address"`
	Messages []domain.MessageSummary `json:"messages"`
	Count    int                     `json:"count"`
}

// Client 代表一个 WebSocket 客户端连接
type Client struct {
	ID     string
	UserID string
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
}

// Hub 管理所有 WebSocket 连接，按用户分组推送收件箱更新。
type Hub struct {
	clients        map[string]*Client            // clientID -> Client
	byUser         map[string]map[string]*Client // userID -> clientID -> Client
	register       chan *Client
	unregister     chan *Client
	done           chan struct{} // Run 退出后关闭，解除注册阻塞
	mu             sync.RWMutex
	log            *zap.Logger
	allowedOrigins []string
	jwtManager     *jwt.Manager
	onClientCount  func(int)
}

// NewHub 创建 WebSocket Hub。
func NewHub(allowedOrigins []string, jwtManager *jwt.Manager, log *zap.Logger) *Hub {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return &Hub{
		clients:        make(map[string]*Client),
		byUser:         make(map[string]map[string]*Client),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		done:           make(chan struct{}),
		log:            log,
		allowedOrigins: allowedOrigins,
		jwtManager:     jwtManager,
	}
}

// SetClientCountFunc 注册连接数变化回调，用于上报监控指标。
// 必须在 Run 之前调用。
func (h *Hub) SetClientCountFunc(fn func(int)) {
	h.onClientCount = fn
}

// Run 启动 Hub，随 ctx 取消时关闭全部连接。
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info("websocket hub stopped")
			close(h.done)
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			if _, ok := h.byUser[client.UserID]; !ok {
				h.byUser[client.UserID] = make(map[string]*Client)
			}
			h.byUser[client.UserID][client.ID] = client
			count := len(h.clients)
			h.mu.Unlock()
			h.reportClientCount(count)
			h.log.Debug("websocket client registered",
				zap.String("id", client.ID),
				zap.String("user_id", client.UserID),
			)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				if clients, ok := h.byUser[client.UserID]; ok {
					delete(clients, client.ID)
					if len(clients) == 0 {
						delete(h.byUser, client.UserID)
					}
				}
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.reportClientCount(count)

		case <-ticker.C:
			h.pingAllClients()
		}
	}
}

// NotifyInbox 向用户的所有连接推送收件箱更新。没有连接时直接返回。
func (h *Hub) NotifyInbox(userID, address string, messages []domain.MessageSummary) {
	data, err := json.Marshal(InboxUpdateData{
		Address:  address,
		Messages: messages,
		Count:    len(messages),
	})
	if err != nil {
		return
	}

	payload, err := json.Marshal(Message{
		Type:      MessageTypeInboxUpdate,
		Address:   address,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.byUser[userID] {
		select {
		case client.send <- payload:
		default:
			// 发送缓冲满说明客户端已僵死，跳过
		}
	}
}

// HandleConnection 处理 WebSocket 升级请求。
// 令牌通过 ?token= 查询参数传入，由外部认证服务签发。
func (h *Hub) HandleConnection(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
		return
	}

	claims, err := h.jwtManager.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	upgrader := upgraderFactory(h.allowedOrigins)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		ID:     uuid.NewString(),
		UserID: claims.Subject,
		conn:   conn,
		send:   make(chan []byte, 64),
		hub:    h,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (h *Hub) reportClientCount(count int) {
	if h.onClientCount != nil {
		h.onClientCount(count)
	}
}

func (h *Hub) pingAllClients() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.send <- nil: // nil 载荷由 writePump 转成 ping 帧
		default:
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		// 关闭 send 让 writePump 退出；readPump 在连接关闭后经 done 退出
		close(client.send)
		client.conn.Close()
		delete(h.clients, id)
	}
	h.byUser = make(map[string]map[string]*Client)
}

// writePump 把 send 通道里的消息写入连接，带写超时。
func (c *Client) writePump() {
	defer c.conn.Close()

	for payload := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if payload == nil {
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
	// send 被关闭，发送关闭帧
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, nil)
}

// readPump 消费客户端消息以驱动 pong 处理，连接断开时注销。
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
