package dashboard

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/charging-platform/csms-gateway/internal/eventbus"
	"github.com/charging-platform/csms-gateway/internal/logger"
	"github.com/charging-platform/csms-gateway/internal/metrics"
)

// Fanout 把事件总线上的全部事件推送给前端WebSocket客户端。
// 推送失败即移除客户端（fail-fast），不做排队或重试。
type Fanout struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	logger  *logger.Logger
}

// client 一条前端连接。gorilla写操作需要串行化。
type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewFanout 创建fan-out并订阅所有topic
func NewFanout(bus *eventbus.Bus, log *logger.Logger) *Fanout {
	if log == nil {
		log = logger.Default()
	}
	f := &Fanout{
		clients: make(map[*client]struct{}),
		logger:  log,
	}
	bus.SubscribeAll(f.broadcast)
	return f
}

// Handle 接管一条已升级的前端连接，阻塞到连接关闭。
// 入站消息被丢弃，前端通道是单向推送。
func (f *Fanout) Handle(conn *websocket.Conn) {
	c := &client{conn: conn}

	f.mu.Lock()
	f.clients[c] = struct{}{}
	total := len(f.clients)
	f.mu.Unlock()

	metrics.DashboardClients.Inc()
	f.logger.Infof("dashboard client connected (%d total)", total)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	f.remove(c)
}

// ClientCount 当前客户端数量（测试用）
func (f *Fanout) ClientCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// pushEnvelope 推送给前端的事件封套
type pushEnvelope struct {
	Event         string                 `json:"event"`
	ChargePointID string                 `json:"charge_point_id"`
	OCPPVersion   string                 `json:"ocpp_version"`
	Payload       map[string]interface{} `json:"payload"`
}

// broadcast 序列化一次，推送给所有客户端
func (f *Fanout) broadcast(event eventbus.Event) error {
	data, err := json.Marshal(pushEnvelope{
		Event:         event.Topic,
		ChargePointID: event.ChargePointID,
		OCPPVersion:   event.OCPPVersion,
		Payload:       event.Payload,
	})
	if err != nil {
		return err
	}

	f.mu.Lock()
	targets := make([]*client, 0, len(f.clients))
	for c := range f.clients {
		targets = append(targets, c)
	}
	f.mu.Unlock()

	for _, c := range targets {
		if err := c.send(data); err != nil {
			f.logger.Warnf("dashboard push failed, dropping client: %v", err)
			f.remove(c)
		}
	}
	return nil
}

// send 带写截止时间的单条推送
func (c *client) send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// remove 移除并关闭客户端，可重复调用
func (f *Fanout) remove(c *client) {
	f.mu.Lock()
	_, exists := f.clients[c]
	if exists {
		delete(f.clients, c)
	}
	remaining := len(f.clients)
	f.mu.Unlock()

	if !exists {
		return
	}
	c.conn.Close()
	metrics.DashboardClients.Dec()
	f.logger.Infof("dashboard client disconnected (%d remaining)", remaining)
}
