package session

import (
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Channel 会话的底层传输通道。Session只依赖这个接口，
// 测试时可以用进程内实现替换WebSocket。
type Channel interface {
	// Recv 阻塞读取下一条文本消息。对端正常断开时返回ErrChannelClosed。
	Recv() (string, error)
	// Send 发送一条文本消息
	Send(message string) error
	// Close 关闭通道，可重复调用
	Close() error
}

// wsChannel gorilla连接的Channel适配
type wsChannel struct {
	conn         *websocket.Conn
	writeMutex   sync.Mutex
	writeTimeout time.Duration
	closeOnce    sync.Once
	closed       chan struct{}
}

// NewWSChannel 包装一条已升级的WebSocket连接
func NewWSChannel(conn *websocket.Conn, writeTimeout time.Duration) Channel {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &wsChannel{
		conn:         conn,
		writeTimeout: writeTimeout,
		closed:       make(chan struct{}),
	}
}

// Recv 读取下一条消息
func (c *wsChannel) Recv() (string, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		select {
		case <-c.closed:
			// 本地已关闭，读取错误不再向上传播细节
			return "", ErrChannelClosed
		default:
		}
		if websocket.IsCloseError(err,
			websocket.CloseNormalClosure,
			websocket.CloseGoingAway,
			websocket.CloseNoStatusReceived,
			websocket.CloseAbnormalClosure) {
			return "", ErrChannelClosed
		}
		if strings.Contains(err.Error(), "use of closed network connection") {
			return "", ErrChannelClosed
		}
		return "", err
	}
	return string(data), nil
}

// Send 发送消息。gorilla的写操作不允许并发，串行化由writeMutex保证。
func (c *wsChannel) Send(message string) error {
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()

	select {
	case <-c.closed:
		return ErrChannelClosed
	default:
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, []byte(message))
}

// Close 发送关闭帧后关闭底层连接
func (c *wsChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)

		c.writeMutex.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMutex.Unlock()

		c.conn.Close()
	})
	return nil
}
