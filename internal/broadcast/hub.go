package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Conn 实时观看端连接
type Conn interface {
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Observer 连接数与丢弃事件的观测钩子（metrics 实现）
type Observer interface {
	ViewerConnected()
	ViewerDisconnected()
	BroadcastDropped(reason string)
}

type nopObserver struct{}

func (nopObserver) ViewerConnected()        {}
func (nopObserver) ViewerDisconnected()     {}
func (nopObserver) BroadcastDropped(string) {}

// 连接被移除的原因
const (
	DropQueueFull   = "queue_full"
	DropWriteFailed = "write_failed"
)

// HubConfig 广播中心配置
type HubConfig struct {
	QueueSize    int           // 每个连接的待发送队列长度
	WriteTimeout time.Duration // 单条消息写超时
}

// Hub 当前在线观看端的注册表
// 每个连接有独立的有界队列和写协程，慢连接或写失败只影响自身。
type Hub struct {
	mu       sync.Mutex
	clients  map[string]*client
	config   HubConfig
	observer Observer
	logger   *zap.Logger
	wg       sync.WaitGroup
}

type client struct {
	id   string
	conn Conn
	send chan []byte
	stop chan struct{}
	once sync.Once
}

// NewHub 创建广播中心；observer 可为 nil
func NewHub(cfg HubConfig, observer Observer, logger *zap.Logger) *Hub {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Hub{
		clients:  make(map[string]*client),
		config:   cfg,
		observer: observer,
		logger:   logger,
	}
}

// Register 注册连接并启动写协程；返回连接 ID 和连接被移除时关闭的 done 通道
func (h *Hub) Register(conn Conn) (string, <-chan struct{}) {
	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, h.config.QueueSize),
		stop: make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	h.observer.ViewerConnected()
	h.wg.Add(1)
	go h.writeLoop(c)

	h.logger.Debug("Viewer connected", zap.String("conn_id", c.id))
	return c.id, c.stop
}

// Unregister 移除连接（调用方负责关闭底层连接）
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	h.mu.Unlock()

	if ok {
		h.shutdown(c, false)
	}
}

// Count 在线连接数
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast 把消息放入所有连接的发送队列，返回入队数量
// 队列已满的连接被移除并关闭，不阻塞其他连接。
func (h *Hub) Broadcast(msg []byte) int {
	var dropped []*client
	delivered := 0

	h.mu.Lock()
	for id, c := range h.clients {
		select {
		case c.send <- msg:
			delivered++
		default:
			delete(h.clients, id)
			dropped = append(dropped, c)
		}
	}
	h.mu.Unlock()

	for _, c := range dropped {
		h.logger.Warn("Dropping slow viewer", zap.String("conn_id", c.id))
		h.observer.BroadcastDropped(DropQueueFull)
		h.shutdown(c, true)
	}
	return delivered
}

// BroadcastJSON 序列化后广播
func (h *Hub) BroadcastJSON(v any) (int, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal broadcast payload: %w", err)
	}
	return h.Broadcast(data), nil
}

// Close 关闭所有连接并等待写协程退出
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for id, c := range h.clients {
		clients = append(clients, c)
		delete(h.clients, id)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.shutdown(c, true)
	}
	h.wg.Wait()
}

func (h *Hub) writeLoop(c *client) {
	defer h.wg.Done()
	for {
		select {
		case <-c.stop:
			return
		case msg := <-c.send:
			ctx, cancel := context.WithTimeout(context.Background(), h.config.WriteTimeout)
			err := c.conn.Write(ctx, msg)
			cancel()
			if err != nil {
				h.logger.Warn("Viewer write failed, dropping connection",
					zap.String("conn_id", c.id),
					zap.Error(err),
				)
				h.observer.BroadcastDropped(DropWriteFailed)
				h.mu.Lock()
				delete(h.clients, c.id)
				h.mu.Unlock()
				h.shutdown(c, true)
				return
			}
		}
	}
}

// shutdown 幂等：停止写协程，closeConn 时关闭底层连接
func (h *Hub) shutdown(c *client, closeConn bool) {
	c.once.Do(func() {
		close(c.stop)
		h.observer.ViewerDisconnected()
		if closeConn {
			if err := c.conn.Close(); err != nil {
				h.logger.Debug("Failed to close viewer", zap.String("conn_id", c.id), zap.Error(err))
			}
		}
	})
}
