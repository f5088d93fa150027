package broadcast

import (
	"context"

	"github.com/coder/websocket"
)

// WebSocketConn coder/websocket 连接适配
type WebSocketConn struct {
	ws *websocket.Conn
}

func NewWebSocketConn(ws *websocket.Conn) *WebSocketConn {
	return &WebSocketConn{ws: ws}
}

func (c *WebSocketConn) Write(ctx context.Context, data []byte) error {
	return c.ws.Write(ctx, websocket.MessageText, data)
}

func (c *WebSocketConn) Close() error {
	return c.ws.Close(websocket.StatusGoingAway, "viewer dropped")
}
