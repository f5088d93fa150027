package httpapi

import (
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"posture-monitor/internal/broadcast"
)

// serveViewer GET /ws：实时观看端，只推送不接收
func (s *Server) serveViewer(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn("Failed to accept websocket", zap.Error(err))
		return
	}

	id, done := s.deps.Hub.Register(broadcast.NewWebSocketConn(ws))

	// CloseRead 丢弃客户端消息，连接关闭时取消 ctx
	ctx := ws.CloseRead(r.Context())
	select {
	case <-ctx.Done():
		s.deps.Hub.Unregister(id)
		_ = ws.Close(websocket.StatusNormalClosure, "")
	case <-done:
		// hub 已丢弃并关闭该连接
	}
	s.logger.Debug("Viewer websocket closed", zap.String("conn_id", id), zap.String("remote", r.RemoteAddr))
}
