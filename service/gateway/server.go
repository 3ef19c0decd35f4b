package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"TeamSpace/logger"
)

var upgraded = websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096, CheckOrigin: func(r *http.Request) bool { return true }}

// Server 把网关挂到 gin 上的接入层
type Server struct {
	g *Gateway
}

func NewServer(g *Gateway) *Server { return &Server{g: g} }

func (s *Server) Gateway() *Gateway { return s.g }

// RegisterRoutes 注册 websocket 与探活路由
func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws/channel/:channelID", s.HandleChannelWS)
	r.GET("/ws/dm/:otherUserID", s.HandleDMWS)
	r.GET("/health", s.HandleHealth)
	r.GET("/stats", s.HandleStats)
}

// HandleChannelWS ===== 频道 WebSocket 接入 =====
// GET /ws/channel/:channelID?token=xxx
func (s *Server) HandleChannelWS(c *gin.Context) {
	ws, err := upgraded.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// 常见：非 WebSocket 请求/握手失败
		logger.Infof("[HandleChannelWS] upgrade websocket error: %v", err)
		return
	}
	s.g.ServeChannel(ws, c.Query("token"), c.Param("channelID"))
}

// HandleDMWS ===== 私聊 WebSocket 接入 =====
// GET /ws/dm/:otherUserID?token=xxx
func (s *Server) HandleDMWS(c *gin.Context) {
	ws, err := upgraded.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[HandleDMWS] upgrade websocket error: %v", err)
		return
	}
	s.g.ServeDM(ws, c.Query("token"), c.Param("otherUserID"))
}

func (s *Server) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "gateway_id": s.g.ID()})
}

func (s *Server) HandleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.g.Stats())
}
