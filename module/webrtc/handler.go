package webrtc

import (
	"net/http"
	"time"

	"TeamSpace/middleware"
	midsec "TeamSpace/middleware/security"

	"github.com/gin-gonic/gin"
)

// TURNCredentials /webrtc/turn-credentials 响应体
type TURNCredentials struct {
	Username   string   `json:"username"`
	Credential string   `json:"credential"`
	TTL        int      `json:"ttl"`
	URIs       []string `json:"uris"`
}

// ICEServer RTCPeerConnection 的 iceServers 条目
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

type RTCConfiguration struct {
	ICEServers []ICEServer `json:"iceServers"`
}

// Handler 音视频连接引导接口, 只读。
type Handler struct {
	cfg Config
}

func NewHandler(cfg Config) *Handler {
	return &Handler{cfg: cfg.withDefaults()}
}

// RegisterRoutes 两个接口都要求登录态。
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	middleware.GET(r, "/webrtc/turn-credentials", h.HandleTURNCredentials, middleware.RouteOpt{IsAuth: true})
	middleware.GET(r, "/webrtc/ice-servers", h.HandleICEServers, middleware.RouteOpt{IsAuth: true})
}

// HandleTURNCredentials 给当前用户签发限时 TURN 凭据。
func (h *Handler) HandleTURNCredentials(c *gin.Context) {
	who, ok := midsec.Current(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Not authenticated"})
		return
	}
	if h.cfg.Secret == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"detail": "TURN server not configured. Set TURN_SECRET environment variable.",
		})
		return
	}

	username, credential := MintCredentials(who.Username, h.cfg.Secret, h.cfg.TTL, time.Now())
	c.JSON(http.StatusOK, TURNCredentials{
		Username:   username,
		Credential: credential,
		TTL:        h.cfg.TTL,
		URIs:       h.cfg.TURNURIs(),
	})
}

// HandleICEServers 返回完整 RTCConfiguration: STUN 永远有, TURN 配了才有。
func (h *Handler) HandleICEServers(c *gin.Context) {
	who, ok := midsec.Current(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Not authenticated"})
		return
	}

	servers := make([]ICEServer, 0, 2)
	if stun := h.cfg.STUNURLs(); len(stun) > 0 {
		servers = append(servers, ICEServer{URLs: stun})
	}
	if h.cfg.Secret != "" {
		username, credential := MintCredentials(who.Username, h.cfg.Secret, h.cfg.TTL, time.Now())
		servers = append(servers, ICEServer{
			URLs:       h.cfg.TURNURIs(),
			Username:   username,
			Credential: credential,
		})
	}
	c.JSON(http.StatusOK, RTCConfiguration{ICEServers: servers})
}
