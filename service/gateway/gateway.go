package gateway

import (
	"context"
	"time"

	"TeamSpace/logger"
	"TeamSpace/tools/safe"
)

// ===== 对外协作接口 =====
//
// 网关本体不直接碰数据库。身份校验、房间准入、消息持久化都经由
// 这些小接口进来, 由 main 装配具体实现, 单测时替换成假件。

type Identity struct {
	UserID   string
	Username string
}

// TokenVerifier 校验接入令牌, 换回用户身份
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (Identity, error)
}

// RoomAuthorizer 房间准入: 频道查存在+成员关系, 私聊查对端用户
type RoomAuthorizer interface {
	AuthorizeChannel(ctx context.Context, userID, channelID string) error
	AuthorizeDM(ctx context.Context, userID, otherUserID string) error
}

// StoredMessage 持久化之后的消息
type StoredMessage struct {
	ID          string
	Content     string
	SenderID    string
	SenderName  string
	RoomKey     string
	CreatedAt   time.Time
	IsAssistant bool
}

// MessageStore 消息存取
type MessageStore interface {
	SaveMessage(ctx context.Context, roomKey string, sender Identity, content string, fromAssistant bool) (StoredMessage, error)
	RecentMessages(ctx context.Context, roomKey string, limit int) ([]StoredMessage, error)
}

// AssistantResponder @AI 补全后端
type AssistantResponder interface {
	Completion(ctx context.Context, prompt, systemPrompt string) (string, error)
}

// PresenceMirror 跨实例在线状态镜像(redis), 全部 best-effort
type PresenceMirror interface {
	Online(ctx context.Context, userID string) error
	Offline(ctx context.Context, userID string) error
}

// ArchiveSink 消息归档旁路(kafka), 不在消息主链路上
type ArchiveSink interface {
	Archive(msg StoredMessage)
}

// ===== 网关 =====

type Options struct {
	GatewayID  string
	Verifier   TokenVerifier
	Authorizer RoomAuthorizer
	Store      MessageStore
	Assistant  AssistantResponder // nil 关闭 @AI
	Mirror     PresenceMirror     // nil 关闭在线镜像
	Archive    ArchiveSink        // nil 关闭归档
}

// Gateway 聚合注册表 / 房间索引 / 在线视图 / 扇出引擎, 并持有协作方。
type Gateway struct {
	id       string
	reg      *Registry
	rooms    *RoomIndex
	presence *Presence
	engine   *Engine

	verifier   TokenVerifier
	authorizer RoomAuthorizer
	store      MessageStore
	assistant  AssistantResponder
	mirror     PresenceMirror
	archive    ArchiveSink

	startedAt time.Time
}

func New(opts Options) *Gateway {
	safe.MustNotNil(opts.Verifier, "gateway verifier")
	safe.MustNotNil(opts.Authorizer, "gateway authorizer")
	safe.MustNotNil(opts.Store, "gateway message store")

	reg := NewRegistry()
	rooms := NewRoomIndex()
	g := &Gateway{
		id:         opts.GatewayID,
		reg:        reg,
		rooms:      rooms,
		presence:   NewPresence(reg, rooms),
		engine:     NewEngine(reg, rooms),
		verifier:   opts.Verifier,
		authorizer: opts.Authorizer,
		store:      opts.Store,
		assistant:  opts.Assistant,
		mirror:     opts.Mirror,
		archive:    opts.Archive,
		startedAt:  time.Now(),
	}
	g.engine.SetDropper(g.dropSlow)
	return g
}

func (g *Gateway) ID() string          { return g.id }
func (g *Gateway) Registry() *Registry { return g.reg }
func (g *Gateway) Rooms() *RoomIndex   { return g.rooms }
func (g *Gateway) Presence() *Presence { return g.presence }
func (g *Gateway) Engine() *Engine     { return g.engine }

// BroadcastChannelRaw 工作区事件桥入口: CRUD 侧发布的频道事件原样进房间
func (g *Gateway) BroadcastChannelRaw(channelID string, payload []byte) int {
	return g.engine.BroadcastRoomRaw(ChannelRoomKey(channelID), payload)
}

// ===== 拆除 =====

// teardown 连接的唯一收尾路径。读泵退出、写泵出错、慢消费者处置
// 都会走到这里; shutdown 的 CAS 保证离房/注销/user_left 只执行一轮。
func (g *Gateway) teardown(c *Conn, reason string) {
	if c == nil || !c.shutdown() {
		return
	}

	remaining, removed := g.rooms.Leave(c.RoomKey, c.ID)
	_, lastOfUser, _ := g.reg.Unregister(c.ID)

	if removed && len(remaining) > 0 {
		g.engine.PushConnIDs(remaining, NewUserLeftEvent(c.UserID, c.Username, c.RoomKey))
	}

	if lastOfUser && g.mirror != nil {
		userID := c.UserID
		safe.SafeGoName("presence-offline", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := g.mirror.Offline(ctx, userID); err != nil {
				logger.Warnf("[Gateway] presence offline %s: %v", userID, err)
			}
		})
	}

	logger.Infof("[Gateway] conn=%s user=%s room=%s closed: %s", c.ID, c.UserID, c.RoomKey, reason)
}

func (g *Gateway) dropSlow(c *Conn, reason string) {
	logger.Warnf("[Gateway] dropping slow consumer conn=%s user=%s: %s", c.ID, c.UserID, reason)
	g.teardown(c, reason)
}

// markOnline 注册后/心跳时刷新在线镜像
func (g *Gateway) markOnline(userID string) {
	if g.mirror == nil {
		return
	}
	safe.SafeGoName("presence-online", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := g.mirror.Online(ctx, userID); err != nil {
			logger.Warnf("[Gateway] presence online %s: %v", userID, err)
		}
	})
}

// ===== 运行信息 =====

type Stats struct {
	GatewayID string `json:"gateway_id"`
	Conns     int    `json:"conns"`
	Rooms     int    `json:"rooms"`
	UptimeSec int64  `json:"uptime_sec"`
}

func (g *Gateway) Stats() Stats {
	return Stats{
		GatewayID: g.id,
		Conns:     g.reg.Size(),
		Rooms:     g.rooms.RoomCount(),
		UptimeSec: int64(time.Since(g.startedAt).Seconds()),
	}
}
