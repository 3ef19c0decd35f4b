package gateway

import (
	"errors"
	"net"
	"sync"
	"time"

	"TeamSpace/tools/errs"
)

// ===== 连接记录 =====

// 每连接发送队列长度。排满说明消费端太慢, 直接判定慢消费者。
const sendQueueSize = 256

var errConnClosing = errors.New("conn is closing")

// Conn 一条活跃 websocket 连接在注册表中的记录。
// 套接字本体由会话协程独占, 其他组件只通过 enqueue 往它的发送队列投递。
type Conn struct {
	ID       string
	UserID   string
	Username string
	RoomKey  string // 本连接加入的唯一房间
	Remote   net.Addr

	CreatedAt time.Time
	Heartbeat time.Time // 最近一次 pong, 由 Registry.Touch 刷新

	sendCh    chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newConn(id, userID, username, roomKey string, remote net.Addr) *Conn {
	now := time.Now()
	return &Conn{
		ID:        id,
		UserID:    userID,
		Username:  username,
		RoomKey:   roomKey,
		Remote:    remote,
		CreatedAt: now,
		Heartbeat: now,
		sendCh:    make(chan []byte, sendQueueSize),
		done:      make(chan struct{}),
	}
}

// shutdown 把连接切入拆除态。并发调用安全, 只有第一个调用者得到 true,
// user_left 等一次性收尾动作由赢家执行。
func (c *Conn) shutdown() bool {
	won := false
	c.closeOnce.Do(func() {
		close(c.done)
		won = true
	})
	return won
}

func (c *Conn) closing() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// enqueue 非阻塞投递。拆除中的连接投递算软失败, 队列打满返回 ErrSendBufferFull。
func (c *Conn) enqueue(data []byte) error {
	if c.closing() {
		return errConnClosing
	}
	select {
	case c.sendCh <- data:
		return nil
	case <-c.done:
		return errConnClosing
	default:
		return errs.ErrSendBufferFull.WithDetail(c.ID).Wrap()
	}
}

// ===== 注册表 =====

// Registry 活跃连接总表。主索引 byID, 辅助索引 byUser 支撑同一用户多端在线。
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*Conn
	byUser map[string]map[string]*Conn
}

func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[string]*Conn),
		byUser: make(map[string]map[string]*Conn),
	}
}

// Register 登记连接。重复的连接ID报错; first=true 表示该用户由离线转为在线。
func (r *Registry) Register(c *Conn) (first bool, err error) {
	if c == nil || c.ID == "" || c.UserID == "" {
		return false, errs.ErrArgs.WrapMsg("conn/id/user empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[c.ID]; exists {
		return false, errs.ErrDuplicateConn.WithDetail(c.ID).Wrap()
	}
	r.byID[c.ID] = c

	mm := r.byUser[c.UserID]
	if mm == nil {
		mm = make(map[string]*Conn)
		r.byUser[c.UserID] = mm
	}
	mm[c.ID] = c
	return len(mm) == 1, nil
}

// Unregister 注销连接。幂等: 未知ID是 no-op 而不是错误, 并发清理路径都可以安全调用。
// last=true 表示该用户已无任何在线连接。
func (r *Registry) Unregister(connID string) (c *Conn, last bool, ok bool) {
	if connID == "" {
		return nil, false, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok = r.byID[connID]
	if !ok {
		return nil, false, false
	}
	delete(r.byID, connID)

	if mm := r.byUser[c.UserID]; mm != nil {
		delete(mm, connID)
		if len(mm) == 0 {
			delete(r.byUser, c.UserID)
			last = true
		}
	}
	return c, last, true
}

func (r *Registry) Lookup(connID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[connID]
	return c, ok
}

// UserConns 某用户全部连接的快照
func (r *Registry) UserConns(userID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mm := r.byUser[userID]
	if len(mm) == 0 {
		return nil
	}
	out := make([]*Conn, 0, len(mm))
	for _, c := range mm {
		out = append(out, c)
	}
	return out
}

func (r *Registry) IsUserOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// Touch 刷新连接心跳时间
func (r *Registry) Touch(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.byID[connID]; ok {
		c.Heartbeat = time.Now()
	}
}

func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
