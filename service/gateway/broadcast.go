package gateway

import (
	"encoding/json"

	"TeamSpace/logger"
	"TeamSpace/tools/errs"
)

// ===== 广播/定向推送 =====

// Engine 负责扇出: 事件序列化一次, 再逐收件人非阻塞入队。
// 收件人正在拆除算软失败直接跳过; 队列打满判定慢消费者, 交给 dropper 处置。
// 目标集合先从索引取快照再解锁投递, 投递期间不持有任何索引锁。
type Engine struct {
	reg     *Registry
	rooms   *RoomIndex
	dropper func(c *Conn, reason string)
}

func NewEngine(reg *Registry, rooms *RoomIndex) *Engine {
	return &Engine{
		reg:     reg,
		rooms:   rooms,
		dropper: func(*Conn, string) {},
	}
}

// SetDropper 注入慢消费者处置回调, Gateway 装配时挂上拆除闭环
func (e *Engine) SetDropper(fn func(c *Conn, reason string)) {
	if fn != nil {
		e.dropper = fn
	}
}

// BroadcastRoom 向房间广播。excludeConnID 非空则跳过该连接(发送者排除)。
// 返回实际入队的连接数; 房间为空是 no-op。
func (e *Engine) BroadcastRoom(roomKey string, ev ServerEvent, excludeConnID string) int {
	payload, err := marshalEvent(ev)
	if err != nil {
		return 0
	}
	return e.pushByIDs(e.rooms.Members(roomKey), payload, excludeConnID)
}

// BroadcastRoomRaw 广播已经是 JSON 的负载, 工作区事件桥直接用
func (e *Engine) BroadcastRoomRaw(roomKey string, payload []byte) int {
	return e.pushByIDs(e.rooms.Members(roomKey), payload, "")
}

// RelayUser 推给某用户的全部连接(多端扇出)。
// 用户不在线返回 0, 不算错误; 要不要回告发送者由调用方决定。
func (e *Engine) RelayUser(userID string, ev ServerEvent) int {
	payload, err := marshalEvent(ev)
	if err != nil {
		return 0
	}
	conns := e.reg.UserConns(userID)
	n := 0
	var overflow []*Conn
	for _, c := range conns {
		if e.enqueueOne(c, payload, &overflow) {
			n++
		}
	}
	e.dropAll(overflow)
	return n
}

// PushConnIDs 向一组连接ID推送, 拆除收尾时给剩余占用者补 user_left 用
func (e *Engine) PushConnIDs(connIDs []string, ev ServerEvent) int {
	payload, err := marshalEvent(ev)
	if err != nil {
		return 0
	}
	return e.pushByIDs(connIDs, payload, "")
}

// SendToConn 定向回发单个连接, error 事件和入房快照走这里
func (e *Engine) SendToConn(c *Conn, ev ServerEvent) error {
	payload, err := marshalEvent(ev)
	if err != nil {
		return err
	}
	var overflow []*Conn
	ok := e.enqueueOne(c, payload, &overflow)
	e.dropAll(overflow)
	if !ok {
		return errConnClosing
	}
	return nil
}

func (e *Engine) pushByIDs(connIDs []string, payload []byte, exclude string) int {
	n := 0
	var overflow []*Conn
	for _, id := range connIDs {
		if id == exclude {
			continue
		}
		c, ok := e.reg.Lookup(id)
		if !ok {
			continue // 已注销, 软跳过
		}
		if e.enqueueOne(c, payload, &overflow) {
			n++
		}
	}
	e.dropAll(overflow)
	return n
}

// enqueueOne 单连接入队。溢出的连接收集起来, 等整轮扇出完成后统一处置,
// 避免在迭代目标集时重入拆除逻辑。
func (e *Engine) enqueueOne(c *Conn, payload []byte, overflow *[]*Conn) bool {
	err := c.enqueue(payload)
	if err == nil {
		return true
	}
	if errs.ErrSendBufferFull.Is(err) {
		*overflow = append(*overflow, c)
	}
	return false
}

func (e *Engine) dropAll(conns []*Conn) {
	for _, c := range conns {
		e.dropper(c, "send queue overflow")
	}
}

func marshalEvent(ev ServerEvent) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.Errorf("[Engine] marshal event %T: %v", ev, err)
		return nil, err
	}
	return payload, nil
}
