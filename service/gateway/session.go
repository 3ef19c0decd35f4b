package gateway

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"TeamSpace/logger"
	"TeamSpace/tools/errs"
	"TeamSpace/tools/ids"
	"TeamSpace/tools/safe"
)

// ===== 会话参数 =====

const (
	// 写一帧的最长等待
	writeWait = 10 * time.Second
	// 两个 pong 之间允许的最大间隔, 超时判定连接已死
	readPongWait = 75 * time.Second
	// 心跳间隔, 必须小于 readPongWait
	pingInterval = 25 * time.Second
	// 首个 ping 提前探活
	firstPingDelay = 5 * time.Second

	// 准入阶段(验令牌+查库)总预算
	admitTimeout = 5 * time.Second
	// 单次落库预算
	persistTimeout = 5 * time.Second
	// 助手一轮(取上下文+补全+落库)总預算, 要盖过补全后端自身的超时
	assistantWait = 150 * time.Second
)

const (
	assistantHistoryLimit = 10
	assistantContextLines = 9
	assistantSenderID     = "ai"
	assistantSenderName   = "AI Assistant"
	assistantSystemPrompt = "You are a helpful AI assistant in a chat channel. Be conversational and helpful."
)

// ===== 接入 =====

// ServeChannel 频道会话入口。ws 已完成升级, 之后的关闭动作全部归本方法管。
func (g *Gateway) ServeChannel(ws *websocket.Conn, token, channelID string) {
	who, ok := g.admit(ws, token, func(ctx context.Context, who Identity) error {
		return g.authorizer.AuthorizeChannel(ctx, who.UserID, channelID)
	})
	if !ok {
		return
	}
	g.run(ws, who, ChannelRoomKey(channelID), "")
}

// ServeDM 私聊会话入口
func (g *Gateway) ServeDM(ws *websocket.Conn, token, otherUserID string) {
	who, ok := g.admit(ws, token, func(ctx context.Context, who Identity) error {
		return g.authorizer.AuthorizeDM(ctx, who.UserID, otherUserID)
	})
	if !ok {
		return
	}
	g.run(ws, who, DMRoomKey(who.UserID, otherUserID), otherUserID)
}

// admit 入房前的两道闸: 令牌换身份, 再按房间类型做准入。
// 任何一道不过都直接在套接字上回关闭帧, 不进注册表。
func (g *Gateway) admit(ws *websocket.Conn, token string, authorize func(ctx context.Context, who Identity) error) (Identity, bool) {
	if token == "" {
		closeWithReason(ws, websocket.ClosePolicyViolation, errs.ErrAuthRequired.Msg)
		return Identity{}, false
	}

	ctx, cancel := context.WithTimeout(context.Background(), admitTimeout)
	defer cancel()

	who, err := g.verifier.VerifyToken(ctx, token)
	if err != nil {
		logger.Warnf("[Gateway] token rejected: %v", err)
		// 验证环节无论哪一步出问题, 对客户端统一说认证失败
		code, reason := admissionClose(err, errs.ErrTokenInvalid.Msg)
		closeWithReason(ws, code, reason)
		return Identity{}, false
	}

	if err := authorize(ctx, who); err != nil {
		logger.Warnf("[Gateway] admission denied user=%s: %v", who.UserID, err)
		code, reason := admissionClose(err, "")
		closeWithReason(ws, code, reason)
		return Identity{}, false
	}
	return who, true
}

// admissionClose 把准入错误折算成关闭码和文案。业务错误回策略违规码和
// 自己的 Msg; 其余按 fallback 处理, fallback 为空时回 1011, 不外泄内部细节。
func admissionClose(err error, fallback string) (int, string) {
	var ce *errs.CodeError
	if errors.As(err, &ce) {
		return websocket.ClosePolicyViolation, ce.Msg
	}
	if fallback != "" {
		return websocket.ClosePolicyViolation, fallback
	}
	return websocket.CloseInternalServerErr, "Internal server error"
}

// closeWithReason 没进注册表的连接只能在这里收尾。
// 关闭帧文案上限 125 字节, 这里用到的拒绝理由都远小于该值。
func closeWithReason(ws *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(writeWait)
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = ws.Close()
}

// run 注册连接, 进房, 发快照, 然后把读写泵跑起来。读泵在本协程阻塞到断开。
func (g *Gateway) run(ws *websocket.Conn, who Identity, roomKey, peer string) {
	c := newConn(ids.GenerateString(), who.UserID, who.Username, roomKey, ws.RemoteAddr())

	first, err := g.reg.Register(c)
	if err != nil {
		logger.Errorf("[Gateway] register conn=%s user=%s: %v", c.ID, c.UserID, err)
		closeWithReason(ws, websocket.CloseInternalServerErr, "Internal server error")
		return
	}
	prev := g.rooms.Join(roomKey, c.ID)

	s := &session{g: g, ws: ws, c: c, peer: peer}
	go s.writePump()

	// 快照直接从 Join 返回的先前占用集推导, 和进房动作是同一份视图;
	// 快照发给自己(含自己), user_joined 只补给先到者。
	_ = g.engine.SendToConn(c, NewOnlineUsersEvent(g.presence.SnapshotUsers(prev, c.UserID), roomKey))
	if len(prev) > 0 {
		g.engine.PushConnIDs(prev, NewUserJoinedEvent(c.UserID, c.Username, roomKey))
	}
	if first {
		g.markOnline(c.UserID)
	}
	logger.Infof("[Gateway] conn=%s user=%s joined room=%s peers=%d", c.ID, c.UserID, roomKey, len(prev))

	s.readPump()
}

// ===== 会话 =====

// session 一条已准入连接的读写闭环。套接字只在这两个泵里被触碰。
type session struct {
	g    *Gateway
	ws   *websocket.Conn
	c    *Conn
	peer string // 私聊对端用户ID, 频道会话为空
}

// writePump 独占写端: 发送队列、心跳、关闭帧都从这里出去。
// 收到 done 信号后把队列里已排进来的尾巴发完, 补一个关闭帧再退出。
func (s *session) writePump() {
	ping := time.NewTimer(firstPingDelay)
	defer func() {
		ping.Stop()
		s.g.teardown(s.c, "write pump exit")
		_ = s.ws.Close()
	}()

	for {
		select {
		case data := <-s.c.sendCh:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debugf("[Gateway] write conn=%s: %v", s.c.ID, err)
				return
			}
		case <-ping.C:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			ping.Reset(pingInterval)
		case <-s.c.done:
			s.flushPending()
			_ = s.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

func (s *session) flushPending() {
	for {
		select {
		case data := <-s.c.sendCh:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if s.ws.WriteMessage(websocket.TextMessage, data) != nil {
				return
			}
		default:
			return
		}
	}
}

// readPump 独占读端。退出即触发拆除; 拆除由别处先触发时,
// 写泵关掉套接字会让 ReadMessage 出错, 这里随之退出。
func (s *session) readPump() {
	defer func() {
		s.g.teardown(s.c, "connection closed")
		_ = s.ws.Close()
	}()

	_ = s.ws.SetReadDeadline(time.Now().Add(readPongWait))
	s.ws.SetPongHandler(func(string) error {
		_ = s.ws.SetReadDeadline(time.Now().Add(readPongWait))
		s.g.reg.Touch(s.c.ID)
		s.g.markOnline(s.c.UserID)
		return nil
	})

	for {
		_, raw, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debugf("[Gateway] read conn=%s: %v", s.c.ID, err)
			}
			return
		}
		s.dispatch(raw)
	}
}

// dispatch 入站帧逐条串行处理, 顺序即到达顺序。解析失败回 error 事件, 连接不断。
func (s *session) dispatch(raw []byte) {
	ev, err := DecodeClientEvent(raw)
	if err != nil {
		s.sendError(clientText(err))
		return
	}
	switch e := ev.(type) {
	case MessageEvent:
		s.handleMessage(e)
	case TypingEvent:
		s.handleTyping(e)
	case SignalEvent:
		s.handleSignal(e)
	}
}

// clientText 取错误里专门给客户端看的那份文案
func clientText(err error) string {
	var ce *errs.CodeError
	if errors.As(err, &ce) && ce.Detail != "" {
		return ce.Detail
	}
	return "Invalid message format"
}

// handleMessage 聊天消息: 落库, 回声广播(发送者也收), 必要时拉起助手。
// 落库失败只丢历史不丢实时: 现做一条未入库消息照常广播。
func (s *session) handleMessage(e MessageEvent) {
	content := strings.TrimSpace(e.Content)
	if content == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	msg, err := s.g.store.SaveMessage(ctx, s.c.RoomKey, Identity{UserID: s.c.UserID, Username: s.c.Username}, content, false)
	cancel()
	if err != nil {
		logger.Errorf("[Gateway] save message room=%s user=%s: %v", s.c.RoomKey, s.c.UserID, err)
		msg = StoredMessage{
			ID:         ids.GenerateString(),
			Content:    content,
			SenderID:   s.c.UserID,
			SenderName: s.c.Username,
			RoomKey:    s.c.RoomKey,
			CreatedAt:  time.Now(),
		}
	} else if s.g.archive != nil {
		s.g.archive.Archive(msg)
	}

	s.g.engine.BroadcastRoom(s.c.RoomKey,
		NewMessageOutEvent(msg.ID, msg.Content, msg.SenderID, msg.SenderName, s.c.RoomKey, msg.CreatedAt, false), "")

	if s.g.assistant != nil {
		if query, ok := assistantQuery(content); ok {
			safe.SafeGoName("assistant-reply", func() { s.runAssistant(query) })
		}
	}
}

// handleTyping 打字状态只发给房间里的其他连接
func (s *session) handleTyping(e TypingEvent) {
	s.g.engine.BroadcastRoom(s.c.RoomKey,
		NewTypingOutEvent(s.c.UserID, s.c.Username, e.IsTyping, s.c.RoomKey), s.c.ID)
}

// handleSignal 信令中继。私聊会话目标固定为对端, 客户端填什么都不认;
// 频道会话必须显式给目标。对端不在线明确告知, 不做静默吞掉。
func (s *session) handleSignal(e SignalEvent) {
	target := e.TargetUserID
	if s.peer != "" {
		target = s.peer
	} else if target == "" {
		s.sendError("Missing target_user_id")
		return
	}
	if n := s.g.engine.RelayUser(target, NewSignalOutEvent(e.Kind, s.c.UserID, s.c.Username, e.Data)); n == 0 {
		s.sendError("User " + target + " is not connected")
	}
}

func (s *session) sendError(msg string) {
	if err := s.g.engine.SendToConn(s.c, NewErrorEvent(msg)); err != nil {
		logger.Debugf("[Gateway] error event conn=%s dropped: %v", s.c.ID, err)
	}
}

// ===== 助手 =====

// assistantQuery 判断 @AI 触发。前缀后必须跟空格, 去空白后为空不触发。
func assistantQuery(content string) (string, bool) {
	if !strings.HasPrefix(content, "@AI ") && !strings.HasPrefix(content, "@ai ") {
		return "", false
	}
	q := strings.TrimSpace(content[4:])
	return q, q != ""
}

// runAssistant 带房间近况问一轮补全, 回复落库后以助手身份广播。
// 整条链路任何一步出错, 只回给触发者一条 error 事件, 房间其他人无感。
func (s *session) runAssistant(query string) {
	ctx, cancel := context.WithTimeout(context.Background(), assistantWait)
	defer cancel()

	reply, err := s.g.composeAssistantReply(ctx, s.c.RoomKey, query)
	if err == nil {
		var saved StoredMessage
		saved, err = s.g.store.SaveMessage(ctx, s.c.RoomKey,
			Identity{UserID: s.c.UserID, Username: s.c.Username}, "🤖 "+reply, true)
		if err == nil {
			if s.g.archive != nil {
				s.g.archive.Archive(saved)
			}
			s.g.engine.BroadcastRoom(s.c.RoomKey,
				NewMessageOutEvent(saved.ID, saved.Content, assistantSenderID, assistantSenderName, s.c.RoomKey, saved.CreatedAt, true), "")
			return
		}
	}
	logger.Errorf("[Gateway] assistant room=%s user=%s: %v", s.c.RoomKey, s.c.UserID, err)
	s.sendError("AI service error: " + err.Error())
}

// composeAssistantReply 上下文取最新 10 条里较旧的 9 条(触发本轮的 @AI
// 消息刚落库, 恰好被挤出去), 倒回时间正序后逐行拼进提示词。
func (g *Gateway) composeAssistantReply(ctx context.Context, roomKey, query string) (string, error) {
	history, err := g.store.RecentMessages(ctx, roomKey, assistantHistoryLimit)
	if err != nil {
		return "", err
	}
	if n := len(history) - assistantContextLines; n > 0 {
		history = history[n:]
	}
	lines := make([]string, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		lines = append(lines, history[i].Content)
	}

	prompt := "Previous conversation:\n" + strings.Join(lines, "\n") +
		"\n\nUser question: " + query +
		"\n\nProvide a helpful response based on the conversation context."
	return g.assistant.Completion(ctx, prompt, assistantSystemPrompt)
}
