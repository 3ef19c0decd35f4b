package gateway

import (
	"encoding/json"
	stderrors "errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"TeamSpace/tools/errs"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newWSServer(t *testing.T, f *fixture) *httptest.Server {
	t.Helper()
	r := gin.New()
	NewServer(f.g).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dialWS(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	ws, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readEvent(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("bad frame %s: %v", raw, err)
	}
	return m
}

// expectClose 升级成功但准入被拒时, 客户端下一帧就是关闭帧
func expectClose(t *testing.T, ws *websocket.Conn, code int, reason string) {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := ws.ReadMessage()
	ce, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("want close error, got %v", err)
	}
	if ce.Code != code || ce.Text != reason {
		t.Fatalf("close = %d %q, want %d %q", ce.Code, ce.Text, code, reason)
	}
}

func userList(ev map[string]any) []string {
	raw, _ := ev["users"].([]any)
	out := make([]string, 0, len(raw))
	for _, u := range raw {
		out = append(out, u.(string))
	}
	return out
}

func sendJSON(t *testing.T, ws *websocket.Conn, v any) {
	t.Helper()
	_ = ws.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if err := ws.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// ===== 频道会话 =====

func TestChannelSessionLifecycle(t *testing.T) {
	f := newFixture()
	srv := newWSServer(t, f)

	a := dialWS(t, srv, "/ws/channel/general?token=tok-alice")
	ev := readEvent(t, a)
	if ev["type"] != "online_users" || ev["room"] != "channel:general" {
		t.Fatalf("snapshot = %v", ev)
	}
	// 首个进房的人快照里也有自己
	if got := userList(ev); len(got) != 1 || got[0] != "alice" {
		t.Fatalf("users = %v", got)
	}

	b := dialWS(t, srv, "/ws/channel/general?token=tok-bob")
	ev = readEvent(t, b)
	if got := userList(ev); len(got) != 2 || got[0] != "alice" || got[1] != "bob" {
		t.Fatalf("users = %v", got)
	}
	ev = readEvent(t, a)
	if ev["type"] != "user_joined" || ev["user_id"] != "bob" || ev["room"] != "channel:general" {
		t.Fatalf("user_joined = %v", ev)
	}

	// 消息落库后回声广播, 发送者也收一份
	sendJSON(t, a, map[string]any{"type": "message", "content": "hi all"})
	for _, ws := range []*websocket.Conn{a, b} {
		ev = readEvent(t, ws)
		if ev["type"] != "message" || ev["content"] != "hi all" || ev["sender_id"] != "alice" {
			t.Fatalf("message = %v", ev)
		}
		if ev["id"] == "" || ev["room"] != "channel:general" {
			t.Fatalf("message = %v", ev)
		}
	}
	if f.store.count() != 1 {
		t.Fatalf("store count = %d", f.store.count())
	}
	waitFor(t, time.Second, "archive", func() bool { return f.archive.count() == 1 })

	// 打字状态只发给别人
	sendJSON(t, b, map[string]any{"type": "typing", "is_typing": true})
	ev = readEvent(t, a)
	if ev["type"] != "typing" || ev["user_id"] != "bob" || ev["is_typing"] != true {
		t.Fatalf("typing = %v", ev)
	}
	sendJSON(t, a, map[string]any{"type": "message", "content": "second"})
	// b 的下一帧直接是 second 的回声, 中间没有自己的 typing
	ev = readEvent(t, b)
	if ev["type"] != "message" || ev["content"] != "second" {
		t.Fatalf("b next = %v", ev)
	}
	ev = readEvent(t, a)
	if ev["content"] != "second" {
		t.Fatalf("a next = %v", ev)
	}

	// 对端直接断线: 剩下的人收到恰好一条 user_left, 最后一连接翻离线镜像
	_ = b.Close()
	ev = readEvent(t, a)
	if ev["type"] != "user_left" || ev["user_id"] != "bob" {
		t.Fatalf("user_left = %v", ev)
	}
	waitFor(t, time.Second, "bob offline", func() bool { return f.mirror.offlineCount("bob") == 1 })

	sendJSON(t, a, map[string]any{"type": "message", "content": "third"})
	ev = readEvent(t, a)
	if ev["type"] != "message" || ev["content"] != "third" {
		t.Fatalf("a next after leave = %v", ev)
	}
}

func TestChannelAdmission(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		f := newFixture()
		srv := newWSServer(t, f)
		ws := dialWS(t, srv, "/ws/channel/general")
		expectClose(t, ws, websocket.ClosePolicyViolation, "Authentication required")
	})

	t.Run("bad token", func(t *testing.T) {
		f := newFixture()
		srv := newWSServer(t, f)
		ws := dialWS(t, srv, "/ws/channel/general?token=garbage")
		expectClose(t, ws, websocket.ClosePolicyViolation, "Authentication failed")
	})

	t.Run("channel not found", func(t *testing.T) {
		f := newFixture()
		f.authz.channelErr = errs.ErrChannelNotFound.Wrap()
		srv := newWSServer(t, f)
		ws := dialWS(t, srv, "/ws/channel/ghost?token=tok-alice")
		expectClose(t, ws, websocket.ClosePolicyViolation, "Channel not found")
	})

	t.Run("not a member", func(t *testing.T) {
		f := newFixture()
		f.authz.channelErr = errs.ErrNotGroupMember.Wrap()
		srv := newWSServer(t, f)
		ws := dialWS(t, srv, "/ws/channel/general?token=tok-alice")
		expectClose(t, ws, websocket.ClosePolicyViolation, "Not a member of this group")
	})

	t.Run("business error carries its own reason", func(t *testing.T) {
		f := newFixture()
		f.authz.channelErr = errs.ErrPersistence.WrapMsg("db down")
		srv := newWSServer(t, f)
		ws := dialWS(t, srv, "/ws/channel/general?token=tok-alice")
		expectClose(t, ws, websocket.ClosePolicyViolation, "persistence failure")
	})

	t.Run("internal error stays internal", func(t *testing.T) {
		f := newFixture()
		f.authz.channelErr = stderrors.New("pg: connection refused")
		srv := newWSServer(t, f)
		ws := dialWS(t, srv, "/ws/channel/general?token=tok-alice")
		// 非业务错误不外泄细节
		expectClose(t, ws, websocket.CloseInternalServerErr, "Internal server error")
	})

	t.Run("dm user not found", func(t *testing.T) {
		f := newFixture()
		f.authz.dmErr = errs.ErrUserNotFound.Wrap()
		srv := newWSServer(t, f)
		ws := dialWS(t, srv, "/ws/dm/ghost?token=tok-alice")
		expectClose(t, ws, websocket.ClosePolicyViolation, "User not found")
	})

	// 拒绝的连接不能留下任何痕迹
	t.Run("no residue", func(t *testing.T) {
		f := newFixture()
		srv := newWSServer(t, f)
		ws := dialWS(t, srv, "/ws/channel/general?token=garbage")
		expectClose(t, ws, websocket.ClosePolicyViolation, "Authentication failed")
		if n := f.g.Registry().Size(); n != 0 {
			t.Fatalf("registry size = %d", n)
		}
		if n := f.g.Rooms().RoomCount(); n != 0 {
			t.Fatalf("room count = %d", n)
		}
	})
}

// ===== 私聊会话 =====

func TestDMSession(t *testing.T) {
	f := newFixture()
	srv := newWSServer(t, f)

	// 双方从各自视角进同一个房间
	a := dialWS(t, srv, "/ws/dm/bob?token=tok-alice")
	ev := readEvent(t, a)
	if ev["room"] != "dm:alice:bob" {
		t.Fatalf("snapshot = %v", ev)
	}
	b := dialWS(t, srv, "/ws/dm/alice?token=tok-bob")
	ev = readEvent(t, b)
	if ev["room"] != "dm:alice:bob" {
		t.Fatalf("snapshot = %v", ev)
	}
	if got := userList(ev); len(got) != 2 {
		t.Fatalf("users = %v", got)
	}
	ev = readEvent(t, a)
	if ev["type"] != "user_joined" || ev["user_id"] != "bob" {
		t.Fatalf("user_joined = %v", ev)
	}

	// 私聊消息同样落库并双端回声
	sendJSON(t, a, map[string]any{"type": "message", "content": "hey"})
	for _, ws := range []*websocket.Conn{a, b} {
		ev = readEvent(t, ws)
		if ev["type"] != "message" || ev["content"] != "hey" || ev["room"] != "dm:alice:bob" {
			t.Fatalf("message = %v", ev)
		}
	}
	if f.store.count() != 1 || f.store.last().RoomKey != "dm:alice:bob" {
		t.Fatalf("store = %d %q", f.store.count(), f.store.last().RoomKey)
	}

	// 私聊信令目标钉死为对端, 客户端乱填也不可能串线
	sendJSON(t, a, map[string]any{"type": "webrtc_offer", "target_user_id": "carol", "data": map[string]any{"sdp": "v=0"}})
	ev = readEvent(t, b)
	if ev["type"] != "webrtc_offer" || ev["from_user_id"] != "alice" {
		t.Fatalf("signal = %v", ev)
	}
	data, _ := ev["data"].(map[string]any)
	if data["sdp"] != "v=0" {
		t.Fatalf("signal data = %v", ev)
	}
}

// ===== 信令规则 =====

func TestChannelSignalRules(t *testing.T) {
	f := newFixture()
	srv := newWSServer(t, f)

	a := dialWS(t, srv, "/ws/channel/general?token=tok-alice")
	readEvent(t, a) // snapshot
	b := dialWS(t, srv, "/ws/channel/general?token=tok-bob")
	readEvent(t, b) // snapshot
	readEvent(t, a) // user_joined

	// 频道信令必须显式给目标
	sendJSON(t, a, map[string]any{"type": "webrtc_offer", "data": map[string]any{}})
	ev := readEvent(t, a)
	if ev["type"] != "error" || ev["message"] != "Missing target_user_id" {
		t.Fatalf("error = %v", ev)
	}

	// 目标不在线明确回错, 不静默吞掉
	sendJSON(t, a, map[string]any{"type": "webrtc_offer", "target_user_id": "carol", "data": map[string]any{}})
	ev = readEvent(t, a)
	if ev["type"] != "error" || ev["message"] != "User carol is not connected" {
		t.Fatalf("error = %v", ev)
	}

	sendJSON(t, a, map[string]any{"type": "webrtc_answer", "target_user_id": "bob", "data": map[string]any{"sdp": "v=0"}})
	ev = readEvent(t, b)
	if ev["type"] != "webrtc_answer" || ev["from_user_id"] != "alice" || ev["from_username"] != "alice" {
		t.Fatalf("signal = %v", ev)
	}
}

// ===== 坏帧与空消息 =====

func TestMalformedFramesKeepSessionAlive(t *testing.T) {
	f := newFixture()
	srv := newWSServer(t, f)

	a := dialWS(t, srv, "/ws/channel/general?token=tok-alice")
	readEvent(t, a) // snapshot

	_ = a.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if err := a.WriteMessage(websocket.TextMessage, []byte("{oops")); err != nil {
		t.Fatalf("write: %v", err)
	}
	ev := readEvent(t, a)
	if ev["type"] != "error" || ev["message"] != "Invalid message format" {
		t.Fatalf("error = %v", ev)
	}

	sendJSON(t, a, map[string]any{"content": "x"})
	ev = readEvent(t, a)
	if ev["message"] != "Missing message type" {
		t.Fatalf("error = %v", ev)
	}

	sendJSON(t, a, map[string]any{"type": "frobnicate"})
	ev = readEvent(t, a)
	if ev["message"] != "Unknown message type: frobnicate" {
		t.Fatalf("error = %v", ev)
	}

	// 坏帧不断线, 会话还能正常用
	sendJSON(t, a, map[string]any{"type": "message", "content": "still here"})
	ev = readEvent(t, a)
	if ev["type"] != "message" || ev["content"] != "still here" {
		t.Fatalf("message = %v", ev)
	}
}

func TestEmptyMessageIgnored(t *testing.T) {
	f := newFixture()
	srv := newWSServer(t, f)

	a := dialWS(t, srv, "/ws/channel/general?token=tok-alice")
	readEvent(t, a) // snapshot

	sendJSON(t, a, map[string]any{"type": "message", "content": "   "})
	sendJSON(t, a, map[string]any{"type": "message", "content": "real"})

	// 空白消息静默忽略, 下一帧直接是 real 的回声
	ev := readEvent(t, a)
	if ev["type"] != "message" || ev["content"] != "real" {
		t.Fatalf("next = %v", ev)
	}
	if f.store.count() != 1 {
		t.Fatalf("store count = %d", f.store.count())
	}
}

func TestPersistenceFailureStillBroadcasts(t *testing.T) {
	f := newFixture()
	f.store.failSave = true
	srv := newWSServer(t, f)

	a := dialWS(t, srv, "/ws/channel/general?token=tok-alice")
	readEvent(t, a) // snapshot

	sendJSON(t, a, map[string]any{"type": "message", "content": "hello"})
	// 落库失败只丢历史不丢实时
	ev := readEvent(t, a)
	if ev["type"] != "message" || ev["content"] != "hello" || ev["sender_id"] != "alice" {
		t.Fatalf("message = %v", ev)
	}
	if ev["id"] == "" {
		t.Fatalf("ephemeral message without id: %v", ev)
	}
	if f.store.count() != 0 {
		t.Fatalf("store count = %d", f.store.count())
	}
	if f.archive.count() != 0 {
		t.Fatalf("archive count = %d", f.archive.count())
	}
}

// ===== 多端在线 =====

func TestMultiDeviceUserLeftPerConnection(t *testing.T) {
	f := newFixture()
	srv := newWSServer(t, f)

	a1 := dialWS(t, srv, "/ws/channel/general?token=tok-alice")
	readEvent(t, a1) // snapshot
	a2 := dialWS(t, srv, "/ws/channel/general?token=tok-alice")
	ev := readEvent(t, a2)
	// 同一用户第二端进房, 快照去重后还是一个人
	if got := userList(ev); len(got) != 1 || got[0] != "alice" {
		t.Fatalf("users = %v", got)
	}
	readEvent(t, a1) // a1 收到自己另一端的 user_joined

	b := dialWS(t, srv, "/ws/channel/general?token=tok-bob")
	ev = readEvent(t, b)
	if got := userList(ev); len(got) != 2 {
		t.Fatalf("users = %v", got)
	}
	readEvent(t, a1) // user_joined bob
	readEvent(t, a2) // user_joined bob

	// user_left 按连接补发: alice 两端先后断开, b 收到两条
	_ = a1.Close()
	ev = readEvent(t, b)
	if ev["type"] != "user_left" || ev["user_id"] != "alice" {
		t.Fatalf("first user_left = %v", ev)
	}
	_ = a2.Close()
	ev = readEvent(t, b)
	if ev["type"] != "user_left" || ev["user_id"] != "alice" {
		t.Fatalf("second user_left = %v", ev)
	}

	// 离线镜像只在最后一端断开后翻一次
	waitFor(t, time.Second, "alice offline once", func() bool { return f.mirror.offlineCount("alice") == 1 })
	time.Sleep(50 * time.Millisecond)
	if n := f.mirror.offlineCount("alice"); n != 1 {
		t.Fatalf("offline count = %d", n)
	}
}

// ===== 助手 =====

func TestAssistantFlow(t *testing.T) {
	f := newFixture()
	srv := newWSServer(t, f)

	a := dialWS(t, srv, "/ws/channel/general?token=tok-alice")
	readEvent(t, a) // snapshot
	b := dialWS(t, srv, "/ws/channel/general?token=tok-bob")
	readEvent(t, b) // snapshot
	readEvent(t, a) // user_joined

	sendJSON(t, a, map[string]any{"type": "message", "content": "hello there"})
	readEvent(t, a)
	readEvent(t, b)

	sendJSON(t, a, map[string]any{"type": "message", "content": "@AI what's up?"})
	// 先是触发消息本身的回声
	ev := readEvent(t, a)
	if ev["content"] != "@AI what's up?" || ev["sender_id"] != "alice" {
		t.Fatalf("trigger echo = %v", ev)
	}
	readEvent(t, b)

	// 然后助手以自己的身份广播给房间所有人
	for _, ws := range []*websocket.Conn{a, b} {
		ev = readEvent(t, ws)
		if ev["type"] != "message" || ev["sender_id"] != "ai" || ev["sender_username"] != "AI Assistant" {
			t.Fatalf("assistant message = %v", ev)
		}
		if ev["content"] != "🤖 sure thing" || ev["is_ai"] != true {
			t.Fatalf("assistant message = %v", ev)
		}
	}

	// 落库记在触发者名下, 标记为助手消息
	waitFor(t, time.Second, "assistant saved", func() bool { return f.store.count() == 3 })
	last := f.store.last()
	if !last.IsAssistant || last.SenderID != "alice" || last.Content != "🤖 sure thing" {
		t.Fatalf("stored = %+v", last)
	}

	prompt, system := f.assistant.lastPrompt()
	if system != assistantSystemPrompt {
		t.Fatalf("system = %q", system)
	}
	if !strings.Contains(prompt, "Previous conversation:\nhello there\n@AI what's up?") {
		t.Fatalf("prompt context wrong:\n%s", prompt)
	}
	if !strings.Contains(prompt, "User question: what's up?") {
		t.Fatalf("prompt question wrong:\n%s", prompt)
	}
}

func TestAssistantErrorOnlyToTrigger(t *testing.T) {
	f := newFixture()
	f.assistant.err = stderrors.New("ollama down")
	srv := newWSServer(t, f)

	a := dialWS(t, srv, "/ws/channel/general?token=tok-alice")
	readEvent(t, a) // snapshot
	b := dialWS(t, srv, "/ws/channel/general?token=tok-bob")
	readEvent(t, b) // snapshot
	readEvent(t, a) // user_joined

	sendJSON(t, a, map[string]any{"type": "message", "content": "@AI hi"})
	readEvent(t, a) // echo
	readEvent(t, b) // echo

	// 触发者收到错误
	ev := readEvent(t, a)
	if ev["type"] != "error" || ev["message"] != "AI service error: ollama down" {
		t.Fatalf("error = %v", ev)
	}

	// 房间其他人无感: b 的下一帧是下一条正常消息的回声
	sendJSON(t, b, map[string]any{"type": "message", "content": "anyone?"})
	ev = readEvent(t, b)
	if ev["type"] != "message" || ev["content"] != "anyone?" {
		t.Fatalf("b next = %v", ev)
	}
}

func TestAssistantNotTriggered(t *testing.T) {
	f := newFixture()
	srv := newWSServer(t, f)

	a := dialWS(t, srv, "/ws/channel/general?token=tok-alice")
	readEvent(t, a) // snapshot

	// 前缀后没有空格不触发; 只有空白的提问也不触发
	for _, content := range []string{"@AInope", "@AI   ", "mention of @AI mid-sentence"} {
		sendJSON(t, a, map[string]any{"type": "message", "content": content})
		ev := readEvent(t, a)
		if ev["type"] != "message" {
			t.Fatalf("echo = %v", ev)
		}
	}
	time.Sleep(50 * time.Millisecond)
	if prompt, _ := f.assistant.lastPrompt(); prompt != "" {
		t.Fatalf("assistant called with %q", prompt)
	}
}
