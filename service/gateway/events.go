package gateway

import (
	"encoding/json"
	"strings"
	"time"

	"TeamSpace/tools/decode"
	"TeamSpace/tools/errs"
)

// ===== 事件类型 =====

const (
	EventTypeMessage            = "message"
	EventTypeTyping             = "typing"
	EventTypeWebRTCOffer        = "webrtc_offer"
	EventTypeWebRTCAnswer       = "webrtc_answer"
	EventTypeWebRTCICECandidate = "webrtc_ice_candidate"

	EventTypeOnlineUsers = "online_users"
	EventTypeUserJoined  = "user_joined"
	EventTypeUserLeft    = "user_left"
	EventTypeError       = "error"
)

// ===== 入站事件 (封闭集合) =====
//
// 客户端帧先解到 map, 再按 type 收敛成具体事件。
// 会话层 switch 这些类型时不留 default 漏洞: 未知类型在这里就被拦下。

type ClientEvent interface{ clientEvent() }

// MessageEvent 聊天消息
type MessageEvent struct {
	Content string `json:"content"`
}

// TypingEvent 正在输入指示
type TypingEvent struct {
	IsTyping bool `json:"is_typing"`
}

// SignalEvent WebRTC 信令 (offer / answer / ice_candidate)。
// TargetUserID 在频道里必填, 私聊里由会话强制指向对端。
type SignalEvent struct {
	Kind         string         `json:"-"`
	TargetUserID string         `json:"target_user_id"`
	Data         map[string]any `json:"data"`
}

func (MessageEvent) clientEvent() {}
func (TypingEvent) clientEvent()  {}
func (SignalEvent) clientEvent()  {}

// DecodeClientEvent 解析一帧客户端 JSON。
// 失败一律归为 ErrMalformedEvent, Detail 里放的就是要回给客户端的文案。
func DecodeClientEvent(raw []byte) (ClientEvent, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errs.ErrMalformedEvent.WithDetail("Invalid message format").Wrap()
	}
	typ, err := decode.ReadString(m, "type")
	if err != nil {
		return nil, errs.ErrMalformedEvent.WithDetail("Missing message type").Wrap()
	}

	switch typ {
	case EventTypeMessage:
		ev, err := decode.DecodeMap[MessageEvent](m)
		if err != nil {
			return nil, errs.ErrMalformedEvent.WithDetail("Invalid message payload").Wrap()
		}
		return *ev, nil

	case EventTypeTyping:
		ev, err := decode.DecodeMap[TypingEvent](m)
		if err != nil {
			return nil, errs.ErrMalformedEvent.WithDetail("Invalid typing payload").Wrap()
		}
		return *ev, nil

	case EventTypeWebRTCOffer, EventTypeWebRTCAnswer, EventTypeWebRTCICECandidate:
		ev, err := decode.DecodeMap[SignalEvent](m)
		if err != nil {
			return nil, errs.ErrMalformedEvent.WithDetail("Invalid signaling payload").Wrap()
		}
		ev.Kind = strings.TrimPrefix(typ, "webrtc_")
		return *ev, nil

	default:
		return nil, errs.ErrMalformedEvent.WithDetail("Unknown message type: " + typ).Wrap()
	}
}

// ===== 出站事件 =====

type ServerEvent interface{ serverEvent() }

// OnlineUsersEvent 入房快照, 只在加入成功后推一次
type OnlineUsersEvent struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
	Room  string   `json:"room"`
}

// PresenceChangeEvent user_joined / user_left
type PresenceChangeEvent struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Room     string `json:"room"`
}

// MessageOutEvent 聊天消息广播
type MessageOutEvent struct {
	Type           string `json:"type"`
	ID             string `json:"id"`
	Content        string `json:"content"`
	SenderID       string `json:"sender_id"`
	SenderUsername string `json:"sender_username"`
	Room           string `json:"room"`
	CreatedAt      string `json:"created_at"`
	IsAI           bool   `json:"is_ai,omitempty"`
}

// TypingOutEvent 输入状态广播
type TypingOutEvent struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
	Room     string `json:"room"`
}

// SignalOutEvent WebRTC 信令转发, 带上发起方身份
type SignalOutEvent struct {
	Type         string         `json:"type"`
	FromUserID   string         `json:"from_user_id"`
	FromUsername string         `json:"from_username"`
	Data         map[string]any `json:"data"`
}

// ErrorEvent 回给单个客户端的错误
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (OnlineUsersEvent) serverEvent()    {}
func (PresenceChangeEvent) serverEvent() {}
func (MessageOutEvent) serverEvent()     {}
func (TypingOutEvent) serverEvent()      {}
func (SignalOutEvent) serverEvent()      {}
func (ErrorEvent) serverEvent()          {}

func NewOnlineUsersEvent(users []string, roomKey string) OnlineUsersEvent {
	return OnlineUsersEvent{Type: EventTypeOnlineUsers, Users: users, Room: roomKey}
}

func NewUserJoinedEvent(userID, username, roomKey string) PresenceChangeEvent {
	return PresenceChangeEvent{Type: EventTypeUserJoined, UserID: userID, Username: username, Room: roomKey}
}

func NewUserLeftEvent(userID, username, roomKey string) PresenceChangeEvent {
	return PresenceChangeEvent{Type: EventTypeUserLeft, UserID: userID, Username: username, Room: roomKey}
}

func NewMessageOutEvent(id, content, senderID, senderUsername, roomKey string, createdAt time.Time, isAI bool) MessageOutEvent {
	return MessageOutEvent{
		Type:           EventTypeMessage,
		ID:             id,
		Content:        content,
		SenderID:       senderID,
		SenderUsername: senderUsername,
		Room:           roomKey,
		CreatedAt:      createdAt.UTC().Format(time.RFC3339Nano),
		IsAI:           isAI,
	}
}

func NewTypingOutEvent(userID, username string, isTyping bool, roomKey string) TypingOutEvent {
	return TypingOutEvent{Type: EventTypeTyping, UserID: userID, Username: username, IsTyping: isTyping, Room: roomKey}
}

func NewSignalOutEvent(kind, fromUserID, fromUsername string, data map[string]any) SignalOutEvent {
	return SignalOutEvent{Type: "webrtc_" + kind, FromUserID: fromUserID, FromUsername: fromUsername, Data: data}
}

func NewErrorEvent(message string) ErrorEvent {
	return ErrorEvent{Type: EventTypeError, Message: message}
}
