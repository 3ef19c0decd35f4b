package model

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ===== 常量 =====

const (
	MessageTableName = "workspace_message" // 集合名

	MsgFromUser      = 0 // 用户消息
	MsgFromAssistant = 1 // 助手消息
)

// Message {
// "server_msg_id": "7340982145921024001",
// "room_key": "channel:general",
// "sender_id": "u_1001",
// "sender_name": "alice",
// "content": "大家好",
// "msg_from": 0,
// "create_time": 1755850000000
// }
// db.workspace_message.createIndex({ room_key: 1, create_time: -1 })
// db.workspace_message.createIndex({ server_msg_id: 1 }, { unique: true, name: "uniq_server_msg_id" })
// Message 房间内的一条持久化消息（频道或私聊共用一张表，靠 room_key 区分）
type Message struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"  json:"_id,omitempty"`
	ServerMsgID string             `bson:"server_msg_id"  json:"server_msg_id"` // 服务端分配的消息ID

	// —— 路由 —— //
	RoomKey string `bson:"room_key"    json:"room_key"` // channel:<id> 或 dm:<a>:<b>

	// —— 发送者快照 —— //
	SenderID   string `bson:"sender_id"   json:"sender_id"`
	SenderName string `bson:"sender_name" json:"sender_name"`

	// —— 内容 —— //
	Content string `bson:"content"     json:"content"`
	MsgFrom int32  `bson:"msg_from"    json:"msg_from"` // 0=用户,1=助手

	CreateTime int64 `bson:"create_time" json:"create_time"` // 创建时间(Unix ms)
}

func (*Message) TableName() string { return MessageTableName }
