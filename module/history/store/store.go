package store

import (
	"context"
	"encoding/json"
	"time"

	"TeamSpace/logger"
	"TeamSpace/module/history/model"
	"TeamSpace/service/gateway"
	"TeamSpace/service/storage"
	"TeamSpace/tools/errs"
	"TeamSpace/tools/ids"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store 房间消息的 Mongo 仓储，可选挂一层 Redis 近期窗口缓存。
type Store struct {
	DB    *mongo.Database
	Cache *storage.RecentCache // 可为 nil；miss 时直接回源 Mongo
}

func NewStore(db *mongo.Database, cache *storage.RecentCache) *Store {
	return &Store{DB: db, Cache: cache}
}

func (s *Store) coll() *mongo.Collection {
	return s.DB.Collection(model.MessageTableName)
}

// EnsureIndexes 建房间时间线索引与消息ID唯一索引，启动时调用一次。
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "room_key", Value: 1}, {Key: "create_time", Value: -1}},
		},
		{
			Keys:    bson.D{{Key: "server_msg_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_server_msg_id"),
		},
	})
	if err != nil {
		return errs.WrapMsg(err, "create message indexes")
	}
	return nil
}

// SaveMessage 落库一条消息并推进该房间的近期窗口缓存。
func (s *Store) SaveMessage(ctx context.Context, roomKey string, sender gateway.Identity, content string, fromAssistant bool) (gateway.StoredMessage, error) {
	doc := &model.Message{
		ServerMsgID: ids.GenerateString(),
		RoomKey:     roomKey,
		SenderID:    sender.UserID,
		SenderName:  sender.Username,
		Content:     content,
		MsgFrom:     msgFrom(fromAssistant),
		CreateTime:  time.Now().UnixMilli(),
	}
	if _, err := s.coll().InsertOne(ctx, doc); err != nil {
		return gateway.StoredMessage{}, errs.WrapMsg(err, "insert message", "room", roomKey)
	}
	if s.Cache != nil {
		raw, err := json.Marshal(doc)
		if err == nil {
			err = s.Cache.Push(ctx, roomKey, raw)
		}
		if err != nil {
			// 缓存失败不影响写入结果
			logger.Warnf("recent cache push failed: room=%s err=%v", roomKey, err)
		}
	}
	return toStored(doc), nil
}

// RecentMessages 返回房间最近 limit 条消息，新在前。
// 缓存只有攒满整窗才可信（冷启动时缓存是空的），否则回源 Mongo。
func (s *Store) RecentMessages(ctx context.Context, roomKey string, limit int) ([]gateway.StoredMessage, error) {
	if limit <= 0 {
		limit = 10
	}
	if s.Cache != nil {
		if raws, err := s.Cache.Fetch(ctx, roomKey, limit); err == nil && len(raws) >= limit {
			if out, ok := decodeCached(raws); ok {
				return out, nil
			}
			// 窗口里混进了解不开的东西，丢掉重建
			_ = s.Cache.Invalidate(ctx, roomKey)
		}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "create_time", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := s.coll().Find(ctx, bson.M{"room_key": roomKey}, opts)
	if err != nil {
		return nil, errs.WrapMsg(err, "find recent messages", "room", roomKey)
	}
	var docs []model.Message
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errs.WrapMsg(err, "decode recent messages", "room", roomKey)
	}
	out := make([]gateway.StoredMessage, 0, len(docs))
	for i := range docs {
		out = append(out, toStored(&docs[i]))
	}
	return out, nil
}

func msgFrom(fromAssistant bool) int32 {
	if fromAssistant {
		return model.MsgFromAssistant
	}
	return model.MsgFromUser
}

func toStored(m *model.Message) gateway.StoredMessage {
	return gateway.StoredMessage{
		ID:          m.ServerMsgID,
		Content:     m.Content,
		SenderID:    m.SenderID,
		SenderName:  m.SenderName,
		RoomKey:     m.RoomKey,
		CreatedAt:   time.UnixMilli(m.CreateTime).UTC(),
		IsAssistant: m.MsgFrom == model.MsgFromAssistant,
	}
}

func decodeCached(raws [][]byte) ([]gateway.StoredMessage, bool) {
	out := make([]gateway.StoredMessage, 0, len(raws))
	for _, raw := range raws {
		var m model.Message
		if err := json.Unmarshal(raw, &m); err != nil || m.ServerMsgID == "" {
			return nil, false
		}
		out = append(out, toStored(&m))
	}
	return out, true
}
