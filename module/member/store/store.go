package store

import (
	"context"
	"errors"

	"TeamSpace/module/member/model"
	"TeamSpace/tools/errs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store 关系库只读仓储, 网关准入全部走这里。
type Store struct {
	Pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store { return &Store{Pool: pool} }

// Connect 建池并 ping 一次确认可用。
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errs.WrapMsg(err, "parse postgres dsn")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.WrapMsg(err, "ping postgres")
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() { s.Pool.Close() }

// UserByID 按ID取账号, 不存在返回 ErrRecordNotFound。
func (s *Store) UserByID(ctx context.Context, id string) (*model.User, error) {
	const q = `SELECT id, username, email, is_active, is_superuser, COALESCE(avatar_url, '')
FROM users WHERE id = $1`
	var u model.User
	err := s.Pool.QueryRow(ctx, q, id).Scan(&u.ID, &u.Username, &u.Email, &u.IsActive, &u.IsSuperuser, &u.AvatarURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrRecordNotFound.WrapMsg("user", "user_id", id)
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "query user", "user_id", id)
	}
	return &u, nil
}

// ChannelByID 按ID取频道, 不存在返回 ErrRecordNotFound。
func (s *Store) ChannelByID(ctx context.Context, id string) (*model.Channel, error) {
	const q = `SELECT id, name, group_id, type, COALESCE(description, '')
FROM channels WHERE id = $1`
	var ch model.Channel
	err := s.Pool.QueryRow(ctx, q, id).Scan(&ch.ID, &ch.Name, &ch.GroupID, &ch.Type, &ch.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrRecordNotFound.WrapMsg("channel", "channel_id", id)
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "query channel", "channel_id", id)
	}
	return &ch, nil
}

// IsGroupMember 用户是否在群组成员表里。
func (s *Store) IsGroupMember(ctx context.Context, userID, groupID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM memberships WHERE user_id = $1 AND group_id = $2)`
	var ok bool
	if err := s.Pool.QueryRow(ctx, q, userID, groupID).Scan(&ok); err != nil {
		return false, errs.WrapMsg(err, "query membership", "user_id", userID, "group_id", groupID)
	}
	return ok, nil
}
