package service

import (
	"context"

	"TeamSpace/module/member/model"
	"TeamSpace/service/gateway"
	"TeamSpace/tools/errs"
	"TeamSpace/tools/security"
)

// Directory 准入需要的最小读取面, *store.Store 天然满足。
type Directory interface {
	UserByID(ctx context.Context, id string) (*model.User, error)
	ChannelByID(ctx context.Context, id string) (*model.Channel, error)
	IsGroupMember(ctx context.Context, userID, groupID string) (bool, error)
}

// Verifier 把 access token 换成账号身份。
type Verifier struct {
	Opts security.Options
	Dir  Directory
}

func NewVerifier(opts security.Options, dir Directory) *Verifier {
	return &Verifier{Opts: opts, Dir: dir}
}

// VerifyToken 校验签名与有效期, 再核对账号存在且未停用。
// 任何一步不过都归为 ErrTokenInvalid, 不向客户端泄露具体原因。
func (v *Verifier) VerifyToken(ctx context.Context, token string) (gateway.Identity, error) {
	claims, err := security.VerifyAccess(v.Opts, token)
	if err != nil {
		return gateway.Identity{}, errs.ErrTokenInvalid.WrapMsg(err.Error())
	}
	u, err := v.Dir.UserByID(ctx, claims.Subject())
	if err != nil {
		if errs.ErrRecordNotFound.Is(err) {
			return gateway.Identity{}, errs.ErrTokenInvalid.WrapMsg("user not found", "user_id", claims.Subject())
		}
		return gateway.Identity{}, err
	}
	if !u.IsActive {
		return gateway.Identity{}, errs.ErrTokenInvalid.WrapMsg("user disabled", "user_id", u.ID)
	}
	return gateway.Identity{UserID: u.ID, Username: u.Username}, nil
}

// Authorizer 频道与私聊的准入检查。
type Authorizer struct {
	Dir Directory
}

func NewAuthorizer(dir Directory) *Authorizer { return &Authorizer{Dir: dir} }

// AuthorizeChannel 要求频道存在, 且用户是频道所属群组的成员。
func (a *Authorizer) AuthorizeChannel(ctx context.Context, userID, channelID string) error {
	ch, err := a.Dir.ChannelByID(ctx, channelID)
	if err != nil {
		if errs.ErrRecordNotFound.Is(err) {
			return errs.ErrChannelNotFound.WrapMsg("channel", "channel_id", channelID)
		}
		return err
	}
	ok, err := a.Dir.IsGroupMember(ctx, userID, ch.GroupID)
	if err != nil {
		return err
	}
	if !ok {
		return errs.ErrNotGroupMember.WrapMsg("membership missing", "user_id", userID, "group_id", ch.GroupID)
	}
	return nil
}

// AuthorizeDM 只要求对方账号存在, 停用账号也可以被私聊。
func (a *Authorizer) AuthorizeDM(ctx context.Context, userID, otherUserID string) error {
	if _, err := a.Dir.UserByID(ctx, otherUserID); err != nil {
		if errs.ErrRecordNotFound.Is(err) {
			return errs.ErrUserNotFound.WrapMsg("peer", "user_id", otherUserID)
		}
		return err
	}
	return nil
}
