package gateway

import "sort"

// ===== 在线视图 =====

// Presence 不落任何状态, 在线情况全部从注册表和房间索引推导。
// 跨节点可见性交给 redis 镜像, 这里只回答本实例的问题。
type Presence struct {
	reg   *Registry
	rooms *RoomIndex
}

func NewPresence(reg *Registry, rooms *RoomIndex) *Presence {
	return &Presence{reg: reg, rooms: rooms}
}

// OnlineUsersInRoom 房间内去重后的用户ID, 排序保证输出稳定。
// 拆除中的连接查不到注册表, 自然被跳过。
func (p *Presence) OnlineUsersInRoom(roomKey string) []string {
	return p.usersOf(p.rooms.Members(roomKey), "")
}

// SnapshotUsers 由 Join 返回的先前占用集推导用户列表并并入自己。
// 快照和加入动作共用同一份成员视图, 不做第二次索引查询。
func (p *Presence) SnapshotUsers(prevConnIDs []string, selfUserID string) []string {
	return p.usersOf(prevConnIDs, selfUserID)
}

func (p *Presence) IsUserOnline(userID string) bool {
	return p.reg.IsUserOnline(userID)
}

func (p *Presence) usersOf(connIDs []string, extraUserID string) []string {
	seen := make(map[string]struct{}, len(connIDs)+1)
	users := make([]string, 0, len(connIDs)+1)
	if extraUserID != "" {
		seen[extraUserID] = struct{}{}
		users = append(users, extraUserID)
	}
	for _, id := range connIDs {
		c, ok := p.reg.Lookup(id)
		if !ok {
			continue
		}
		if _, dup := seen[c.UserID]; dup {
			continue
		}
		seen[c.UserID] = struct{}{}
		users = append(users, c.UserID)
	}
	sort.Strings(users)
	return users
}
