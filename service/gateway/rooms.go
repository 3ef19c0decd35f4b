package gateway

import "sync"

// ===== 房间索引 =====

// RoomIndex 房间键 -> 连接ID集合。
// join/leave 串行通过这把锁, 同一房间的 user_joined / user_left 顺序因此有保障。
// 只存连接ID不存指针, 成员解引用一律回 Registry, 拆除中的连接在那里自然被跳过。
type RoomIndex struct {
	mu    sync.Mutex
	rooms map[string]map[string]struct{}
}

func NewRoomIndex() *RoomIndex {
	return &RoomIndex{rooms: make(map[string]map[string]struct{})}
}

// Join 把连接加入房间, 返回加入前已在房间里的连接ID集合。
// 调用方用这个返回值算在线快照和 user_joined 的收件人, 不再二次查询。
func (ri *RoomIndex) Join(roomKey, connID string) (prev []string) {
	ri.mu.Lock()
	defer ri.mu.Unlock()

	set := ri.rooms[roomKey]
	if set == nil {
		set = make(map[string]struct{})
		ri.rooms[roomKey] = set
	}
	prev = make([]string, 0, len(set))
	for id := range set {
		prev = append(prev, id)
	}
	set[connID] = struct{}{}
	return prev
}

// Leave 把连接移出房间, 返回剩余占用者。removed=false 表示连接本就不在房间里,
// 并发拆除时后到的一方据此跳过 user_left 广播。空房间条目当场回收。
func (ri *RoomIndex) Leave(roomKey, connID string) (remaining []string, removed bool) {
	ri.mu.Lock()
	defer ri.mu.Unlock()

	set := ri.rooms[roomKey]
	if set == nil {
		return nil, false
	}
	if _, ok := set[connID]; !ok {
		return nil, false
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(ri.rooms, roomKey)
		return nil, true
	}
	remaining = make([]string, 0, len(set))
	for id := range set {
		remaining = append(remaining, id)
	}
	return remaining, true
}

// Members 房间当前全部连接ID的快照
func (ri *RoomIndex) Members(roomKey string) []string {
	ri.mu.Lock()
	defer ri.mu.Unlock()

	set := ri.rooms[roomKey]
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// RoomCount 非空房间数, 健康检查用
func (ri *RoomIndex) RoomCount() int {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	return len(ri.rooms)
}
