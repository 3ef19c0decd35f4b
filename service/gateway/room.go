package gateway

import (
	"fmt"
	"sort"
	"strings"
)

// ===== 房间键 =====
//
// 频道房间:  channel:<channelID>
// 私聊房间:  dm:<userA>:<userB>  (两个用户ID排序后拼接, 保证双方算出同一个键)

const (
	roomPrefixChannel = "channel:"
	roomPrefixDM      = "dm:"
)

// ChannelRoomKey 频道房间键
func ChannelRoomKey(channelID string) string {
	return roomPrefixChannel + channelID
}

// DMRoomKey 私聊房间键, 与参数顺序无关
func DMRoomKey(userA, userB string) string {
	p := []string{userA, userB}
	sort.Strings(p)
	return fmt.Sprintf("%s%s:%s", roomPrefixDM, p[0], p[1])
}

// IsDMRoom 是否为私聊房间
func IsDMRoom(roomKey string) bool {
	return strings.HasPrefix(roomKey, roomPrefixDM)
}

// ChannelIDOfRoom 从频道房间键取回频道ID
func ChannelIDOfRoom(roomKey string) (string, bool) {
	if !strings.HasPrefix(roomKey, roomPrefixChannel) {
		return "", false
	}
	return strings.TrimPrefix(roomKey, roomPrefixChannel), true
}
