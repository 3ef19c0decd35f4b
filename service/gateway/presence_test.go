package gateway

import (
	"reflect"
	"testing"
)

func TestPresenceDerivedFromIndexes(t *testing.T) {
	reg := NewRegistry()
	rooms := NewRoomIndex()
	p := NewPresence(reg, rooms)

	// bob 两端在线, 用户列表要去重
	reg.Register(newConn("c1", "alice", "alice", "channel:general", nil))
	reg.Register(newConn("c2", "bob", "bob", "channel:general", nil))
	reg.Register(newConn("c3", "bob", "bob", "channel:general", nil))
	rooms.Join("channel:general", "c1")
	rooms.Join("channel:general", "c2")
	rooms.Join("channel:general", "c3")

	got := p.OnlineUsersInRoom("channel:general")
	if want := []string{"alice", "bob"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("OnlineUsersInRoom = %v, want %v", got, want)
	}

	if got := p.OnlineUsersInRoom("channel:empty"); len(got) != 0 {
		t.Fatalf("empty room users = %v", got)
	}
}

func TestPresenceSkipsUnregistered(t *testing.T) {
	reg := NewRegistry()
	rooms := NewRoomIndex()
	p := NewPresence(reg, rooms)

	reg.Register(newConn("c1", "alice", "alice", "channel:general", nil))
	rooms.Join("channel:general", "c1")
	// c2 在房间索引里但已从注册表摘除(拆除进行中), 必须被软跳过
	rooms.Join("channel:general", "c2")

	got := p.OnlineUsersInRoom("channel:general")
	if len(got) != 1 || got[0] != "alice" {
		t.Fatalf("users = %v", got)
	}
}

func TestSnapshotUsersIncludesSelf(t *testing.T) {
	reg := NewRegistry()
	rooms := NewRoomIndex()
	p := NewPresence(reg, rooms)

	reg.Register(newConn("c1", "bob", "bob", "channel:general", nil))
	prev := rooms.Join("channel:general", "c1")
	if len(prev) != 0 {
		t.Fatalf("prev = %v", prev)
	}

	// 首个进房的人, 快照里也要有自己
	got := p.SnapshotUsers(prev, "alice")
	if len(got) != 1 || got[0] != "alice" {
		t.Fatalf("snapshot = %v", got)
	}

	prev = rooms.Join("channel:general", "c2")
	got = p.SnapshotUsers(prev, "alice")
	if want := []string{"alice", "bob"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("snapshot = %v, want %v", got, want)
	}

	// 自己已有一条连接在房间里, 不能重复计入
	reg.Register(newConn("c2", "alice", "alice", "channel:general", nil))
	got = p.SnapshotUsers(rooms.Members("channel:general"), "alice")
	if want := []string{"alice", "bob"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("snapshot with self online = %v, want %v", got, want)
	}
}
