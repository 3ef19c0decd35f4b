package gateway

import (
	"sync"
	"testing"
	"time"

	"TeamSpace/tools/errs"
)

func testConn(id, userID string) *Conn {
	return newConn(id, userID, "u-"+userID, "channel:general", nil)
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()

	first, err := r.Register(testConn("c1", "alice"))
	if err != nil {
		t.Fatalf("register c1: %v", err)
	}
	if !first {
		t.Fatalf("c1 should be alice's first conn")
	}

	// 同一用户第二条连接不再是 first
	first, err = r.Register(testConn("c2", "alice"))
	if err != nil {
		t.Fatalf("register c2: %v", err)
	}
	if first {
		t.Fatalf("c2 reported first")
	}

	if _, err := r.Register(testConn("c1", "bob")); !errs.ErrDuplicateConn.Is(err) {
		t.Fatalf("duplicate id err = %v", err)
	}

	if !r.IsUserOnline("alice") || r.IsUserOnline("bob") {
		t.Fatalf("online view wrong")
	}
	if n := r.Size(); n != 2 {
		t.Fatalf("Size = %d", n)
	}
	if got := len(r.UserConns("alice")); got != 2 {
		t.Fatalf("UserConns(alice) = %d", got)
	}
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry()
	r.Register(testConn("c1", "alice"))
	r.Register(testConn("c2", "alice"))

	c, last, ok := r.Unregister("c1")
	if !ok || c == nil || c.ID != "c1" {
		t.Fatalf("unregister c1: %v %v", c, ok)
	}
	if last {
		t.Fatalf("alice still has c2, last must be false")
	}

	_, last, ok = r.Unregister("c2")
	if !ok || !last {
		t.Fatalf("unregister c2: last=%v ok=%v", last, ok)
	}
	if r.IsUserOnline("alice") {
		t.Fatalf("alice still online after drain")
	}

	// 幂等: 并发清理路径重复注销是 no-op
	if _, _, ok := r.Unregister("c2"); ok {
		t.Fatalf("second unregister reported ok")
	}
	if _, _, ok := r.Unregister(""); ok {
		t.Fatalf("empty id unregister reported ok")
	}
}

func TestRegistryTouch(t *testing.T) {
	r := NewRegistry()
	c := testConn("c1", "alice")
	r.Register(c)

	before := c.Heartbeat
	time.Sleep(5 * time.Millisecond)
	r.Touch("c1")

	got, _ := r.Lookup("c1")
	if !got.Heartbeat.After(before) {
		t.Fatalf("heartbeat not refreshed")
	}
}

func TestConnShutdownOnce(t *testing.T) {
	c := testConn("c1", "alice")

	const racers = 16
	var wg sync.WaitGroup
	wins := make(chan bool, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wins <- c.shutdown()
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for w := range wins {
		if w {
			won++
		}
	}
	if won != 1 {
		t.Fatalf("shutdown winners = %d", won)
	}
	if !c.closing() {
		t.Fatalf("conn not closing after shutdown")
	}
}

func TestConnEnqueue(t *testing.T) {
	c := testConn("c1", "alice")

	for i := 0; i < sendQueueSize; i++ {
		if err := c.enqueue([]byte("x")); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	// 队列打满判慢消费者
	if err := c.enqueue([]byte("x")); !errs.ErrSendBufferFull.Is(err) {
		t.Fatalf("overflow err = %v", err)
	}

	// 拆除中的连接投递算软失败, 不是溢出
	c.shutdown()
	if err := c.enqueue([]byte("x")); err != errConnClosing {
		t.Fatalf("enqueue after shutdown err = %v", err)
	}
}
