package ids

import (
	"strconv"
	"sync"
	"time"
)

// 雪花结构: 41 bits 毫秒时间戳 | 10 bits 节点 | 12 bits 序列
type snowGen struct {
	mu     sync.Mutex
	baseMS int64
	nodeID int64 // 0~1023
	seq    int64 // 0~4095
	lastMS int64
}

var (
	defaultGen *snowGen
	once       sync.Once
)

func initDefault() {
	once.Do(func() {
		defaultGen = &snowGen{
			baseMS: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
			nodeID: 1,
		}
	})
}

// Generate 生成一个新的雪花ID
func Generate() int64 {
	initDefault()
	return defaultGen.next()
}

// GenerateString 字符串形式, 用于连接ID/消息ID
func GenerateString() string {
	return strconv.FormatInt(Generate(), 10)
}

// SetNodeID 设置节点ID（0~1023）, 在 main() 初始化时调用
func SetNodeID(nodeID int64) {
	initDefault()
	if nodeID < 0 || nodeID > 1023 {
		nodeID = 1
	}
	defaultGen.nodeID = nodeID
}

// NodeID 当前节点ID, 网关实例标识会用到
func NodeID() int64 {
	initDefault()
	return defaultGen.nodeID
}

// ---------------- 内部方法 ----------------
func (g *snowGen) next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	for {
		now := time.Now().UnixMilli()
		if now < g.lastMS {
			// 时钟回拨，等待
			time.Sleep(time.Duration(g.lastMS-now) * time.Millisecond)
			continue
		}
		if now == g.lastMS {
			g.seq = (g.seq + 1) & 0xFFF // 12 bits
			if g.seq == 0 {
				// 序列溢出，等到下一毫秒
				for now <= g.lastMS {
					now = time.Now().UnixMilli()
				}
			}
		} else {
			g.seq = 0
		}
		g.lastMS = now

		ts := (now - g.baseMS) & ((1 << 41) - 1)
		id := (ts << 22) | (g.nodeID << 12) | g.seq
		return id
	}
}
