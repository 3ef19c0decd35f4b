package natsx

import (
	"context"
	"strings"
	"time"

	"TeamSpace/logger"
)

// ===== 工作区事件桥 =====
//
// 其他后端服务（REST 服务、任务系统）把频道事件发到
// workspace.channel.<channelID>[.<kind>]，网关订阅通配主题后
// 把 payload 原样透传给该频道的在线连接。
// 网关只订阅不发布；本机连接之间的扇出不经过 NATS。

const (
	// WorkspaceEventsBiz 事件桥的路由 Biz 名
	WorkspaceEventsBiz = "workspace-events"

	// WorkspaceChannelPrefix 频道事件主题前缀
	WorkspaceChannelPrefix = "workspace.channel."

	// WorkspaceWildcard 订阅用的通配主题
	WorkspaceWildcard = "workspace.channel.>"
)

// WorkspaceBridge 把频道事件转交给 broadcast（通常是网关的 BroadcastChannelRaw）。
// payload 不解析、不改写；事件种类（主题更深的层级）由客户端自行识别。
func WorkspaceBridge(broadcast func(channelID string, payload []byte) int) NatsxHandler {
	return func(ctx context.Context, msg NatsxMessage) error {
		if !strings.HasPrefix(msg.Subject, WorkspaceChannelPrefix) {
			return nil
		}
		channelID := strings.TrimPrefix(msg.Subject, WorkspaceChannelPrefix)
		// workspace.channel.<id>.<kind> 取第一段做频道 ID
		if i := strings.IndexByte(channelID, '.'); i >= 0 {
			channelID = channelID[:i]
		}
		if channelID == "" {
			return nil
		}
		n := broadcast(channelID, append([]byte(nil), msg.Data...))
		logger.Debugf("nats: workspace event channel=%s delivered=%d", channelID, n)
		return nil
	}
}

// StartWorkspaceBridge 注册事件路由并启动全局 NATS。
// Core 模式、不带 Queue：网关每个实例都要收到全量事件再各自扇出。
// 幂等中间件兜底 10 分钟，发布方配合 PublishOnce 可防重投。
func StartWorkspaceBridge(cfg NatsxConfig, broadcast func(channelID string, payload []byte) int) {
	UseGlobalMiddlewares(NatsxIdemMiddleware(NewMemIdem(10*time.Minute), 10*time.Minute))

	if err := RegisterRoute(NatsxRoute{
		Biz:     WorkspaceEventsBiz,
		Subject: WorkspaceWildcard,
		Mode:    Core,
	}); err != nil {
		logger.Errorf("nats: register workspace route failed: %v", err)
		return
	}
	if err := RegisterHandler(WorkspaceEventsBiz, WorkspaceBridge(broadcast)); err != nil {
		logger.Errorf("nats: register workspace handler failed: %v", err)
		return
	}

	StartNats(cfg)
}
