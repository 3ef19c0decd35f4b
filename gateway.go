package main

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"time"

	mongoutil "TeamSpace/data/database/mgo/mongoutil"
	"TeamSpace/global"
	"TeamSpace/logger"
	mid "TeamSpace/middleware"
	midsec "TeamSpace/middleware/security"
	"TeamSpace/module/assistant"
	historymodel "TeamSpace/module/history/model"
	historystore "TeamSpace/module/history/store"
	membersvc "TeamSpace/module/member/service"
	memberstore "TeamSpace/module/member/store"
	"TeamSpace/module/webrtc"
	"TeamSpace/service/dispatcher/kafka"
	"TeamSpace/service/gateway"
	mgosrv "TeamSpace/service/mgo"
	"TeamSpace/service/natsx"
	"TeamSpace/service/storage"
	redisstore "TeamSpace/service/storage/redis"
	"TeamSpace/tools/safe"
	"TeamSpace/tools/security"

	"github.com/gin-gonic/gin"
)

const bootTimeout = 30 * time.Second

// kafkaArchive 把持久化成功的消息异步投到归档主题。
// 和 Mongo 文档同一套字段, 下游检索管道只认一种形状。
type kafkaArchive struct {
	sink *kafka.ArchiveSink
}

func (a *kafkaArchive) Archive(msg gateway.StoredMessage) {
	doc := historymodel.Message{
		ServerMsgID: msg.ID,
		RoomKey:     msg.RoomKey,
		SenderID:    msg.SenderID,
		SenderName:  msg.SenderName,
		Content:     msg.Content,
		MsgFrom:     historymodel.MsgFromUser,
		CreateTime:  msg.CreatedAt.UnixMilli(),
	}
	if msg.IsAssistant {
		doc.MsgFrom = historymodel.MsgFromAssistant
	}
	payload, err := json.Marshal(&doc)
	if err != nil {
		logger.Warnf("[Archive] marshal msg=%s: %v", msg.ID, err)
		return
	}
	safe.SafeGoName("kafka-archive", func() {
		if err := a.sink.Archive(msg.RoomKey, payload); err != nil {
			logger.Warnf("[Archive] produce room=%s msg=%s: %v", msg.RoomKey, msg.ID, err)
		}
	})
}

func main() {
	defer logger.Sync()

	// 1) 配置 + 雪花节点
	if err := global.ConfigAll(); err != nil {
		logger.Errorf("[Boot] load config: %v", err)
		os.Exit(1)
	}
	cfg := global.Global

	// 2) Mongo 后台连接, 就绪前不开门
	mgosrv.StartAsync(context.Background(), &mongoutil.Config{
		Uri:         cfg.Mongo.Uri,
		Database:    cfg.Mongo.Database,
		Username:    cfg.Mongo.Username,
		Password:    cfg.Mongo.Password,
		MaxPoolSize: cfg.Mongo.MaxPoolSize,
		MaxRetry:    cfg.Mongo.MaxRetry,
	})
	bootCtx, cancelBoot := context.WithTimeout(context.Background(), bootTimeout)
	defer cancelBoot()
	if err := mgosrv.WaitReady(bootCtx, mgosrv.Manager()); err != nil {
		logger.Errorf("[Boot] mongo not ready: %v", err)
		os.Exit(1)
	}

	// 3) Redis 在线镜像 + 近期消息缓存, 连不上就全部降级
	var mirror *storage.Presence
	var recent *storage.RecentCache
	if err := redisstore.InitRedis(redisstore.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}); err != nil {
		logger.Warnf("[Boot] redis unavailable, presence mirror and recent cache disabled: %v", err)
	} else {
		mirror = storage.NewPresence(global.GatewayID(), time.Duration(cfg.Redis.PresenceTTL)*time.Second)
		recent = storage.NewRecentCache()
	}

	// 4) 工作区主库: 用户/频道/成员关系
	memberStore, err := memberstore.Connect(bootCtx, cfg.Postgres.URL)
	if err != nil {
		logger.Errorf("[Boot] postgres: %v", err)
		os.Exit(1)
	}
	verifier := membersvc.NewVerifier(security.DefaultOptions(global.GetJwtSecret()), memberStore)
	authorizer := membersvc.NewAuthorizer(memberStore)
	midsec.Configure(verifier)

	// 5) 消息仓储
	hist := historystore.NewStore(mgosrv.GetDB(), recent)
	if err := hist.EnsureIndexes(bootCtx); err != nil {
		logger.Warnf("[Boot] ensure message indexes: %v", err)
	}

	// 6) @AI 助手, 探活失败不拦启动（请求期仍会重试）
	var bot *assistant.Client
	if cfg.Assistant.Enable {
		bot = assistant.NewClient(assistant.Config{
			Host:    cfg.Assistant.Host,
			Model:   cfg.Assistant.Model,
			Timeout: time.Duration(cfg.Assistant.TimeoutSec) * time.Second,
		})
		safe.SafeGoName("assistant-probe", func() {
			models, err := bot.Health(context.Background())
			if err != nil {
				logger.Warnf("[Boot] ollama not reachable at %s: %v", cfg.Assistant.Host, err)
				return
			}
			logger.Infof("[Boot] ollama ready, model=%s available=%v", bot.Model(), models)
		})
	}

	// 7) Kafka 归档旁路
	var sink *kafka.ArchiveSink
	if cfg.Kafka.Enable {
		sink, err = kafka.NewArchiveSink(bootCtx, kafka.Config{
			Brokers:                 cfg.Kafka.Brokers,
			Topic:                   cfg.Kafka.ArchiveTopic,
			AutoCreateTopicsOnStart: true,
		})
		if err != nil {
			logger.Warnf("[Boot] kafka archive disabled: %v", err)
			sink = nil
		}
	}

	// 8) 组装网关
	opts := gateway.Options{
		GatewayID:  global.GatewayID(),
		Verifier:   verifier,
		Authorizer: authorizer,
		Store:      hist,
	}
	if bot != nil {
		opts.Assistant = bot
	}
	if mirror != nil {
		opts.Mirror = mirror
	}
	if sink != nil {
		opts.Archive = &kafkaArchive{sink: sink}
	}
	g := gateway.New(opts)

	// 9) NATS 工作区事件桥（可选旁路）
	if cfg.Nats.Enable {
		natsx.StartWorkspaceBridge(natsx.NatsxConfig{
			Servers:  cfg.Nats.Servers,
			Name:     cfg.Nats.Name,
			User:     cfg.Nats.User,
			Password: cfg.Nats.Password,
		}, g.BroadcastChannelRaw)
	}

	// 10) HTTP + WebSocket
	r := gin.New()
	r.Use(gin.Recovery())
	mid.Manager().Add(mid.CORS(cfg.Cors.Origins))
	r.Use(mid.Manager().Use())

	gateway.NewServer(g).RegisterRoutes(r)
	webrtc.NewHandler(webrtc.Config{
		Secret:      cfg.Turn.Secret,
		Host:        cfg.Turn.Host,
		Port:        strconv.Itoa(cfg.Turn.Port),
		TLSPort:     strconv.Itoa(cfg.Turn.PortTLS),
		TTL:         cfg.Turn.TTLSec,
		STUNServers: cfg.Turn.StunServers,
	}).RegisterRoutes(r)

	logger.Infof("[Boot] gateway %s listening on :%d", global.GatewayID(), cfg.Port)
	if err := r.Run(":" + strconv.Itoa(cfg.Port)); err != nil {
		logger.Errorf("[Boot] http server: %v", err)
		os.Exit(1)
	}
}
