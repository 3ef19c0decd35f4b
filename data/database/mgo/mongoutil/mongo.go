package mongoutil

import (
	"context"
	"fmt"
	"strings"
	"time"

	"TeamSpace/tools/errs"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	defaultMaxPoolSize = 100
	defaultMaxRetry    = 3
)

// Config 消息史库连接配置。Uri 给全了就用 Uri, 否则按 Address 等字段拼。
type Config struct {
	Uri         string
	Address     []string
	Database    string
	Username    string
	Password    string
	AuthSource  string // 空则用 Database
	MaxPoolSize int
	MaxRetry    int
}

func (c *Config) ValidateAndSetDefaults() error {
	if c.Uri == "" && len(c.Address) == 0 {
		return errs.New("either Uri or Address must be provided")
	}
	if c.Database == "" {
		return errs.New("database is required")
	}
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = defaultMaxPoolSize
	}
	if c.MaxRetry <= 0 {
		c.MaxRetry = defaultMaxRetry
	}
	if c.Uri == "" {
		auth := c.AuthSource
		if auth == "" {
			auth = c.Database
		}
		c.Uri = c.buildURI(auth)
	}
	return nil
}

func (c *Config) buildURI(authSource string) string {
	cred := ""
	if c.Username != "" && c.Password != "" {
		cred = fmt.Sprintf("%s:%s@", c.Username, c.Password)
	}
	return fmt.Sprintf("mongodb://%s%s/%s?authSource=%s&maxPoolSize=%d",
		cred, strings.Join(c.Address, ","), c.Database, authSource, c.MaxPoolSize)
}

func (c *Config) clientOptions() *options.ClientOptions {
	opts := options.Client().ApplyURI(c.Uri)
	opts.SetMaxPoolSize(uint64(c.MaxPoolSize))
	// 单独给了用户名密码就覆盖 URI 里的
	if c.Username != "" {
		opts.SetAuth(options.Credential{
			Username:   c.Username,
			Password:   c.Password,
			AuthSource: c.AuthSource,
		})
	}
	return opts
}

// Client 连接句柄, 绑定到一个库
type Client struct {
	cli *mongo.Client
	db  *mongo.Database
}

func (c *Client) GetDB() *mongo.Database { return c.db }

// Close 进程退出前断开底层连接
func (c *Client) Close(ctx context.Context) error {
	return c.cli.Disconnect(ctx)
}

// NewMongoDB 建连并 ping 通才算成功, 可重试的错误最多试 MaxRetry 次。
func NewMongoDB(ctx context.Context, config *Config) (*Client, error) {
	if err := config.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	opts := config.clientOptions()

	var (
		cli *mongo.Client
		err error
	)
	for i := 0; i < config.MaxRetry; i++ {
		cli, err = dialAndPing(ctx, opts)
		if err != nil && retriable(ctx, err) {
			time.Sleep(time.Second / 2)
			continue
		}
		break
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "failed to connect to MongoDB", "URI", config.Uri)
	}
	return &Client{cli: cli, db: cli.Database(config.Database)}, nil
}

func dialAndPing(ctx context.Context, opts *options.ClientOptions) (*mongo.Client, error) {
	cli, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := cli.Ping(ctx, nil); err != nil {
		return nil, err
	}
	return cli, nil
}

// retriable 鉴权失败类错误(13/18)重试无意义, ctx 结束也不再试
func retriable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if cmdErr, ok := err.(mongo.CommandError); ok {
		return cmdErr.Code != 13 && cmdErr.Code != 18
	}
	return true
}
