package global

// AppConfig 网关进程的全部可配置项, 由 viper 读入
type AppConfig struct {
	NodeType      string `mapstructure:"node_type"`
	GatewayNodeId string `mapstructure:"gateway_node_id"` // 节点的Id, 空则按雪花节点生成
	Port          int    `mapstructure:"port"`            // http 启动端口
	JwtSecret     string `mapstructure:"jwt_secret"`
	SnowNodeId    int64  `mapstructure:"snow_node_id"` // 雪花节点 0~1023

	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Nats      NatsConfig      `mapstructure:"nats"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Assistant AssistantConfig `mapstructure:"assistant"`
	Turn      TurnConfig      `mapstructure:"turn"`
	Cors      CorsConfig      `mapstructure:"cors"`
}

// PostgresConfig 工作区主库, 用户/频道/成员关系都在这里
type PostgresConfig struct {
	URL string `mapstructure:"url"`
}

type MongoConfig struct {
	Uri         string `mapstructure:"uri"`
	Database    string `mapstructure:"database"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	MaxPoolSize int    `mapstructure:"max_pool_size"`
	MaxRetry    int    `mapstructure:"max_retry"`
}

type RedisConfig struct {
	Addr        string `mapstructure:"addr"`
	Password    string `mapstructure:"password"`
	DB          int    `mapstructure:"db"`
	PresenceTTL int    `mapstructure:"presence_ttl"` // 秒
}

type NatsConfig struct {
	Enable   bool     `mapstructure:"enable"`
	Servers  []string `mapstructure:"servers"`
	Name     string   `mapstructure:"name"`
	User     string   `mapstructure:"user"`
	Password string   `mapstructure:"password"`
}

type KafkaConfig struct {
	Enable       bool     `mapstructure:"enable"`
	Brokers      []string `mapstructure:"brokers"`
	ArchiveTopic string   `mapstructure:"archive_topic"`
}

type AssistantConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Host       string `mapstructure:"host"`
	Model      string `mapstructure:"model"`
	TimeoutSec int    `mapstructure:"timeout_sec"`
}

type TurnConfig struct {
	Secret      string `mapstructure:"secret"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	PortTLS     int    `mapstructure:"port_tls"`
	TTLSec      int    `mapstructure:"ttl_sec"`
	StunServers string `mapstructure:"stun_servers"` // 逗号分隔
}

// CorsConfig 浏览器端工作台的跨域白名单
type CorsConfig struct {
	Origins []string `mapstructure:"origins"`
}
