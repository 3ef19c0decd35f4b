package webrtc

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// 默认值与 coturn 常规部署一致
const (
	DefaultHost    = "localhost"
	DefaultPort    = "3478"
	DefaultTLSPort = "5349"
	DefaultTTL     = 86400 // 24h

	DefaultSTUNServers = "stun:stun.l.google.com:19302,stun:stun1.l.google.com:19302"
)

// Config TURN/STUN 下发配置。Secret 为空视为没部署 TURN, 只发 STUN。
type Config struct {
	Secret      string
	Host        string
	Port        string
	TLSPort     string
	TTL         int
	STUNServers string // 逗号分隔
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == "" {
		c.Port = DefaultPort
	}
	if c.TLSPort == "" {
		c.TLSPort = DefaultTLSPort
	}
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.STUNServers == "" {
		c.STUNServers = DefaultSTUNServers
	}
	return c
}

// MintCredentials 按 coturn lt-cred-mech 生成临时凭据:
// username = "<过期时间戳>:<用户名>", credential = base64(HMAC-SHA1(secret, username))
func MintCredentials(username, secret string, ttl int, now time.Time) (string, string) {
	expiry := now.Unix() + int64(ttl)
	tempUsername := fmt.Sprintf("%d:%s", expiry, username)

	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(tempUsername))
	credential := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return tempUsername, credential
}

// TURNURIs udp/tcp 明文口加一个 tls 口
func (c Config) TURNURIs() []string {
	return []string{
		fmt.Sprintf("turn:%s:%s?transport=udp", c.Host, c.Port),
		fmt.Sprintf("turn:%s:%s?transport=tcp", c.Host, c.Port),
		fmt.Sprintf("turns:%s:%s?transport=tcp", c.Host, c.TLSPort),
	}
}

func (c Config) STUNURLs() []string {
	parts := strings.Split(c.STUNServers, ",")
	urls := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			urls = append(urls, p)
		}
	}
	return urls
}
