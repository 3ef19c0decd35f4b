package security

import (
	"net/http"
	"strings"

	"TeamSpace/service/gateway"

	"github.com/gin-gonic/gin"
)

// —— context key ——
// 下游 handler 统一用这俩 key 取身份
const (
	CtxTokenKey    = "authorization" // string
	CtxIdentityKey = "authIdentity"  // gateway.Identity
)

type Options struct {
	// 读取哪个请求头
	HeaderToken               string // 默认 "authorization"
	EnableAuthorizationBearer bool   // 兼容 Authorization: Bearer xxx, 默认 true
}

func DefaultOptions() *Options {
	return &Options{
		HeaderToken:               CtxTokenKey,
		EnableAuthorizationBearer: true,
	}
}

// 进程级校验器, 启动时 Configure 一次再挂路由
var verifier gateway.TokenVerifier

func Configure(v gateway.TokenVerifier) { verifier = v }

// Middleware 取出 bearer token, 校验通过后把身份写进请求上下文。
func Middleware(opts *Options) gin.HandlerFunc {
	if opts == nil {
		opts = DefaultOptions()
	}
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader(opts.HeaderToken))

		// 兼容 Authorization: Bearer xxx; 其他 scheme(Basic 等)不认
		if token != "" && opts.EnableAuthorizationBearer {
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[len("bearer "):])
			} else if strings.ContainsRune(token, ' ') {
				token = ""
			}
		}

		if token == "" {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Not authenticated"})
			return
		}
		if verifier == nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "auth not configured"})
			return
		}
		who, err := verifier.VerifyToken(c.Request.Context(), token)
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Could not validate credentials"})
			return
		}
		c.Set(CtxTokenKey, token)
		c.Set(CtxIdentityKey, who)
		c.Next()
	}
}

// Current 读出 Middleware 放进上下文的身份。
func Current(c *gin.Context) (gateway.Identity, bool) {
	v, ok := c.Get(CtxIdentityKey)
	if !ok {
		return gateway.Identity{}, false
	}
	who, ok := v.(gateway.Identity)
	return who, ok
}
