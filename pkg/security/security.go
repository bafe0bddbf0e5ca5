package security

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// CORS 中间件 仅放行白名单内的Origin，分析接口携带凭证跨域调用
func CORS(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}

	return func(c *gin.Context) {
		if origin := c.Request.Header.Get("Origin"); origin != "" {
			if _, ok := allowed[origin]; ok {
				c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
				c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Accept, Origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Secure 中间件 基础安全响应头
func Secure() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		if c.Request.TLS != nil {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		}
		c.Next()
	}
}

// limiterPool 按客户端IP维护限流器，闲置条目定期回收。
// 跨课程分析是重查询，限流兜底防止单个前端把服务拖垮。
type limiterPool struct {
	mu       sync.Mutex
	clients  map[string]*clientLimiter
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	lastScan time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLimiterPool(maxRequests int, window time.Duration) *limiterPool {
	idle := window * 3
	if idle < time.Minute {
		idle = time.Minute
	}
	return &limiterPool{
		clients: make(map[string]*clientLimiter),
		limit:   rate.Every(window / time.Duration(maxRequests)),
		burst:   maxRequests,
		idleTTL: idle,
	}
}

func (p *limiterPool) allow(key string) bool {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	// 顺带清理，省掉后台goroutine
	if now.Sub(p.lastScan) > time.Minute {
		for k, cl := range p.clients {
			if now.Sub(cl.lastSeen) > p.idleTTL {
				delete(p.clients, k)
			}
		}
		p.lastScan = now
	}

	cl, ok := p.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(p.limit, p.burst)}
		p.clients[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter.Allow()
}

// RateLimiter 限流中间件 按IP限流
func RateLimiter(maxRequests int, window time.Duration) gin.HandlerFunc {
	pool := newLimiterPool(maxRequests, window)

	return func(c *gin.Context) {
		if !pool.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
