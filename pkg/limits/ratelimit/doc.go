// Package ratelimit provides fixed-window rate limiting by category and tier.
//
// # Categories
//
// Every inbound request is checked against one category policy keyed by the
// caller identity (user id when authenticated, client IP otherwise):
//
//	auth     15 min / 5 attempts, successful attempts refunded
//	general  15 min / 500
//	upload   1 h / 20, plus 100 per day
//	admin    1 h / 50
//	burst    1 min / 30, checked ahead of every other category
//	ai       1 h window, max and daily max by tier
//	         (free 10/25, paid 100/500, premium 300/2000)
//
// # Windows
//
// Each rule of a policy keeps an independent fixed window per identity.
// The window opens on the first request and resets once it has elapsed.
// Rejected requests are counted too, so a caller hammering a closed window
// does not get extra capacity back.
//
//	limiter := ratelimit.NewLimiter(cfg.RateLimit, ratelimit.NewMemoryStore())
//	res, err := limiter.CheckRequest(ctx, ratelimit.CategoryAI, userID, ratelimit.TierFree)
//	if errors.Is(err, ratelimit.ErrRateLimitExceeded) {
//	    // res.Message, res.RetryAfter
//	}
//
// # Stores
//
// MemoryStore keeps windows in process. RedisStore keeps them in Redis with
// an atomic Lua script so several processes can share quotas.
//
// # Concurrent Limiter
//
// ConcurrentLimiter is an atomic counting semaphore used to cap in-flight
// upstream calls.
package ratelimit
