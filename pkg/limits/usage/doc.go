// Package usage aggregates API call costs and raises threshold alerts.
//
// TrackAPICall is the only ingestion point. Each call is folded into the
// cost bucket of its day and hour and into the caller's usage pattern, then
// the rules are evaluated in order:
//
//	DAILY_COST_EXCEEDED         HIGH    day total > daily_cost_limit
//	HOURLY_COST_EXCEEDED        HIGH    hour total > hourly_cost_limit
//	USER_DAILY_LIMIT_EXCEEDED   MEDIUM  user calls today > per_user_daily_limit
//	SUSPICIOUS_ACTIVITY         HIGH    user calls this minute > suspicious_per_minute
//	USER_HOURLY_LIMIT_EXCEEDED  MEDIUM  user calls this hour > per_user_hourly_limit
//
// Rules are not debounced: an alert fires on every call while its condition
// holds. Alerts go through a Notifier with a bounded buffer and are dropped,
// never blocking, when it is full.
//
// Queue depth and error rate are evaluated on a cron schedule, and a second
// schedule drops aggregates older than the retention window.
package usage
