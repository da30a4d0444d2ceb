package usage

import (
	"time"
)

// GetUsageStats summarizes the current day or hour.
func (m *Monitor) GetUsageStats(timeframe Timeframe) Stats {
	now := m.now().In(m.loc)
	day := now.Format(dayLayout)
	hour := now.Format(hourLayout)

	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{Timeframe: timeframe, Period: day}
	if timeframe == TimeframeHourly {
		stats.Period = hour
	}

	if b := m.costs[day]; b != nil {
		if timeframe == TimeframeHourly {
			stats.TotalCosts = b.hourly[now.Hour()].USD()
		} else {
			stats.TotalCosts = b.total.USD()
			stats.TotalCalls = b.calls
			stats.FailedCalls = b.failed
		}
	}

	var weighted, periodCalls float64
	for _, p := range m.patterns {
		var n int
		if timeframe == TimeframeHourly {
			n = p.hourly[hour]
		} else if d := p.daily[day]; d != nil {
			n = d.count
		}
		if n == 0 {
			continue
		}
		stats.ActiveUsers++
		if timeframe == TimeframeHourly {
			stats.TotalCalls += int64(n)
		}
		if p.total > 0 {
			weighted += float64(n) * float64(p.successful) / float64(p.total)
			periodCalls += float64(n)
		}
	}

	stats.SuccessRate = 1
	if periodCalls > 0 {
		stats.SuccessRate = weighted / periodCalls
	}
	return stats
}

// GetUserUsage returns the user's activity for the trailing days, oldest
// first. days is clamped to 1..90; days without activity are zero entries.
func (m *Monitor) GetUserUsage(userID string, days int) UserUsage {
	if days < 1 {
		days = 1
	}
	if days > maxUserUsageDays {
		days = maxUserUsageDays
	}
	now := m.now().In(m.loc)

	m.mu.Lock()
	defer m.mu.Unlock()

	usage := UserUsage{UserID: userID, Days: make([]DayUsage, 0, days)}
	p := m.patterns[userID]
	if p != nil {
		usage.TotalRequests = p.total
		usage.SuccessfulRequests = p.successful
	}

	start := now.AddDate(0, 0, -(days - 1))
	for i := 0; i < days; i++ {
		date := start.AddDate(0, 0, i).Format(dayLayout)
		entry := DayUsage{Date: date, Endpoints: map[string]int{}}
		if p != nil {
			if d := p.daily[date]; d != nil {
				entry.Requests = d.count
				for ep, n := range d.endpoints {
					entry.Endpoints[ep] = n
				}
			}
		}
		usage.Days = append(usage.Days, entry)
	}
	return usage
}

// DailyTotal returns the tracked cost for the day containing t.
func (m *Monitor) DailyTotal(t time.Time) float64 {
	day := t.In(m.loc).Format(dayLayout)
	m.mu.Lock()
	defer m.mu.Unlock()
	if b := m.costs[day]; b != nil {
		return b.total.USD()
	}
	return 0
}
