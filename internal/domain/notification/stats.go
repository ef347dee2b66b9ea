package notification

import "time"

// Stats is a read-only rollup over a notification population.
type Stats struct {
	Total       int             `json:"total"`
	ByChannel   map[Channel]int `json:"by_channel"`
	ByStatus    map[Status]int  `json:"by_status"`
	SuccessRate float64         `json:"success_rate"`

	// AvgDeliveryMs is the mean of sentAt - createdAt over sent and read
	// records, in milliseconds. Pending and failed records are excluded.
	AvgDeliveryMs float64 `json:"avg_delivery_ms"`
}

// Aggregate computes statistics over the given population. In-flight pending
// records count toward the total but never toward latency.
func Aggregate(notifications []*Notification) Stats {
	stats := Stats{
		ByChannel: make(map[Channel]int),
		ByStatus:  make(map[Status]int),
	}

	var delivered int
	var latencySum time.Duration

	for _, n := range notifications {
		stats.Total++
		stats.ByChannel[n.Channel]++
		stats.ByStatus[n.Status]++

		if (n.Status == StatusSent || n.Status == StatusRead) && n.SentAt != nil {
			delivered++
			latencySum += n.SentAt.Sub(n.CreatedAt)
		}
	}

	if stats.Total > 0 {
		succeeded := stats.ByStatus[StatusSent] + stats.ByStatus[StatusRead]
		stats.SuccessRate = float64(succeeded) / float64(stats.Total) * 100
	}
	if delivered > 0 {
		stats.AvgDeliveryMs = float64(latencySum.Milliseconds()) / float64(delivered)
	}

	return stats
}
