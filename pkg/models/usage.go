package models

// Usage tracks integer token counters and matching cost floats for a model
// turn. Summation is commutative and associative (plain field-wise
// addition) — see spec invariant 5.
type Usage struct {
	Input      int `json:"input"`
	Output     int `json:"output"`
	CacheRead  int `json:"cache_read"`
	CacheWrite int `json:"cache_write"`
	TotalTokens int `json:"total_tokens"`

	Cost UsageCost `json:"cost"`
}

// UsageCost carries the dollar cost matching each Usage counter.
type UsageCost struct {
	Input      float64 `json:"input"`
	Output     float64 `json:"output"`
	CacheRead  float64 `json:"cache_read"`
	CacheWrite float64 `json:"cache_write"`
	Total      float64 `json:"total"`
}

// Add returns the field-wise sum of two Usage values.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		Input:       u.Input + o.Input,
		Output:      u.Output + o.Output,
		CacheRead:   u.CacheRead + o.CacheRead,
		CacheWrite:  u.CacheWrite + o.CacheWrite,
		TotalTokens: u.TotalTokens + o.TotalTokens,
		Cost: UsageCost{
			Input:      u.Cost.Input + o.Cost.Input,
			Output:     u.Cost.Output + o.Cost.Output,
			CacheRead:  u.Cost.CacheRead + o.Cost.CacheRead,
			CacheWrite: u.Cost.CacheWrite + o.Cost.CacheWrite,
			Total:      u.Cost.Total + o.Cost.Total,
		},
	}
}

// SumUsage folds Add over a list of assistant messages. Used by the session
// runner to aggregate usage over every assistant message in a run (spec §4.3).
func SumUsage(messages []AssistantMessage) Usage {
	var total Usage
	for _, m := range messages {
		total = total.Add(m.Usage)
	}
	return total
}
