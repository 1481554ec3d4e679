package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /readyz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
	Error       string `json:"error,omitempty"`
}

// EstimationMetrics is returned by GET /v1/metrics/estimations.
type EstimationMetrics struct {
	TotalEstimations int64             `json:"totalEstimations"`
	SuccessRate      float64           `json:"successRate"`
	ByTax            map[TaxCode]int64 `json:"parImpot"`
	CacheHitRate     float64           `json:"cacheHitRate"`
	ExternalErrors   int64             `json:"externalErrors"`
}

// TaxAvailability is one entry of GET /v1/impots.
type TaxAvailability struct {
	Code         TaxCode      `json:"code"`
	Title        string       `json:"title"`
	Availability Availability `json:"availability"`
}
