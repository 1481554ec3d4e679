package domain

// MaxSummaryLength bounds the prose summary in characters.
const MaxSummaryLength = 2000

// SummaryRequest is sent to the remote summarizer agent.
type SummaryRequest struct {
	Estimation *AggregatedEstimation `json:"estimation"`
	Draft      string                `json:"draft"`
	MaxLength  int                   `json:"max_length"`
}

// SummaryResponse is returned by the summarizer.
type SummaryResponse struct {
	Summary string `json:"summary"`
	Source  string `json:"source"`
}
