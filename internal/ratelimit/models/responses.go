package models

// ExceededType tags 429 bodies so clients can tell them from other errors.
const ExceededType = "RATE_LIMIT_EXCEEDED"

// ExceededResponse is the body of a 429 response.
type ExceededResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter"`
	Type       string `json:"type"`
}

type ResetResponse struct {
	Reset    bool     `json:"reset"`
	Existed  bool     `json:"existed"`
	Identity string   `json:"identity"`
	Category Category `json:"category"`
}
