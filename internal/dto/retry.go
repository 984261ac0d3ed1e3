package dto

// ==================== Ledger Retry DTOs ====================

// PendingWriteListResponse parked off-chain writes
type PendingWriteListResponse struct {
	Success bool        `json:"success"`
	Status  string      `json:"status,omitempty"`
	Count   int         `json:"count"`
	Writes  interface{} `json:"writes"`
}

// RetryRunResponse result of a manual retry pass
type RetryRunResponse struct {
	Success   bool   `json:"success"`
	Recovered int    `json:"recovered"`
	Message   string `json:"message"`
}
