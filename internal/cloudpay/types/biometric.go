package types

type EnrollRequest struct {
	CustomerID string `json:"customer_id,omitempty"`
	UserID     string `json:"user_id,omitempty"`
	Sample     string `json:"fingerprint_template"`
}

type EnrollResponse struct {
	OK                bool   `json:"ok"`
	RecordID          string `json:"record_id"`
	CustomerID        string `json:"customer_id,omitempty"`
	UserID            string `json:"user_id,omitempty"`
	FingerprintPrefix string `json:"fingerprint_prefix"`
	RegisteredAt      string `json:"registered_at"`
}

type VerifyRequest struct {
	Sample string `json:"fingerprint_template"`
}

type VerifyResponse struct {
	OK                bool   `json:"ok"`
	Matched           bool   `json:"matched"`
	CustomerID        string `json:"customer_id,omitempty"`
	UserID            string `json:"user_id,omitempty"`
	VerificationCount int64  `json:"verification_count,omitempty"`
	ServerTime        string `json:"server_time"`
}

type EraseResponse struct {
	OK      bool   `json:"ok"`
	Kind    string `json:"kind"`
	ID      string `json:"id"`
	Deleted int64  `json:"deleted"`
}
