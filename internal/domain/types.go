package domain

// RequestContext carries authenticated user info when available.
type RequestContext struct {
	CustomerID string `json:"customerId"`
	Role       string `json:"role"`
	RequestID  string `json:"requestId"`
}
