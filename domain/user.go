package domain

// Operator is the single account allowed to use the HTTP API.
type Operator struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}
