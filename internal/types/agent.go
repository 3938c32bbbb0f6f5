package types

// ApplyResponse is returned by a node agent after applying a manifest
type ApplyResponse struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr,omitempty"`
}

// ErrorResponse is the body of a failed node agent request
type ErrorResponse struct {
	Error  string `json:"error"`
	Stderr string `json:"stderr,omitempty"`
}
