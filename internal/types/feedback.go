package types

// FeedbackForm is the fixed-field survey submitted by the front-end.
type FeedbackForm struct {
	Clarity      string `json:"clarity"`
	Language     string `json:"language"`
	SolvedDoubts string `json:"solved_doubts"`
	Recommend    string `json:"recommend"`
	Comments     string `json:"comments"`
}

// FeedbackResult is the response of the feedback relay.
type FeedbackResult struct {
	Success bool   `json:"success,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Details string `json:"details,omitempty"`
	Status  int    `json:"status,omitempty"`
}
