package domain

// Outcome is the terminal result of a guarded invocation. Result is only
// meaningful when Success is true; Err is only set when it is false.
// Attempts counts attempts actually dispatched, so a circuit-breaker
// rejection reports zero.
type Outcome struct {
	Success  bool    `json:"success"`
	Result   any     `json:"-"`
	Err      error   `json:"-"`
	Attempts int     `json:"attempts"`
	Metrics  Metrics `json:"metrics"`
}

// Error returns the failure text, or "" for successful outcomes.
func (o Outcome) Error() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}
