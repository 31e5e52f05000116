package harness

// Trace event types.
const (
	EventPush    = "push"
	EventPull    = "pull"
	EventAdvance = "advance"
)

// TraceEvent is the observable outcome of one flow step.
type TraceEvent struct {
	Seq       int            `json:"seq"`
	Type      string         `json:"type"`
	HubID     string         `json:"hub_id,omitempty"`
	Status    string         `json:"status,omitempty"`
	Records   int            `json:"records,omitempty"`
	Accepted  int            `json:"accepted,omitempty"`
	Conflicts []string       `json:"conflicts,omitempty"`
	Updates   map[string]int `json:"updates,omitempty"`
	Error     string         `json:"error,omitempty"`
	Advance   string         `json:"advance,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds one event per flow step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// add appends ev with the next sequence number.
func (r *Result) add(ev TraceEvent) {
	ev.Seq = len(r.Trace) + 1
	r.Trace = append(r.Trace, ev)
}

// Count returns how many trace events have type typ.
func (r *Result) Count(typ string) int {
	n := 0
	for _, ev := range r.Trace {
		if ev.Type == typ {
			n++
		}
	}
	return n
}
