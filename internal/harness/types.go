package harness

// Trace event types.
const (
	EventCall    = "call"    // request reached the backend
	EventSend    = "send"    // command written to the push transport
	EventNotify  = "notify"  // user notification
	EventUnread  = "unread"  // unread count changed
	EventDivider = "divider" // unread divider shown or hidden
	EventError   = "error"   // event processing failed
)

// TraceEvent is one externally visible effect of the engine.
type TraceEvent struct {
	Seq          int64  `json:"seq"`
	Type         string `json:"type"`
	Op           string `json:"op,omitempty"`
	Conversation string `json:"conversation,omitempty"`
	Detail       string `json:"detail,omitempty"`
	Count        *int   `json:"count,omitempty"`
}

// State summarizes the engine after the last step.
type State struct {
	Active      string   `json:"active,omitempty"`
	Receipt     string   `json:"receipt"`
	Recent      []string `json:"recent"`
	UnreadTotal int      `json:"unread_total"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect_error and assertion held.
	Pass bool `json:"pass"`

	// Trace holds every effect in the order it happened.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	State State `json:"state"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  State{Recent: []string{}},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Count returns how many trace events have type typ and, when op is not
// empty, op.
func (r *Result) Count(typ, op string) int {
	n := 0
	for _, ev := range r.Trace {
		if ev.Type == typ && (op == "" || ev.Op == op) {
			n++
		}
	}
	return n
}
