package harness

// Trace event types.
const (
	EventInvalidate  = "invalidate"
	EventInvalidated = "invalidated"
	EventSkipped     = "skipped"
	EventAction      = "action"
	EventError       = "error"
)

// TraceEvent is one entry of a scenario trace. Records are named by ref.
type TraceEvent struct {
	Type string `json:"type"`
	Seq  int64  `json:"seq"`

	// Record is the originating record (invalidate, skipped) or the record
	// whose action fired (action).
	Record string `json:"record,omitempty"`

	// Tag is "key=value" for an invalidate_tag step.
	Tag string `json:"tag,omitempty"`

	Cause string `json:"cause,omitempty"`

	// Root is the cascade root invalidation id (invalidated).
	Root string `json:"root,omitempty"`

	// Records lists invalidated records in binding order (invalidated).
	Records []string `json:"records,omitempty"`

	// Action, Command, Args and ExitCode describe a fired action.
	Action   string   `json:"action,omitempty"`
	Command  string   `json:"command,omitempty"`
	Args     []string `json:"args,omitempty"`
	ExitCode int      `json:"exit_code,omitempty"`

	// Code is the error code (error).
	Code string `json:"code,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every invalidation, action and error in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	seq int64
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// record appends evt with the next sequence number.
func (r *Result) record(evt TraceEvent) {
	r.seq++
	evt.Seq = r.seq
	r.Trace = append(r.Trace, evt)
}

// FiredActions returns the refs of the records whose actions fired, in order.
func (r *Result) FiredActions() []string {
	refs := []string{}
	for _, evt := range r.Trace {
		if evt.Type == EventAction {
			refs = append(refs, evt.Record)
		}
	}
	return refs
}
