package harness

// TraceEvent is one observable effect of a step: a surface call, a
// new-incident alert, an external lookup or a clock change.
type TraceEvent struct {
	Seq  int64  `json:"seq"`
	Step int    `json:"step"`
	Op   string `json:"op"`
}

// State is the observable end state of a scenario.
type State struct {
	// Incidents lists the current set, most recent first.
	Incidents []string `json:"incidents"`
	// Markers is the number of markers on the surface.
	Markers int `json:"markers"`
	// Routes lists the asset IDs of the drawn routes.
	Routes []string `json:"routes"`
	// Alerts counts new-incident events.
	Alerts int `json:"alerts"`
	// Highlighted is the selected asset, "" when none.
	Highlighted string `json:"highlighted"`
	// Lookups counts external lookups per token.
	Lookups map[string]int `json:"lookups"`
	// CacheEntries is the geocode cache size.
	CacheEntries int `json:"cache_entries"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion holds.
	Pass bool `json:"pass"`

	// Trace lists every effect in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failure messages.
	Errors []string `json:"errors,omitempty"`

	// State is the final state.
	State State `json:"state"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State: State{
			Incidents: []string{},
			Routes:    []string{},
			Lookups:   map[string]int{},
		},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an effect.
func (r *Result) AddTrace(seq int64, step int, op string) {
	r.Trace = append(r.Trace, TraceEvent{Seq: seq, Step: step, Op: op})
}
