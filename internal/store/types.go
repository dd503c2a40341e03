package store

// Run is one journaled session: a simulated scenario or a live subject.
type Run struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	SourceHash    string `json:"source_hash"`
	EngineVersion string `json:"engine_version"`
	IRVersion     string `json:"ir_version"`
}

// Pick is one manager evaluation that entered or exited rules.
//
// Enter and Exit describe each rule by its sorted condition attribute
// names.
type Pick struct {
	RunID   string     `json:"run_id"`
	Ord     int64      `json:"ord"`
	Step    int64      `json:"step"`
	Manager string     `json:"manager"`
	Enter   [][]string `json:"enter"`
	Exit    [][]string `json:"exit"`
	Current []string   `json:"current"`
	In      []string   `json:"in"`
	Out     []string   `json:"out"`
}

// Settlement records how one queued job ended.
type Settlement struct {
	RunID   string   `json:"run_id"`
	Seq     int64    `json:"seq"`
	Manager string   `json:"manager"`
	Outcome string   `json:"outcome"`
	In      []string `json:"in"`
	Out     []string `json:"out"`
	Error   string   `json:"error,omitempty"`
}
