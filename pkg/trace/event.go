// Package trace reads and writes line-granularity event streams and
// replays them into profiles. A stream is a sequence of JSON records,
// one per line, optionally gzip-compressed. Declaration records
// introduce units and functions under stream-local ids, event records
// reference those ids, and replay remaps them onto a fresh registry.
package trace

// Record kinds. Declaration records must precede the events that
// reference them.
const (
	KindUnit   = "unit"
	KindFunc   = "func"
	KindEnter  = "enter"
	KindStep   = "step"
	KindLeave  = "leave"
	KindSample = "sample"
	KindMeta   = "meta"
)

// Site is one frame of a sample stack, innermost first.
type Site struct {
	Func uint32 `json:"f"`
	Line int    `json:"line"`
}

// Record is a single trace stream line. Which fields are meaningful
// depends on Kind; the zero value of every other field is omitted on
// the wire.
type Record struct {
	Kind   string `json:"k"`
	Unit   uint32 `json:"u,omitempty"`
	Func   uint32 `json:"f,omitempty"`
	Name   string `json:"name,omitempty"`
	Line   int    `json:"line,omitempty"`
	Thread int64  `json:"tid,omitempty"`
	Time   int64  `json:"t,omitempty"`
	Stack  []Site `json:"stack,omitempty"`
	Key    string `json:"key,omitempty"`
	Value  string `json:"value,omitempty"`
}
