package eventmodels

type TelemetryLineType string

const (
	TelemetryLineTypeProgress TelemetryLineType = "progress"
	TelemetryLineTypeError    TelemetryLineType = "error"
)

// TelemetryLine is the shape of a single line of newline-delimited JSON read
// from a strategy subprocess's standard error. Lines that fail to parse, or
// parse without a recognized type, are plain diagnostic text.
type TelemetryLine struct {
	Type       TelemetryLineType `json:"type"`
	Stage      ProgressStage     `json:"stage,omitempty"`
	Progress   float64           `json:"progress,omitempty"`
	Message    string            `json:"message,omitempty"`
	ElapsedMs  int64             `json:"elapsed_ms,omitempty"`
	BarsLoaded int               `json:"bars_loaded,omitempty"`
}
