package eventmodels

type ProgressStage string

const (
	ProgressStageFetchingData ProgressStage = "fetching_data"
	ProgressStageRunning      ProgressStage = "running"
	ProgressStageComplete     ProgressStage = "complete"
	ProgressStageError        ProgressStage = "error"
)

// IsTerminal reports whether no further events can follow this stage.
func (s ProgressStage) IsTerminal() bool {
	return s == ProgressStageComplete || s == ProgressStageError
}
