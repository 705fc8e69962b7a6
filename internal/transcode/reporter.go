package transcode

import (
	draptolib "github.com/five82/drapto"
)

// reporter forwards the drapto events that carry progress or problems and
// drops the descriptive summaries.
type reporter struct {
	callback func(Update)
}

func newReporter(callback func(Update)) *reporter {
	return &reporter{callback: callback}
}

func (r *reporter) Hardware(draptolib.HardwareSummary) {}

func (r *reporter) Initialization(s draptolib.InitializationSummary) {
	r.callback(Update{Stage: "initialization", Message: s.InputFile})
}

func (r *reporter) StageProgress(s draptolib.StageProgress) {
	r.callback(Update{Percent: float64(s.Percent), Stage: s.Stage, Message: s.Message})
}

func (r *reporter) CropResult(draptolib.CropSummary) {}

func (r *reporter) EncodingConfig(draptolib.EncodingConfigSummary) {}

func (r *reporter) EncodingStarted(uint64) {
	r.callback(Update{Stage: "encoding"})
}

func (r *reporter) EncodingProgress(s draptolib.ProgressSnapshot) {
	r.callback(Update{Percent: float64(s.Percent), Stage: "encoding"})
}

func (r *reporter) ValidationComplete(s draptolib.ValidationSummary) {
	if !s.Passed {
		r.callback(Update{Stage: "validation", Warning: "output validation failed"})
	}
}

func (r *reporter) EncodingComplete(s draptolib.EncodingOutcome) {
	r.callback(Update{Percent: 100, Stage: "complete", Message: s.OutputPath})
}

func (r *reporter) Warning(message string) {
	r.callback(Update{Warning: message})
}

func (r *reporter) Error(e draptolib.ReporterError) {
	r.callback(Update{Stage: "error", Warning: e.Title + ": " + e.Message})
}

func (r *reporter) OperationComplete(string) {}

func (r *reporter) BatchStarted(draptolib.BatchStartInfo) {}

func (r *reporter) FileProgress(draptolib.FileProgressContext) {}

func (r *reporter) BatchComplete(draptolib.BatchSummary) {}

var _ draptolib.Reporter = (*reporter)(nil)
