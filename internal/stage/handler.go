package stage

import "context"

// Batch identifies one catalog CSV awaiting a stage.
type Batch struct {
	Path string
	Name string
}

// Result tells the coordinator where the processed batch material lives.
// When OutputPath is set the stage rewrote the batch: the rewritten file is
// promoted to the next stage area under OutputName and the input is archived.
// A zero Result promotes the input file itself.
type Result struct {
	OutputPath string
	OutputName string
}

// Handler describes the contract the pipeline manager needs from each stage.
// Handlers never move batch files; placement is the coordinator's alone.
type Handler interface {
	Name() string
	Prepare(context.Context) error
	Execute(context.Context, Batch) (Result, error)
	HealthCheck(context.Context) Health
}
