package pipeline

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/ppiankov/proofpulse/internal/jobstore"
	"github.com/ppiankov/proofpulse/internal/model"
)

// Check ingests raw as a new job, runs it to completion and returns the
// result. It is the synchronous path used by the CLI.
func (p *Pipeline) Check(ctx context.Context, inputType model.InputType, raw string) (*model.Result, error) {
	jobID := uuid.NewString()
	if err := p.store.Initialize(ctx, jobID, inputType, raw, ""); err != nil {
		return nil, err
	}
	if err := p.Run(ctx, jobID); err != nil {
		return nil, err
	}

	var res model.Result
	found, err := p.store.GetData(ctx, jobID, jobstore.KeyFinalResult, &res)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, eris.Errorf("job %s finished without a result", jobID)
	}
	return &res, nil
}
