package pipeline

// The pipeline is an explicit state machine. Each request walks the phases
// in order; the only branch is at validation, which either proceeds to
// execution or skips straight to the report. A terminal stage error moves
// to phaseFailed and stops the walk.

import (
	"context"

	"github.com/google/uuid"
)

type phase int

const (
	phaseSchemaAnalysis phase = iota
	phaseGeneration
	phaseValidation
	phaseExecution
	phaseAnalysis
	phaseVisualization
	phaseReport
	phaseDone
	phaseFailed
)

func (ph phase) String() string {
	switch ph {
	case phaseSchemaAnalysis:
		return "schema_analysis"
	case phaseGeneration:
		return "generation"
	case phaseValidation:
		return "validation"
	case phaseExecution:
		return "execution"
	case phaseAnalysis:
		return "analysis"
	case phaseVisualization:
		return "visualization"
	case phaseReport:
		return "report"
	case phaseDone:
		return "done"
	case phaseFailed:
		return "failed"
	}
	return "unknown"
}

// Run executes the full workflow for one question. The returned state
// always carries the trace messages and any partial results; err is non-nil
// exactly when a stage failed terminally, in which case it is the state's
// StageError.
func (p *Pipeline) Run(ctx context.Context, question, database string) (*State, error) {
	st := &State{
		Question: question,
		Database: database,
		id:       uuid.NewString()[:8],
	}

	ph := phaseSchemaAnalysis
	for ph != phaseDone && ph != phaseFailed {
		ph = p.step(ctx, st, ph)
	}

	if st.Err != nil {
		return st, st.Err
	}
	return st, nil
}

// step runs one stage and returns the next phase. Transitions are a
// deterministic function of the current phase and the stage outcome.
func (p *Pipeline) step(ctx context.Context, st *State, ph phase) phase {
	switch ph {
	case phaseSchemaAnalysis:
		p.logInfo("pipeline: step 1 - schema analysis", "question", truncate(st.Question, 120))
		if serr := p.analyzeSchema(ctx, st); serr != nil {
			return p.fail(st, serr)
		}
		return phaseGeneration

	case phaseGeneration:
		p.logInfo("pipeline: step 2 - sql generation")
		if serr := p.generateSQL(ctx, st); serr != nil {
			return p.fail(st, serr)
		}
		return phaseValidation

	case phaseValidation:
		p.logInfo("pipeline: step 3 - validation", "sql", truncate(st.SQL, 200))
		p.validate(st)
		if !st.Validation.SafeToExecute {
			// Rejection is not a failure: skip execution, analysis and
			// visualization, but still produce a report documenting why.
			p.logWarn("pipeline: query rejected by validation", "findings", st.Validation.Findings)
			return phaseReport
		}
		return phaseExecution

	case phaseExecution:
		p.logInfo("pipeline: step 4 - query execution")
		if serr := p.execute(ctx, st); serr != nil {
			return p.fail(st, serr)
		}
		return phaseAnalysis

	case phaseAnalysis:
		p.logInfo("pipeline: step 5 - analysis")
		p.analyze(ctx, st)
		return phaseVisualization

	case phaseVisualization:
		p.logInfo("pipeline: step 6 - visualization")
		p.visualize(st)
		return phaseReport

	case phaseReport:
		p.logInfo("pipeline: step 7 - report generation")
		if serr := p.generateReport(st); serr != nil {
			return p.fail(st, serr)
		}
		return phaseDone
	}
	return phaseFailed
}

func (p *Pipeline) fail(st *State, serr *StageError) phase {
	st.Err = serr
	st.addMessage("Error in " + serr.Stage + ": " + serr.Detail)
	p.logWarn("pipeline: stage failed", "stage", serr.Stage, "kind", serr.Kind, "error", serr.Detail)
	return phaseFailed
}
