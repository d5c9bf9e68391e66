package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/assetpress/internal/logfields"
	"git.home.luguber.info/inful/assetpress/internal/metrics"
)

// RunStages executes stages in order, recording timing and stopping on the
// first fatal error. Warning-kind errors are recorded and execution continues.
func RunStages(ctx context.Context, rs *RunState, stages []StageDef) error {
	var warning *StageError

	for _, st := range stages {
		select {
		case <-ctx.Done():
			se := NewCanceledStageError(st.Name, ctx.Err())
			rs.Recorder.IncStageResult(string(st.Name), metrics.ResultCanceled)
			return se
		default:
		}

		t0 := time.Now()
		err := st.Fn(ctx, rs)
		dur := time.Since(t0)

		rs.Manifest.AddTiming(string(st.Name), dur)
		rs.Recorder.ObserveStageDuration(string(st.Name), dur)

		out := classify(st.Name, err)
		rs.Recorder.IncStageResult(string(st.Name), out.result)

		switch {
		case out.err == nil:
			slog.Debug("Stage completed",
				logfields.Stage(string(st.Name)),
				logfields.DurationMS(float64(dur.Milliseconds())))
		case out.abort:
			slog.Error("Stage failed",
				logfields.Stage(string(st.Name)),
				logfields.Error(out.err))
			return out.err
		default:
			slog.Warn("Stage completed with warnings",
				logfields.Stage(string(st.Name)),
				logfields.Error(out.err))
			if warning == nil {
				warning = out.err
			}
		}
	}

	if warning != nil {
		return warning
	}
	return nil
}

type stageOutcome struct {
	err    *StageError
	result metrics.ResultLabel
	abort  bool
}

func classify(stage StageName, err error) stageOutcome {
	if err == nil {
		return stageOutcome{result: metrics.ResultSuccess}
	}

	var se *StageError
	if !errors.As(err, &se) {
		// Raw errors from a stage are treated as fatal.
		se = NewFatalStageError(stage, err)
	}

	switch se.Kind {
	case StageErrorWarning:
		return stageOutcome{err: se, result: metrics.ResultWarning}
	case StageErrorCanceled:
		return stageOutcome{err: se, result: metrics.ResultCanceled, abort: true}
	default:
		return stageOutcome{err: se, result: metrics.ResultFatal, abort: true}
	}
}
