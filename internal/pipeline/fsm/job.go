// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fsm

import (
	"github.com/ManuGH/transcoderd/internal/metrics"
	"github.com/ManuGH/transcoderd/internal/pipeline/model"
)

// JobMachine tracks one job run.
type JobMachine = Machine[model.JobState, model.JobEvent]

type jobTransition = Transition[model.JobState, model.JobEvent]

// JobTransitions is the orchestrator lifecycle. Audio and thumbnails are
// optional steps. Cancellation is accepted from every non-terminal state,
// failure from every state once the storage configuration is resolved.
func JobTransitions() []jobTransition {
	ts := []jobTransition{
		{From: model.StateIdle, Event: model.EvResolve, To: model.StateConfigResolved},
		{From: model.StateConfigResolved, Event: model.EvFetch, To: model.StateSourceFetched},
		{From: model.StateSourceFetched, Event: model.EvProbe, To: model.StateSourceProbed},
		{From: model.StateSourceProbed, Event: model.EvPlan, To: model.StateQualityPlanned},
		{From: model.StateQualityPlanned, Event: model.EvAudio, To: model.StateAudioDone},
		{From: model.StateQualityPlanned, Event: model.EvVideo, To: model.StateVideoDone},
		{From: model.StateAudioDone, Event: model.EvVideo, To: model.StateVideoDone},
		{From: model.StateVideoDone, Event: model.EvThumbnails, To: model.StateThumbnailsDone},
		{From: model.StateVideoDone, Event: model.EvVerify, To: model.StateVerified},
		{From: model.StateThumbnailsDone, Event: model.EvVerify, To: model.StateVerified},
		{From: model.StateVerified, Event: model.EvReport, To: model.StateReported},
	}
	live := []model.JobState{
		model.StateIdle,
		model.StateConfigResolved,
		model.StateSourceFetched,
		model.StateSourceProbed,
		model.StateQualityPlanned,
		model.StateAudioDone,
		model.StateVideoDone,
		model.StateThumbnailsDone,
		model.StateVerified,
	}
	for _, s := range live {
		ts = append(ts, jobTransition{From: s, Event: model.EvCancel, To: model.StateCancelled})
		if s != model.StateIdle {
			ts = append(ts, jobTransition{From: s, Event: model.EvFail, To: model.StateFailed})
		}
	}
	return ts
}

// NewJob returns a machine in StateIdle that counts every transition.
func NewJob() *JobMachine {
	m, err := New(model.StateIdle, JobTransitions(),
		WithObserver(func(from, to model.JobState, _ model.JobEvent) {
			metrics.RecordTransition(string(from), string(to))
		}))
	if err != nil {
		// the table is static; a duplicate is a programming error
		panic(err)
	}
	return m
}
