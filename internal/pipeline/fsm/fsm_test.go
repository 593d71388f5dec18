package fsm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/transcoderd/internal/pipeline/model"
)

type (
	st string
	ev string
)

func TestMachine_DuplicateTransition(t *testing.T) {
	_, err := New[st, ev]("a", []Transition[st, ev]{
		{From: "a", Event: "go", To: "b"},
		{From: "a", Event: "go", To: "c"},
	})
	require.Error(t, err)
}

func TestMachine_GuardAndAction(t *testing.T) {
	var actions []string
	var observed []st
	m, err := New[st, ev]("a", []Transition[st, ev]{
		{From: "a", Event: "go", To: "b", Action: func(_ context.Context, from, to st, _ ev) error {
			actions = append(actions, string(from)+">"+string(to))
			return nil
		}},
		{From: "b", Event: "go", To: "c", Guard: func(context.Context, st, ev) error {
			return errors.New("blocked")
		}},
	}, WithObserver(func(_, to st, _ ev) { observed = append(observed, to) }))
	require.NoError(t, err)

	to, err := m.Fire(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, st("b"), to)

	_, err = m.Fire(context.Background(), "go")
	require.EqualError(t, err, "blocked")
	assert.Equal(t, st("b"), m.State())

	_, err = m.Fire(context.Background(), "stop")
	require.ErrorIs(t, err, ErrInvalidTransition)

	assert.Equal(t, []string{"a>b"}, actions)
	assert.Equal(t, []st{"b"}, observed)
}

func TestJob_HappyPath(t *testing.T) {
	m := NewJob()
	ctx := context.Background()
	for _, e := range []model.JobEvent{
		model.EvResolve, model.EvFetch, model.EvProbe, model.EvPlan,
		model.EvAudio, model.EvVideo, model.EvThumbnails, model.EvVerify, model.EvReport,
	} {
		_, err := m.Fire(ctx, e)
		require.NoError(t, err, e)
	}
	assert.Equal(t, model.StateReported, m.State())
	assert.True(t, m.State().IsTerminal())
	assert.False(t, m.Can(model.EvCancel))
	assert.False(t, m.Can(model.EvFail))
}

func TestJob_OptionalSteps(t *testing.T) {
	m := NewJob()
	ctx := context.Background()
	for _, e := range []model.JobEvent{
		model.EvResolve, model.EvFetch, model.EvProbe, model.EvPlan,
		model.EvVideo, model.EvVerify, model.EvReport,
	} {
		_, err := m.Fire(ctx, e)
		require.NoError(t, err, e)
	}
}

func TestJob_CancelAndFail(t *testing.T) {
	ctx := context.Background()

	m := NewJob()
	assert.False(t, m.Can(model.EvFail), "nothing to fail before the storage is resolved")
	to, err := m.Fire(ctx, model.EvCancel)
	require.NoError(t, err)
	assert.Equal(t, model.StateCancelled, to)

	m = NewJob()
	_, err = m.Fire(ctx, model.EvResolve)
	require.NoError(t, err)
	to, err = m.Fire(ctx, model.EvFail)
	require.NoError(t, err)
	assert.Equal(t, model.StateFailed, to)
	_, err = m.Fire(ctx, model.EvResolve)
	assert.Error(t, err)
}

func TestJob_SkippingStepsIsRejected(t *testing.T) {
	m := NewJob()
	_, err := m.Fire(context.Background(), model.EvVideo)
	require.Error(t, err)
	assert.Equal(t, model.StateIdle, m.State())
}
