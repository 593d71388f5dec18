package video

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/transcoderd/internal/pipeline/exec/ffmpeg"
	"github.com/ManuGH/transcoderd/internal/pipeline/exec/supervisor"
	"github.com/ManuGH/transcoderd/internal/pipeline/manifest"
	"github.com/ManuGH/transcoderd/internal/pipeline/model"
	"github.com/ManuGH/transcoderd/internal/pipeline/rendition"
	"github.com/ManuGH/transcoderd/internal/pipeline/report"
	"github.com/ManuGH/transcoderd/internal/testutil"
)

type fixture struct {
	runner *testutil.Runner
	remote *testutil.Remote
	pub    *testutil.Publisher
	env    *rendition.Env
	req    Request
}

func newFixture(t *testing.T, codec model.Codec, qualities ...int) *fixture {
	t.Helper()
	f := &fixture{runner: &testutil.Runner{}, remote: &testutil.Remote{}, pub: &testutil.Publisher{}}
	f.env = &rendition.Env{
		FFmpeg:      "ffmpeg",
		Runner:      f.runner,
		Packager:    &testutil.Packager{},
		Reader:      testutil.Reader{},
		Remote:      f.remote,
		NewStreamID: testutil.Sequence(),
	}
	dir := t.TempDir()
	f.req = Request{
		Job: &model.Job{ID: "9", Attempts: 3, Data: model.JobData{
			SourceID: "src", Storage: "st", Filename: "movie.mkv", Codec: codec,
		}},
		Workspace: rendition.Workspace{Dir: dir, Base: "movie", Source: filepath.Join(dir, "movie.mkv")},
		Source:    model.SourceInfo{Duration: 25, FPS: 24, Width: 1920, Height: 1080, Codec: "h264"},
		Codec:     codec,
		Qualities: qualities,
		Settings:  []model.EncodingSetting{{Quality: 1080, CRF: 20, CQ: 30}, {Quality: 720, CRF: 22, CQ: 32}},
		Params:    []string{"-c:v", "libx264"},
		Manifest:  manifest.New(),
	}
	return f
}

func (f *fixture) pipeline(opts Options) *Pipeline {
	return New(f.env, report.New(f.pub, nil), opts)
}

func TestRun_SinglePass(t *testing.T) {
	f := newFixture(t, model.CodecH264, 1080, 720)
	require.NoError(t, f.pipeline(Options{}).Run(context.Background(), f.req))

	calls := f.runner.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, ffmpeg.RenditionPath(f.req.Workspace.Dir, "movie", 1080), calls[0].Args[len(calls[0].Args)-1])
	assert.False(t, calls[0].AllowRetry)
	assert.InDelta(t, 25.0, calls[0].Duration, 1e-9)

	assert.Equal(t, []model.Event{
		model.EventAddStreamVideo, model.EventAddStreamVideo, model.EventAddStreamManifest,
	}, f.pub.Events())
	assert.Equal(t, 1080, f.pub.Results[0].Progress.Quality)
	assert.Equal(t, "s1", f.pub.Results[0].Progress.StreamID)
	assert.Equal(t, "manifest_1.json", f.pub.Results[2].Progress.FileName)

	require.Len(t, f.remote.Moves, 3)
	assert.Equal(t, "src/s1", f.remote.Moves[0].Dest)
	assert.Equal(t, "src/s2", f.remote.Moves[1].Dest)
	assert.Equal(t, filepath.Join(f.req.Workspace.Dir, "manifest_1.json"), f.remote.Moves[2].Src)
	assert.Equal(t, "src/s3", f.remote.Moves[2].Dest)

	m := f.req.Manifest.Snapshot()
	require.Len(t, m.VideoTracks, 2)
	assert.Equal(t, 1080, m.VideoTracks[0].Height)
	assert.Equal(t, 720, m.VideoTracks[1].Height)
	assert.Equal(t, "s2/movie_720.mp4", m.VideoTracks[1].URI)
}

func TestRun_TwoPass(t *testing.T) {
	f := newFixture(t, model.CodecVP9, 720)
	require.NoError(t, f.pipeline(Options{}).Run(context.Background(), f.req))

	calls := f.runner.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[0].Args, "-pass")
	assert.Equal(t, "2", calls[1].Args[indexOf(calls[1].Args, "-pass")+1])
	assert.Equal(t, int(model.CodecVP9), f.pub.Results[0].Progress.Codec)
}

func TestRun_FailurePurgesStream(t *testing.T) {
	f := newFixture(t, model.CodecH264, 1080, 720, 480)
	f.runner.Fail = func(n int, _ supervisor.Invocation) error {
		if n == 1 {
			return &model.RunError{Outcome: model.OutcomeFailed, ExitCode: 1, Message: "x"}
		}
		return nil
	}
	err := f.pipeline(Options{}).Run(context.Background(), f.req)
	require.Error(t, err)
	assert.Equal(t, []string{"st:src/s2"}, f.remote.Purges)
	assert.Equal(t, []model.Event{model.EventAddStreamVideo}, f.pub.Events())
	assert.Len(t, f.runner.Calls(), 2, "later renditions are not attempted")
}

func TestRun_NoQualities(t *testing.T) {
	f := newFixture(t, model.CodecH264)
	assert.ErrorIs(t, f.pipeline(Options{}).Run(context.Background(), f.req), ErrNoQualities)
}

func TestRun_OverrideAndTune(t *testing.T) {
	f := newFixture(t, model.CodecH264, 720)
	f.req.Job.Data.AdvancedOptions = model.AdvancedOptions{
		H264Tune:         "film",
		OverrideSettings: []model.EncodingSetting{{Quality: 720, CRF: 17}},
	}
	require.NoError(t, f.pipeline(Options{}).Run(context.Background(), f.req))
	args := f.runner.Calls()[0].Args
	assert.Equal(t, "17", args[indexOf(args, "-crf")+1])
	assert.Equal(t, "film", args[indexOf(args, "-tune")+1])
}

func TestSegmented_RecoverableErrorRetriesSameIndex(t *testing.T) {
	f := newFixture(t, model.CodecH264, 720)
	failed := false
	f.runner.Fail = func(n int, _ supervisor.Invocation) error {
		if n == 1 && !failed {
			failed = true
			return &model.RunError{Outcome: model.OutcomeFailed, ExitCode: 187, Message: "glitch"}
		}
		return nil
	}
	p := f.pipeline(Options{SegmentSeconds: 10, Cooldown: time.Millisecond})
	require.NoError(t, p.Run(context.Background(), f.req))

	calls := f.runner.Calls()
	// three segments, one retry, one concat
	require.Len(t, calls, 5)
	dir := f.req.Workspace.Dir
	last := func(i int) string { return calls[i].Args[len(calls[i].Args)-1] }
	assert.Equal(t, ffmpeg.SegmentPath(dir, "movie", 720, 0), last(0))
	assert.Equal(t, ffmpeg.SegmentPath(dir, "movie", 720, 1), last(1))
	assert.Equal(t, ffmpeg.SegmentPath(dir, "movie", 720, 1), last(2))
	assert.Equal(t, ffmpeg.SegmentPath(dir, "movie", 720, 2), last(3))
	assert.True(t, calls[2].AllowRetry)
	assert.Equal(t, "10", calls[3].Args[indexOf(calls[3].Args, "-t")+1])
	assert.Equal(t, "20", calls[3].Args[indexOf(calls[3].Args, "-ss")+1])

	assert.Contains(t, calls[4].Args, ffmpeg.ConcatListPath(dir, "movie", 720))
	assert.Equal(t, ffmpeg.RenditionPath(dir, "movie", 720), last(4))
	assert.NoDirExists(t, filepath.Join(dir, ffmpeg.SegmentDir))
}

func TestSegmented_RetryAndTimeoutAreRecoverable(t *testing.T) {
	for _, outcome := range []model.Outcome{model.OutcomeRetryRequested, model.OutcomeTimedOut} {
		f := newFixture(t, model.CodecH264, 720)
		f.req.Source.Duration = 5
		f.runner.Fail = func(n int, _ supervisor.Invocation) error {
			if n == 0 {
				return &model.RunError{Outcome: outcome, ExitCode: -1}
			}
			return nil
		}
		require.NoError(t, f.pipeline(Options{SegmentSeconds: 10, Cooldown: time.Millisecond}).Run(context.Background(), f.req))
		assert.Len(t, f.runner.Calls(), 3, outcome.String())
	}
}

func TestSegmented_CancelAborts(t *testing.T) {
	f := newFixture(t, model.CodecH264, 720)
	f.runner.Fail = func(int, supervisor.Invocation) error {
		return &model.RunError{Outcome: model.OutcomeCancelled, ExitCode: -1}
	}
	err := f.pipeline(Options{SegmentSeconds: 10, Cooldown: time.Millisecond}).Run(context.Background(), f.req)
	assert.ErrorIs(t, err, model.ErrCancelled)
	assert.Len(t, f.runner.Calls(), 1)
	assert.Equal(t, []string{"st:src/s1"}, f.remote.Purges)
}

func TestSegmented_AttemptLimit(t *testing.T) {
	f := newFixture(t, model.CodecH264, 720)
	f.runner.Fail = func(int, supervisor.Invocation) error {
		return &model.RunError{Outcome: model.OutcomeFailed, ExitCode: 1}
	}
	err := f.pipeline(Options{SegmentSeconds: 10, Cooldown: time.Millisecond, MaxSegmentAttempts: 3}).
		Run(context.Background(), f.req)
	require.Error(t, err)
	assert.Len(t, f.runner.Calls(), 3)
}

func TestSegmented_StartFailureIsFatal(t *testing.T) {
	f := newFixture(t, model.CodecH264, 720)
	f.runner.Fail = func(int, supervisor.Invocation) error { return errors.New("exec: not found") }
	err := f.pipeline(Options{SegmentSeconds: 10, Cooldown: time.Millisecond}).Run(context.Background(), f.req)
	require.Error(t, err)
	assert.Len(t, f.runner.Calls(), 1)
}

func TestSegmentCount(t *testing.T) {
	assert.Equal(t, 3, SegmentCount(25, 10))
	assert.Equal(t, 2, SegmentCount(20, 10))
	assert.Equal(t, 1, SegmentCount(0, 10))
	assert.Equal(t, 1, SegmentCount(25, 0))
}

func indexOf(args []string, flag string) int {
	for i, a := range args {
		if a == flag {
			return i
		}
	}
	return -1
}
