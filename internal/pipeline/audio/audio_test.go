package audio

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/transcoderd/internal/pipeline/exec/supervisor"
	"github.com/ManuGH/transcoderd/internal/pipeline/manifest"
	"github.com/ManuGH/transcoderd/internal/pipeline/model"
	"github.com/ManuGH/transcoderd/internal/pipeline/rendition"
	"github.com/ManuGH/transcoderd/internal/pipeline/report"
	"github.com/ManuGH/transcoderd/internal/testutil"
)

var (
	stereo     = model.AudioTrack{Index: 1, Channels: 2, Language: "en", Default: true}
	surround   = model.AudioTrack{Index: 2, Channels: 6, Language: "en"}
	commentary = model.AudioTrack{Index: 3, Channels: 2, Language: "fr"}
)

func TestSelect_DefaultOnly(t *testing.T) {
	sel, err := Select([]model.AudioTrack{stereo, surround}, model.AdvancedOptions{})
	require.NoError(t, err)
	assert.Equal(t, stereo, sel.Primary)
	assert.Nil(t, sel.Surround)
	assert.Empty(t, sel.Extras)
}

func TestSelect_AllowList(t *testing.T) {
	sel, err := Select([]model.AudioTrack{stereo, surround, commentary}, model.AdvancedOptions{
		SelectAudioTracks: []int{1, 2},
		ExtraAudioTracks:  []int{2, 3},
	})
	require.NoError(t, err)
	assert.Equal(t, stereo, sel.Primary)
	require.NotNil(t, sel.Surround)
	assert.Equal(t, surround, *sel.Surround)
	assert.Equal(t, []model.AudioTrack{commentary}, sel.Extras)
}

func TestSelect_SurroundOnlyIsDownmixed(t *testing.T) {
	tracks := []model.AudioTrack{{Index: 1, Channels: 6, Default: true}}
	sel, err := Select(tracks, model.AdvancedOptions{})
	require.NoError(t, err)
	require.NotNil(t, sel.Surround)

	encodes := plan(sel, Params{}, "en")
	require.Len(t, encodes, 4)
	assert.Equal(t, model.AudioAACSurround, encodes[0].codec)
	assert.True(t, encodes[0].isDef)
	assert.Equal(t, model.AudioOpusSurround, encodes[1].codec)
	assert.Equal(t, model.AudioAAC, encodes[2].codec)
	assert.True(t, encodes[2].downmix)
	assert.False(t, encodes[2].isDef)
	assert.Equal(t, model.AudioOpus, encodes[3].codec)
	assert.True(t, encodes[3].downmix)
}

func TestSelect_NoTracks(t *testing.T) {
	_, err := Select(nil, model.AdvancedOptions{})
	assert.Error(t, err)
}

func TestPlan_OpusSurroundOnlyForStandardLayouts(t *testing.T) {
	quad := model.AudioTrack{Index: 4, Channels: 4}
	encodes := plan(Selection{Primary: stereo, Surround: &quad}, Params{}, "")
	codecs := make([]model.AudioCodec, 0, len(encodes))
	for _, e := range encodes {
		codecs = append(codecs, e.codec)
	}
	assert.Equal(t, []model.AudioCodec{model.AudioAACSurround, model.AudioAAC, model.AudioOpus}, codecs)
	assert.True(t, SurroundLayout(5))
	assert.True(t, SurroundLayout(8))
	assert.False(t, SurroundLayout(4))
	assert.False(t, SurroundLayout(9))
}

func TestPlan_ExtrasUseOwnLanguage(t *testing.T) {
	encodes := plan(Selection{Primary: stereo, Extras: []model.AudioTrack{commentary}}, Params{}, "ja")
	require.Len(t, encodes, 4)
	assert.Equal(t, "ja", encodes[0].language)
	assert.Equal(t, "fr", encodes[2].language)
	assert.False(t, encodes[2].isDef)
}

type fixture struct {
	runner *testutil.Runner
	remote *testutil.Remote
	pub    *testutil.Publisher
	pipe   *Pipeline
	req    Request
}

func newFixture(t *testing.T, tracks ...model.AudioTrack) *fixture {
	t.Helper()
	f := &fixture{runner: &testutil.Runner{}, remote: &testutil.Remote{}, pub: &testutil.Publisher{}}
	env := &rendition.Env{
		FFmpeg:      "ffmpeg",
		Runner:      f.runner,
		Packager:    &testutil.Packager{},
		Reader:      testutil.Reader{},
		Remote:      f.remote,
		NewStreamID: testutil.Sequence(),
	}
	f.pipe = New(env, report.New(f.pub, nil))
	dir := t.TempDir()
	f.req = Request{
		Job: &model.Job{ID: "7", Attempts: 3, Data: model.JobData{
			SourceID: "src", Storage: "st", Filename: "movie.mkv", Codec: model.CodecH264,
		}},
		Workspace: rendition.Workspace{Dir: dir, Base: "movie", Source: filepath.Join(dir, "movie.mkv")},
		Source:    model.SourceInfo{Duration: 14, AudioTracks: tracks},
		Params:    Params{AAC: []string{"-c:a", "aac"}, Opus: []string{"-c:a", "libopus"}},
		Manifest:  manifest.New(),
		Language:  "en",
	}
	return f
}

func TestRun_Stereo(t *testing.T) {
	f := newFixture(t, stereo)
	require.NoError(t, f.pipe.Run(context.Background(), f.req))

	calls := f.runner.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, supervisor.KindEncode, calls[0].Kind)
	assert.Equal(t, "7", calls[0].JobID)
	assert.Contains(t, calls[1].Args, "128K")

	require.Len(t, f.remote.Moves, 2)
	assert.Equal(t, testutil.Move{
		Src: filepath.Join(f.req.Workspace.Dir, "movie_audio_1.mp4"), Storage: "st", Dest: "src/s1",
	}, f.remote.Moves[0])
	assert.Equal(t, "src/s2", f.remote.Moves[1].Dest)

	assert.Equal(t, []model.Event{model.EventAddStreamAudio, model.EventAddStreamAudio}, f.pub.Events())
	assert.Equal(t, int(model.AudioAAC), f.pub.Results[0].Progress.Codec)
	assert.Equal(t, int(model.AudioOpus), f.pub.Results[1].Progress.Codec)

	m := f.req.Manifest.Snapshot()
	require.Len(t, m.AudioTracks, 2)
	assert.Equal(t, "s1/movie_audio_1.mp4", m.AudioTracks[0].URI)
	assert.True(t, m.AudioTracks[0].Default)
	assert.False(t, m.AudioTracks[1].Default)
	assert.Equal(t, "AAC Stereo", m.AudioTracks[0].Name)
}

func TestRun_EncodeFailureAborts(t *testing.T) {
	f := newFixture(t, stereo)
	f.runner.Fail = func(n int, _ supervisor.Invocation) error {
		if n == 0 {
			return &model.RunError{Outcome: model.OutcomeFailed, ExitCode: 1, Message: "bad"}
		}
		return nil
	}
	err := f.pipe.Run(context.Background(), f.req)
	require.Error(t, err)
	code, ok := model.ExitCodeOf(err)
	assert.True(t, ok)
	assert.Equal(t, 1, code)
	assert.Len(t, f.runner.Calls(), 1)
	assert.Empty(t, f.pub.Results)
}

func TestRun_CancelPropagates(t *testing.T) {
	f := newFixture(t, stereo)
	f.runner.Fail = func(int, supervisor.Invocation) error {
		return &model.RunError{Outcome: model.OutcomeCancelled, ExitCode: -1}
	}
	err := f.pipe.Run(context.Background(), f.req)
	assert.ErrorIs(t, err, model.ErrCancelled)
}

func TestRun_UploadFailure(t *testing.T) {
	f := newFixture(t, stereo)
	f.remote.MoveErr = errors.New("quota")
	err := f.pipe.Run(context.Background(), f.req)
	assert.ErrorContains(t, err, "quota")
	assert.Empty(t, f.pub.Results)
	assert.Equal(t, []string{"st:src/s1"}, f.remote.Purges)
}

func TestRun_FailedUploadPurgesOnlyThatStream(t *testing.T) {
	f := newFixture(t, stereo)
	f.remote.FailMove = func(n int) error {
		if n == 1 {
			return errors.New("quota")
		}
		return nil
	}

	err := f.pipe.Run(context.Background(), f.req)
	assert.ErrorContains(t, err, "quota")
	assert.Equal(t, []model.Event{model.EventAddStreamAudio}, f.pub.Events())
	assert.Equal(t, []string{"st:src/s2"}, f.remote.Purges)
}
