package thumbnail

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/transcoderd/internal/pipeline/exec/supervisor"
	"github.com/ManuGH/transcoderd/internal/pipeline/model"
)

type fakeRunner struct {
	invs []supervisor.Invocation
	err  error
}

func (f *fakeRunner) Run(_ context.Context, inv supervisor.Invocation) (supervisor.Result, error) {
	f.invs = append(f.invs, inv)
	return supervisor.Result{}, f.err
}

func TestScaledSize(t *testing.T) {
	tests := []struct {
		w, h, bound  int
		wantW, wantH int
	}{
		{1920, 1080, 160, 160, 90},
		{1080, 1920, 160, 90, 160},
		{100, 50, 160, 100, 50},
		{0, 0, 320, 320, 320},
		{1440, 1080, 320, 320, 240},
	}
	for _, tt := range tests {
		w, h := ScaledSize(tt.w, tt.h, tt.bound, tt.bound)
		assert.Equal(t, tt.wantW, w, "%dx%d", tt.w, tt.h)
		assert.Equal(t, tt.wantH, h, "%dx%d", tt.w, tt.h)
	}
}

func TestLayout(t *testing.T) {
	frames := Layout(27, 160, 90, 5, 5, "L")
	require.Len(t, frames, 27)
	assert.Equal(t, Frame{StartTime: 0, EndTime: 1, Sprite: "L0.jpg", Width: 160, Height: 90}, frames[0])
	assert.Equal(t, Frame{StartTime: 6, EndTime: 7, Sprite: "L0.jpg", X: 160, Y: 90, Width: 160, Height: 90}, frames[6])
	assert.Equal(t, "L1.jpg", frames[25].Sprite)
	assert.Equal(t, 0, frames[25].X)
	assert.Equal(t, 2, Pages(27, 5, 5))
	assert.Equal(t, 1, Pages(25, 5, 5))
}

func TestWebVTT(t *testing.T) {
	vtt := WebVTT(Layout(2, 160, 90, 10, 10, "M"))
	assert.Equal(t, "WEBVTT\n\n1\n00:00:00.000 --> 00:00:01.000\nM0.jpg#xywh=0,0,160,90"+
		"\n\n2\n00:00:01.000 --> 00:00:02.000\nM0.jpg#xywh=160,0,160,90", vtt)
	assert.Equal(t, "01:01:01.000", cueTime(3661))
}

func TestGenerate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), Folder)
	r := &fakeRunner{}
	g := NewFFmpeg("ffmpeg", r)

	out, err := g.Generate(context.Background(), Request{
		JobID: "j1", Input: "/w/movie.mkv", Dir: dir, Duration: 7.2, Width: 1920, Height: 1080,
	})
	require.NoError(t, err)
	assert.Equal(t, 8, out.Frames)
	require.Len(t, r.invs, 2)
	assert.Equal(t, supervisor.KindEncode, r.invs[0].Kind)
	assert.Equal(t, "j1", r.invs[0].JobID)
	assert.Contains(t, strings.Join(r.invs[0].Args, " "), "tile=8x10")
	assert.Contains(t, strings.Join(r.invs[1].Args, " "), "scale=320:180,tile=5x5")
	assert.Equal(t, []string{filepath.Join(dir, "M0.jpg"), filepath.Join(dir, "L0.jpg")}, out.Sprites)

	raw, err := os.ReadFile(filepath.Join(dir, "M.json"))
	require.NoError(t, err)
	var frames []Frame
	require.NoError(t, json.Unmarshal(raw, &frames))
	assert.Len(t, frames, 8)
	assert.FileExists(t, filepath.Join(dir, "L.vtt"))
}

func TestGenerate_Cancelled(t *testing.T) {
	r := &fakeRunner{err: &model.RunError{Outcome: model.OutcomeCancelled, ExitCode: -1}}
	_, err := NewFFmpeg("ffmpeg", r).Generate(context.Background(), Request{Dir: t.TempDir(), Duration: 3})
	assert.ErrorIs(t, err, model.ErrCancelled)
	assert.Len(t, r.invs, 1)
}
