package rendition

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/transcoderd/internal/pipeline/manifest"
	"github.com/ManuGH/transcoderd/internal/pipeline/model"
	"github.com/ManuGH/transcoderd/internal/testutil"
)

func manifestJob() *model.Job {
	return &model.Job{ID: "7", Data: model.JobData{SourceID: "src", Storage: "st", Codec: model.CodecH264}}
}

func TestSaveManifest_Uploads(t *testing.T) {
	rem := &testutil.Remote{}
	env := &Env{Remote: rem, NewStreamID: testutil.Sequence()}
	ws := Workspace{Dir: t.TempDir(), Base: "movie"}

	streamID, name, err := env.SaveManifest(context.Background(), manifestJob(), ws, manifest.New(), model.CodecH264)
	require.NoError(t, err)
	assert.Equal(t, "s1", streamID)
	assert.Equal(t, manifest.FileName(model.CodecH264), name)
	require.Len(t, rem.Moves, 1)
	assert.Equal(t, testutil.Move{Src: filepath.Join(ws.Dir, name), Storage: "st", Dest: "src/s1"}, rem.Moves[0])
	assert.Empty(t, rem.Purges)
}

func TestSaveManifest_FailedUploadPurgesFolder(t *testing.T) {
	rem := &testutil.Remote{MoveErr: errors.New("quota")}
	env := &Env{Remote: rem, NewStreamID: testutil.Sequence()}
	ws := Workspace{Dir: t.TempDir(), Base: "movie"}

	_, _, err := env.SaveManifest(context.Background(), manifestJob(), ws, manifest.New(), model.CodecH264)
	require.ErrorContains(t, err, "quota")
	assert.Equal(t, []string{"st:src/s1"}, rem.Purges)
}

func TestDiscard_IgnoresCancelledContext(t *testing.T) {
	rem := &testutil.Remote{}
	env := &Env{Remote: rem}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, env.Discard(ctx, manifestJob(), "s9"))
	assert.Equal(t, []string{"st:src/s9"}, rem.Purges)
}
