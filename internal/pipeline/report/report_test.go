package report

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/transcoderd/internal/pipeline/model"
)

type recorder struct {
	results []model.Result
	err     error
}

func (r *recorder) Publish(_ context.Context, res model.Result) error {
	if r.err != nil {
		return r.err
	}
	r.results = append(r.results, res)
	return nil
}

func testJob(made, attempts int) *model.Job {
	return &model.Job{
		ID:           "42",
		AttemptsMade: made,
		Attempts:     attempts,
		Data: model.JobData{
			SourceID: "src1", Filename: "movie.mkv", Path: "src1", Storage: "st1",
			Media: "m1", Codec: model.CodecH264,
		},
	}
}

func TestFailure_RetryWhileAttemptsRemain(t *testing.T) {
	rec := &recorder{}
	r := New(rec, nil)
	job := testJob(1, 3)

	je, err := r.Failure(context.Background(), job, model.NewJobError(model.CodeEncodeVideoFailed, errors.New("exit 1")))
	require.NoError(t, err)
	require.NotNil(t, je)
	require.Len(t, rec.results, 1)
	assert.Equal(t, model.EventRetry, rec.results[0].Event)
	assert.Equal(t, model.CodeEncodeVideoFailed, rec.results[0].ErrorCode)
	assert.Equal(t, job.Data, rec.results[0].Data)
	assert.Equal(t, "42", rec.results[0].JobID)
}

func TestFailure_ExhaustedRetries(t *testing.T) {
	rec := &recorder{}
	r := New(rec, nil)

	_, err := r.Failure(context.Background(), testJob(3, 3), model.NewJobError(model.CodeEncodeVideoFailed, errors.New("boom")))
	require.NoError(t, err)
	require.Len(t, rec.results, 1)
	assert.Equal(t, model.EventFailed, rec.results[0].Event)
}

func TestFailure_DiscardFailsImmediately(t *testing.T) {
	rec := &recorder{}
	r := New(rec, nil)

	je, err := r.Failure(context.Background(), testJob(1, 5), model.NewJobError(model.CodeNoAudioTrack, nil))
	require.NoError(t, err)
	assert.True(t, je.Discard)
	assert.Equal(t, model.EventFailed, rec.results[0].Event)
	assert.Equal(t, model.CodeNoAudioTrack, rec.results[0].ErrorCode)
}

func TestFailure_CancelIsSilent(t *testing.T) {
	rec := &recorder{}
	r := New(rec, nil)
	err := &model.RunError{Outcome: model.OutcomeCancelled, ExitCode: -1}

	je, perr := r.Failure(context.Background(), testJob(1, 3), model.NewJobError(model.CodeEncodeVideoFailed, err))
	assert.Nil(t, je)
	assert.NoError(t, perr)
	assert.Empty(t, rec.results)
}

func TestFailure_UntypedErrorIsNotReported(t *testing.T) {
	rec := &recorder{}
	je, err := New(rec, nil).Failure(context.Background(), testJob(3, 3), errors.New("db down"))
	require.NoError(t, err)
	assert.Nil(t, je)
	assert.Empty(t, rec.results)
}

func TestProgressMessages(t *testing.T) {
	rec := &recorder{}
	r := New(rec, nil)
	ctx := context.Background()
	job := testJob(1, 3)

	require.NoError(t, r.UpdateSource(ctx, job, 1080, 5400))
	require.NoError(t, r.AudioAdded(ctx, job, "a1", "movie_audio_1.mp4", model.AudioOpus, 2))
	require.NoError(t, r.VideoAdded(ctx, job, "v1", "movie_1080.mp4", model.CodecH264, 1080))
	require.NoError(t, r.ManifestAdded(ctx, job, "m1", "manifest_1.json", model.CodecH264))
	require.NoError(t, r.Cancelled(ctx, job, true))
	require.NoError(t, r.Finished(ctx, job))

	require.Len(t, rec.results, 6)
	assert.Equal(t, &model.Progress{SourceID: "src1", Quality: 1080, Runtime: 5400}, rec.results[0].Progress)
	assert.Equal(t, &model.Progress{SourceID: "src1", StreamID: "a1", FileName: "movie_audio_1.mp4", Codec: 2, Channels: 2}, rec.results[1].Progress)
	assert.Equal(t, 1080, rec.results[2].Progress.Quality)
	assert.Equal(t, model.EventAddStreamManifest, rec.results[3].Event)
	assert.True(t, rec.results[4].KeepStreams)
	assert.Equal(t, model.EventFinished, rec.results[5].Event)
	assert.Nil(t, rec.results[5].Progress)
}

func TestPublishError(t *testing.T) {
	r := New(&recorder{err: errors.New("down")}, nil)
	err := r.Finished(context.Background(), testJob(0, 1))
	assert.ErrorContains(t, err, "publish finished-encoding")
}

func TestProducerCheck(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	p := NewProducerCheck(nil, "", "")
	p.Interval = time.Millisecond
	assert.False(t, p.EnsureOnline(context.Background(), srv.URL), "host not allowed")
	assert.Zero(t, hits.Load())

	p.Domains = []string{u.Hostname()}
	assert.True(t, p.EnsureOnline(context.Background(), srv.URL))
	assert.Equal(t, int32(1), hits.Load())
	assert.True(t, p.EnsureOnline(context.Background(), ""))
}

func TestProducerCheck_DomainsFileAndBypass(t *testing.T) {
	dir := t.TempDir()
	domains := filepath.Join(dir, "producer-domains.txt")
	require.NoError(t, os.WriteFile(domains, []byte("producer.example\n"), 0o600))

	p := NewProducerCheck(nil, domains, filepath.Join(dir, "bypass"))
	assert.True(t, p.allowed("https://producer.example/api"))
	assert.False(t, p.allowed("https://other.example/api"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bypass"), nil, 0o600))
	assert.True(t, p.EnsureOnline(context.Background(), "https://other.example/api"))
}

func TestProducerCheck_GivesUp(t *testing.T) {
	p := NewProducerCheck([]string{"127.0.0.1"}, "", "")
	p.Retries = 2
	p.Interval = time.Millisecond
	assert.False(t, p.EnsureOnline(context.Background(), "http://127.0.0.1:1/"))
}

func TestProducerCheck_OfflineProducerIsNotPingedAgain(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	}))
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	srv.Close()

	p := NewProducerCheck([]string{u.Hostname()}, "", "")
	p.Retries = 2
	p.Interval = time.Millisecond
	p.OfflineFor = time.Hour
	assert.False(t, p.EnsureOnline(context.Background(), srv.URL))

	start := time.Now()
	p.Interval = time.Second
	assert.False(t, p.EnsureOnline(context.Background(), srv.URL))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Zero(t, hits.Load())
}
