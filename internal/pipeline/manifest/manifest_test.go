package manifest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/transcoderd/internal/pipeline/model"
)

func videoFiles() Files {
	return Files{MPD: "testdata/movie_720.mpd", Playlist: "testdata/movie_720_1.m3u8"}
}

func audioFiles() Files {
	return Files{MPD: "testdata/movie_audio_1.mpd", Playlist: "testdata/movie_audio_1_1.m3u8"}
}

func TestAppendVideo(t *testing.T) {
	b := New()
	require.NoError(t, b.AppendVideo(videoFiles(), VideoMeta{
		Width: 1280, Height: 720, Format: "AVC", MimeType: "video/mp4",
		FrameRate: 24, Codec: model.CodecH264, URI: "s1/movie_720.mp4",
	}))

	m := b.Snapshot()
	require.Len(t, m.VideoTracks, 1)
	v := m.VideoTracks[0]
	assert.Equal(t, "avc1.64001F", v.Codec)
	assert.Equal(t, 1, v.CodecID)
	assert.Equal(t, "16:9", v.Par)
	assert.Equal(t, int64(1503128), v.Bandwidth)
	assert.InDelta(t, 14.0, v.Duration, 1e-9)
	assert.Equal(t, DashSegment{
		MinBufferTime:             1.5,
		MediaPresentationDuration: 14,
		MaxSubsegmentDuration:     6,
		IndexRange:                Range{Start: 862, End: 933},
		InitRange:                 Range{Start: 0, End: 861},
	}, v.DashSegment)

	want := &SegmentGroup{
		ByteRange: &ByteRange{Length: 934, Offset: 0},
		Segments: []Segment{
			{Duration: 6, ByteRange: &ByteRange{Length: 1127330, Offset: 934}},
			{Duration: 6, ByteRange: &ByteRange{Length: 1130412, Offset: 1128264}},
			{Duration: 2, ByteRange: &ByteRange{Length: 382119, Offset: 2258676}},
		},
	}
	if diff := cmp.Diff(want, v.HLSSegment); diff != "" {
		t.Errorf("hls segments mismatch (-want +got):\n%s", diff)
	}
	assert.InDelta(t, 14.0, m.TargetDuration, 1e-9)
	assert.Equal(t, 7, m.Version)
	assert.Equal(t, 6, m.SegmentDuration)
	assert.Equal(t, "VOD", m.PlaylistType)
}

func TestAppendAudio(t *testing.T) {
	b := New()
	require.NoError(t, b.AppendAudio(audioFiles(), AudioMeta{
		Format: "AAC", MimeType: "audio/mp4", Default: true, Channels: 2,
		SamplingRate: 48000, Codec: model.AudioAAC, URI: "a1/movie_audio_1.mp4",
	}))
	a := b.Snapshot().AudioTracks[0]
	assert.Equal(t, "AAC Stereo", a.Name)
	assert.Equal(t, "audio", a.Group)
	assert.True(t, a.Default)
	assert.True(t, a.Autoselect)
	assert.Equal(t, "en", a.Language)
	assert.Equal(t, "mp4a.40.2", a.Codec)
	assert.Equal(t, int64(131275), a.Bandwidth)
	assert.Len(t, a.HLSSegment.Segments, 3)
}

func TestAppendOrderAndTargetDuration(t *testing.T) {
	b := New()
	require.NoError(t, b.AppendAudio(audioFiles(), AudioMeta{Format: "AAC", Channels: 2, Codec: model.AudioAAC, URI: "a"}))
	require.NoError(t, b.AppendVideo(videoFiles(), VideoMeta{Height: 1080, Codec: model.CodecH264, URI: "first"}))
	require.NoError(t, b.AppendVideo(videoFiles(), VideoMeta{Height: 720, Codec: model.CodecH264, URI: "second"}))

	m := b.Snapshot()
	require.Len(t, m.VideoTracks, 2)
	assert.Equal(t, "first", m.VideoTracks[0].URI)
	assert.Equal(t, "second", m.VideoTracks[1].URI)
	assert.InDelta(t, 14.016, m.TargetDuration, 1e-9)
	assert.Equal(t, 3, b.Len())
}

func TestAppendMissingSidecar(t *testing.T) {
	b := New()
	err := b.AppendVideo(Files{MPD: "testdata/missing.mpd", Playlist: "testdata/movie_720_1.m3u8"}, VideoMeta{})
	require.Error(t, err)
	assert.Zero(t, b.Len())
}

func TestSave(t *testing.T) {
	b := New()
	require.NoError(t, b.AppendVideo(videoFiles(), VideoMeta{Height: 720, Codec: model.CodecVP9, URI: "s/movie_720.mp4"}))
	path := filepath.Join(t.TempDir(), FileName(model.CodecVP9))
	require.NoError(t, b.Save(context.Background(), path))
	assert.Equal(t, "manifest_2.json", filepath.Base(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var got Manifest
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, b.Snapshot(), got)
}

func TestAudioName(t *testing.T) {
	assert.Equal(t, "AAC Mono", AudioName("AAC", 1, model.AudioAAC))
	assert.Equal(t, "Opus Stereo", AudioName("Opus", 2, model.AudioOpus))
	assert.Equal(t, "AAC 5.1 - 4", AudioName("AAC", 6, model.AudioAACSurround))
	assert.Equal(t, "Opus 7.1 - 8", AudioName("Opus", 8, model.AudioOpusSurround))
}

func TestParseISODuration(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"", 0},
		{"PT1.500S", 1.5},
		{"PT0H0M14.000S", 14},
		{"PT1H2M3S", 3723},
		{"P1DT1S", 86401},
		{"PT0,5S", 0.5},
	}
	for _, tt := range tests {
		got, err := ParseISODuration(tt.in)
		require.NoError(t, err, tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, tt.in)
	}
	for _, bad := range []string{"1S", "PT", "PTS", "P1H", "PT1X", "PT5"} {
		_, err := ParseISODuration(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseRange(t *testing.T) {
	r, err := ParseRange("862-933")
	require.NoError(t, err)
	assert.Equal(t, Range{Start: 862, End: 933}, r)
	for _, bad := range []string{"", "1", "a-b", "9-1"} {
		_, err := ParseRange(bad)
		assert.Error(t, err, bad)
	}
}

func TestParsePlaylist_Discontinuity(t *testing.T) {
	g, err := ParsePlaylist("#EXTM3U\n#EXTINF:4,\n#EXT-X-BYTERANGE:10@0\na.mp4\n#EXT-X-DISCONTINUITY\n#EXTINF:2,\n#EXT-X-BYTERANGE:5\na.mp4\n")
	require.NoError(t, err)
	require.Len(t, g.Segments, 2)
	assert.Equal(t, 0, g.Segments[0].Timeline)
	assert.Equal(t, 1, g.Segments[1].Timeline)
	assert.Equal(t, &ByteRange{Length: 5, Offset: 10}, g.Segments[1].ByteRange)
	assert.Nil(t, g.ByteRange)
}

func TestParsePlaylist_Empty(t *testing.T) {
	g, err := ParsePlaylist("#EXTM3U\n#EXT-X-ENDLIST\n")
	require.NoError(t, err)
	assert.Nil(t, g)

	_, err = ParsePlaylist("#EXTINF:abc,\nx.mp4\n")
	assert.Error(t, err)
}
