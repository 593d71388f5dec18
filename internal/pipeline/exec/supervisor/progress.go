// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package supervisor

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"

	"github.com/ManuGH/transcoderd/internal/pipeline/model"
	"github.com/dustin/go-humanize"
)

// tracker decodes progress output into snapshots. version only moves when a
// published snapshot differs from the previous one, which is what stall
// detection compares.
type tracker struct {
	mu       sync.Mutex
	duration float64
	cur      model.ProgressSnapshot
	last     model.ProgressSnapshot
	ver      uint64
}

func newTracker(durationSeconds float64) *tracker {
	return &tracker{duration: durationSeconds}
}

func (t *tracker) version() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ver
}

func (t *tracker) snapshot() model.ProgressSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// parseFFmpegLine consumes one "key=value" line of `-progress pipe:1` output.
// It returns a snapshot each time a block is terminated by a progress= line.
func (t *tracker) parseFFmpegLine(line string) (model.ProgressSnapshot, bool) {
	key, val, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return model.ProgressSnapshot{}, false
	}
	key = strings.TrimSpace(key)
	val = strings.TrimSpace(val)

	t.mu.Lock()
	defer t.mu.Unlock()

	switch key {
	case "frame":
		t.cur.Frame = parseInt(val, t.cur.Frame)
	case "fps":
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			t.cur.FPS = f
		}
	case "bitrate":
		t.cur.Bitrate = val
	case "total_size":
		t.cur.TotalSize = parseInt(val, t.cur.TotalSize)
	case "out_time_us", "out_time_ms":
		// ffmpeg reports both keys in microseconds.
		t.cur.OutTimeUS = parseInt(val, t.cur.OutTimeUS)
	case "dup_frames":
		t.cur.DupFrames = parseInt(val, t.cur.DupFrames)
	case "drop_frames":
		t.cur.DropFrames = parseInt(val, t.cur.DropFrames)
	case "speed":
		t.cur.Speed = val
	case "progress":
		t.cur.Progress = val
		t.cur.Percent = percentOf(float64(t.cur.OutTimeUS), t.duration*1e6)
		return t.publishLocked(), true
	}
	return model.ProgressSnapshot{}, false
}

type rcloneStats struct {
	Bytes      int64   `json:"bytes"`
	TotalBytes int64   `json:"totalBytes"`
	Speed      float64 `json:"speed"`
}

type rcloneLogLine struct {
	Level string       `json:"level"`
	Msg   string       `json:"msg"`
	Stats *rcloneStats `json:"stats"`
}

// parseRcloneLine decodes one `--use-json-log` line. Lines that carry a
// stats object produce a snapshot; other decodable lines are returned so
// the caller can log their message.
func (t *tracker) parseRcloneLine(line string) (rcloneLogLine, model.ProgressSnapshot, bool) {
	var entry rcloneLogLine
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		return entry, model.ProgressSnapshot{}, false
	}
	if entry.Stats == nil {
		return entry, model.ProgressSnapshot{}, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.cur.TotalSize = entry.Stats.Bytes
	t.cur.Speed = humanize.Bytes(uint64(entry.Stats.Speed)) + "/s"
	t.cur.Percent = percentOf(float64(entry.Stats.Bytes), float64(entry.Stats.TotalBytes))
	t.cur.Progress = "continue"
	return entry, t.publishLocked(), true
}

func (t *tracker) publishLocked() model.ProgressSnapshot {
	if t.cur != t.last {
		t.ver++
	}
	t.last = t.cur
	return t.last
}

func percentOf(done, total float64) int {
	if total <= 0 || done <= 0 {
		return 0
	}
	p := int(done / total * 100)
	if p > 100 {
		return 100
	}
	return p
}

func parseInt(val string, fallback int64) int64 {
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
