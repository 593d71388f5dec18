// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

// H264Level picks the H.264 level for a target height scaled from the
// source aspect ratio. ok is false when no level in the table fits.
func H264Level(srcWidth, srcHeight, targetHeight int, fps float64) (level string, ok bool) {
	if srcWidth <= 0 || srcHeight <= 0 || targetHeight <= 0 {
		return "", false
	}
	targetWidth := float64(targetHeight) * float64(srcWidth) / float64(srcHeight)
	frame := targetWidth * float64(targetHeight)

	pick := func(lowFPS float64, low string, highFPS float64, high string) (string, bool) {
		switch {
		case fps <= lowFPS:
			return low, true
		case fps <= highFPS:
			return high, true
		}
		return "", false
	}

	// 2160p
	if frame >= 3840*2160 {
		if frame <= 4096*2160 {
			return pick(28, "5.1", 60, "5.2")
		}
		if frame <= 4096*2304 {
			return pick(26, "5.1", 56, "5.2")
		}
	}
	// 1440p
	if frame >= 2560*1440 {
		return pick(30, "5", 60, "5.1")
	}
	// 1080p
	if frame >= 1920*1080 {
		if frame <= 2048*1088 {
			return pick(30, "4.1", 60, "4.2")
		}
		if frame <= 2560*1439 {
			return pick(30, "5", 60, "5.1")
		}
	}
	// 720p
	if frame >= 1280*720 {
		if frame == 1280*720 && fps <= 60 {
			return pick(30, "3.1", 60, "3.2")
		}
		if frame <= 1280*1024 {
			return pick(30, "3.2", 60, "4.2")
		}
		if frame <= 1920*1079 {
			return pick(30, "5", 60, "5.1")
		}
	}
	// 480p
	if frame >= 854*480 {
		if frame <= 720*576 {
			return "3.1", true
		}
		if frame <= 1280*719 {
			return "3.2", true
		}
	}
	return "", false
}
