package export

import (
	"fmt"
	"math"
	"strings"
)

const maxCommentLen = 120

// GenerateEDL writes a CMX3600 list with one event per segment, all cut from
// the same reel. Notes become comment lines.
func GenerateEDL(events []Event, title, mediaPath string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = 30
	}

	fcm := "FCM: NON-DROP FRAME"
	if math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01 {
		fcm = "FCM: DROP FRAME"
	}

	lines := []string{"TITLE: " + SanitizeName(title, 70), fcm, ""}

	for i, ev := range events {
		in := msToTimecode(ev.StartMs, fps)
		out := msToTimecode(ev.EndMs, fps)

		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, "AX", "V", in, out, in, out),
			"* FROM CLIP NAME:  "+SanitizeName(ev.Name, 70),
		)
		if mediaPath != "" {
			lines = append(lines, "* MEDIA PATH:  "+mediaPath)
		}
		for _, note := range ev.Notes {
			if c := SanitizeComment(note, maxCommentLen); c != "" {
				lines = append(lines, "* COMMENT: "+c)
			}
		}
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

func msToTimecode(ms int, fps int) string {
	totalFrames := int(math.Round(float64(ms) * float64(fps) / 1000.0))
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	return fmt.Sprintf("%02d:%02d:%02d:%02d", totalSeconds/3600, totalSeconds/60%60, totalSeconds%60, frames)
}
