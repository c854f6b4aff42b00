// Package export writes segment plans in formats editing tools can import.
package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/algovids/algovids-agent/internal/montage"
)

// DefaultFrameRate is used when the caller passes a non-positive rate.
const DefaultFrameRate = 30.0

// PlanEDL renders a plan as a CMX3600 edit decision list. Every event cuts
// from the same source reel; record timecodes run back to back from zero,
// matching the concatenation the montage performs.
func PlanEDL(plan montage.Plan, mediaPath, title string, frameRate float64) string {
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	fps := int(math.Round(frameRate))
	isDropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	lines := []string{fmt.Sprintf("TITLE: %s", EDLText(title, 70))}
	if isDropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	clipName := ClipName(mediaPath)
	var record float64
	for i, seg := range plan {
		recOut := record + seg.Duration()
		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, "AX", "V",
				secondsToTimecode(seg.Start, fps), secondsToTimecode(seg.End, fps),
				secondsToTimecode(record, fps), secondsToTimecode(recOut, fps)),
			fmt.Sprintf("* FROM CLIP NAME:  %s", clipName),
			fmt.Sprintf("* MEDIA PATH:  %s", mediaPath),
		)
		record = recOut
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

func secondsToTimecode(sec float64, fps int) string {
	totalFrames := int(math.Round(sec * float64(fps)))
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}
