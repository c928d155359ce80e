// Package indexrender builds the indexing content blob described in
// spec.md §6.4: a deterministic Markdown rendering of a meeting, handed to
// the external indexing queue by Pipeline-3. Grounded on the teacher's
// internal/audio/merger.go style of small, pure, allocation-light
// transform functions with no side effects.
package indexrender

import (
	"fmt"
	"strings"

	"meetcorrect/internal/models"
)

// Render builds the Markdown content blob for meeting, preferring
// corrected segments over raw ones where present.
func Render(meeting models.Meeting) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", meeting.Title)

	if meeting.StartedAt != nil {
		fmt.Fprintf(&b, "Date: %s\n\n", meeting.StartedAt.Format("2006-01-02"))
	}
	fmt.Fprintf(&b, "Duration: %s\n\n", formatDuration(meeting.DurationSeconds))
	fmt.Fprintf(&b, "Type: %s\n\n", meeting.MeetingType)
	fmt.Fprintf(&b, "Audio Input: %s\n\n", meeting.AudioInputType)

	b.WriteString("---\n\n")
	b.WriteString("## Transcript\n\n")

	segments := meeting.CorrectedTranscriptSegments
	if len(segments) == 0 {
		segments = meeting.TranscriptSegments
	}
	for _, seg := range segments {
		speaker := "unknown"
		if seg.Speaker != nil && *seg.Speaker != "" {
			speaker = *seg.Speaker
		}
		fmt.Fprintf(&b, "[%s] **%s:** %s\n\n", formatTimestamp(seg.StartSec), speaker, seg.Text)
	}

	b.WriteString("## Source Metadata\n\n")
	fmt.Fprintf(&b, "- Meeting ID: %s\n", meeting.ID)
	fmt.Fprintf(&b, "- Client ID: %s\n", meeting.ClientID)
	if meeting.ProjectID != nil {
		fmt.Fprintf(&b, "- Project ID: %s\n", *meeting.ProjectID)
	}
	fmt.Fprintf(&b, "- Audio Path: %s\n", meeting.AudioFilePath)

	return b.String()
}

// CorrelationID builds the "meeting:<id>" correlation ID enqueued with
// the rendered blob.
func CorrelationID(meetingID string) string {
	return "meeting:" + meetingID
}

// formatDuration renders HhMmSs if hours are present, else MmSs, per
// spec.md §6.4.
func formatDuration(totalSeconds float64) string {
	total := int(totalSeconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	if hours > 0 {
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm%ds", minutes, seconds)
}

// formatTimestamp renders a segment start time as H:MM:SS when an hour is
// present, else MM:SS — e.g. 3661 -> "1:01:01", 61 -> "01:01".
func formatTimestamp(seconds float64) string {
	total := int(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}
