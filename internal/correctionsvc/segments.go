package correctionsvc

import (
	"strings"

	"meetcorrect/internal/correction"
	"meetcorrect/internal/models"
	"meetcorrect/internal/transcribe"
)

func toCorrectionSegments(segments models.TranscriptSegments) []correction.Segment {
	out := make([]correction.Segment, len(segments))
	for i, s := range segments {
		out[i] = correction.Segment{
			StartSec: s.StartSec,
			EndSec:   s.EndSec,
			Text:     s.Text,
			Speaker:  s.Speaker,
		}
	}
	return out
}

func toModelQuestions(questions []correction.Question) models.CorrectionQuestions {
	if len(questions) == 0 {
		return nil
	}
	out := make(models.CorrectionQuestions, len(questions))
	for i, q := range questions {
		out[i] = models.CorrectionQuestion{
			QuestionID:        q.QuestionID,
			SegmentIndex:      q.SegmentIndex,
			OriginalText:      q.OriginalText,
			CorrectionOptions: q.CorrectionOptions,
			Question:          q.Question,
			Context:           q.Context,
		}
	}
	return out
}

func toCorrectionAnswers(answers []Answer) []correction.Answer {
	out := make([]correction.Answer, len(answers))
	for i, a := range answers {
		out[i] = correction.Answer{
			QuestionID: a.QuestionID,
			Original:   a.Original,
			Corrected:  a.Corrected,
			Category:   a.Category,
		}
	}
	return out
}

// overlaySegments implements spec.md §4.6 step 4: overlay returned
// corrected segments onto originals, preserving original
// {startSec, endSec, speaker} where present. The agent's response is
// assumed ordered and index-aligned to the request.
func overlaySegments(original models.TranscriptSegments, corrected []correction.Segment) models.TranscriptSegments {
	out := make(models.TranscriptSegments, len(original))
	for i, orig := range original {
		out[i] = orig
		if i < len(corrected) {
			out[i].Text = corrected[i].Text
		}
	}
	return out
}

// buildExtractionRanges applies spec.md §4.6 step 2: extraction ranges
// with +/-10s padding around each unknown segment, clamped start >= 0.
const extractionPaddingSeconds = 10.0

func buildExtractionRanges(segments models.TranscriptSegments, unknown []Answer) []transcribe.ExtractionRange {
	ranges := make([]transcribe.ExtractionRange, 0, len(unknown))

	for _, a := range unknown {
		if a.SegmentIndex < 0 || a.SegmentIndex >= len(segments) {
			continue
		}
		seg := segments[a.SegmentIndex]
		start := seg.StartSec - extractionPaddingSeconds
		if start < 0 {
			start = 0
		}
		end := seg.EndSec + extractionPaddingSeconds
		ranges = append(ranges, transcribe.ExtractionRange{Start: start, End: end, SegmentIndex: a.SegmentIndex})
	}
	return ranges
}

// mergeRetranscribedSegments implements spec.md §4.6 step 4 of
// retranscribeAndCorrect: for each original index i, text is
// retranscribed[i] if present, else known[i].corrected if present, else
// unchanged.
func mergeRetranscribedSegments(original models.TranscriptSegments, textBySegment map[int]string, known []Answer) models.TranscriptSegments {
	knownByIndex := make(map[int]string, len(known))
	for _, a := range known {
		knownByIndex[a.SegmentIndex] = a.Corrected
	}

	out := make(models.TranscriptSegments, len(original))
	for i, seg := range original {
		out[i] = seg
		if text, ok := textBySegment[i]; ok {
			out[i].Text = text
			continue
		}
		if text, ok := knownByIndex[i]; ok {
			out[i].Text = text
		}
	}
	return out
}

func joinSegmentText(segments models.TranscriptSegments) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s.Text != "" {
			parts = append(parts, s.Text)
		}
	}
	return strings.Join(parts, " ")
}
