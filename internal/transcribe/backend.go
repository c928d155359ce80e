// Package transcribe is the Transcription Backend (C2): a single capability
// set {transcribe, retranscribe, isAvailable, findActiveJob, deleteJobs,
// waitForExisting} implemented by three interchangeable modes. Grounded on
// the teacher's internal/transcription/interfaces package for the
// polymorphism shape, and on internal/dropzone for progress-file watching.
package transcribe

import (
	"context"
	"fmt"
	"os"
	"time"

	"meetcorrect/internal/config"
	"meetcorrect/internal/correction"
)

// ExtractionRange is a window of audio plus the segment index it replaces.
type ExtractionRange struct {
	Start        float64
	End          float64
	SegmentIndex int
}

// Result is the outcome of a transcribe or retranscribe call.
type Result struct {
	Text                string
	Segments            []correction.Segment
	Language            *string
	LanguageProbability *float64
	DurationSeconds     *float64
	TextBySegment       map[int]string
	Err                 string
}

// Options is the uniform options payload sent to every backend mode.
type Options struct {
	Task                    string             `json:"task"`
	Model                   string             `json:"model"`
	BeamSize                int                `json:"beamSize"`
	VadFilter               bool               `json:"vadFilter"`
	WordTimestamps          bool               `json:"wordTimestamps"`
	ConditionOnPreviousText bool               `json:"conditionOnPreviousText"`
	NoSpeechThreshold       float64            `json:"noSpeechThreshold"`
	ProgressFile            string             `json:"progressFile"`
	Language                string             `json:"language,omitempty"`
	InitialPrompt           string             `json:"initialPrompt,omitempty"`
	ExtractionRanges        []ExtractionRange  `json:"extractionRanges,omitempty"`
}

// ProgressEvent is the shape of <audio>_progress.json / an SSE "progress"
// event, common across all three modes.
type ProgressEvent struct {
	Percent         float64 `json:"percent"`
	SegmentsDone    int     `json:"segmentsDone"`
	ElapsedSeconds  float64 `json:"elapsedSeconds"`
	LastSegmentText *string `json:"lastSegmentText,omitempty"`
	UpdatedAt       string  `json:"updatedAt,omitempty"`
}

// ProgressSink receives a progress tick for one meeting. Callers forward it
// to C4.MeetingTranscriptionProgress; only the retranscription caller in
// correctionsvc (running while CORRECTING) also calls C1.Touch.
type ProgressSink func(meetingID, clientID string, ev ProgressEvent)

// Request bundles everything transcribe/retranscribe need.
type Request struct {
	AudioPath     string
	WorkspacePath string
	MeetingID     string
	ClientID      string
	ProjectID     *string
	Ranges        []ExtractionRange // non-empty only for retranscribe
}

// Backend is the capability set shared by all three deployment modes.
type Backend interface {
	Transcribe(ctx context.Context, req Request, onProgress ProgressSink) (*Result, error)
	Retranscribe(ctx context.Context, req Request, onProgress ProgressSink) (*Result, error)
	IsAvailable(ctx context.Context) bool
	DeleteJobsForMeeting(ctx context.Context, meetingID string) (bool, error)
	FindActiveJobForMeeting(ctx context.Context, meetingID string) (string, bool, error)
	WaitForExistingJob(ctx context.Context, jobName, audioPath string, meetingID, clientID string, onProgress ProgressSink) (*Result, error)
}

// New selects and constructs the configured backend mode.
func New(cfg *config.Config, correctionClient *correction.Client) (Backend, error) {
	switch cfg.DeploymentMode {
	case config.ModeKubernetesJob:
		return NewKubernetesBackend(cfg, correctionClient)
	case config.ModeRESTRemote:
		return NewRESTRemoteBackend(cfg, correctionClient), nil
	case config.ModeLocalSubprocess:
		return NewSubprocessBackend(cfg, correctionClient), nil
	default:
		return nil, fmt.Errorf("transcribe: unknown deployment mode %q", cfg.DeploymentMode)
	}
}

// buildOptions assembles the uniform options payload for a plain
// transcription, fetching the initial prompt from the correction agent
// (tolerated failure per spec.md §7: log and proceed with no prompt).
func buildOptions(ctx context.Context, cfg *config.Config, correctionClient *correction.Client, req Request, progressFile string) Options {
	opts := Options{
		Task:                    "transcribe",
		Model:                   cfg.Model,
		BeamSize:                cfg.BeamSize,
		VadFilter:               cfg.VadFilter,
		WordTimestamps:          cfg.WordTimestamps,
		ConditionOnPreviousText: cfg.ConditionOnPreviousText,
		NoSpeechThreshold:       cfg.NoSpeechThreshold,
		ProgressFile:            progressFile,
		Language:                cfg.Language,
	}
	opts.InitialPrompt = fetchInitialPrompt(ctx, correctionClient, req.ClientID, req.ProjectID)
	return opts
}

// buildRetranscribeOptions applies spec.md §4.2's retranscribe overrides:
// forced model/beam/threshold, and attaches extraction ranges.
func buildRetranscribeOptions(ctx context.Context, cfg *config.Config, correctionClient *correction.Client, req Request, progressFile string) Options {
	opts := Options{
		Task:                    "transcribe",
		Model:                   cfg.LargeRetranscribeModel,
		BeamSize:                cfg.LargeRetranscribeBeam,
		VadFilter:               cfg.VadFilter,
		WordTimestamps:          cfg.WordTimestamps,
		ConditionOnPreviousText: cfg.ConditionOnPreviousText,
		NoSpeechThreshold:       0.3,
		ProgressFile:            progressFile,
		Language:                cfg.Language,
		ExtractionRanges:        req.Ranges,
	}
	opts.InitialPrompt = fetchInitialPrompt(ctx, correctionClient, req.ClientID, req.ProjectID)
	return opts
}

func fetchInitialPrompt(ctx context.Context, correctionClient *correction.Client, clientID string, projectID *string) string {
	if correctionClient == nil || clientID == "" {
		return ""
	}
	records, err := correctionClient.ListCorrections(ctx, correction.ListCorrectionsRequest{
		ClientID:   clientID,
		ProjectID:  projectID,
		MaxResults: 200,
	})
	if err != nil {
		return ""
	}

	seen := make(map[string]bool, len(records))
	var terms []string
	for _, r := range records {
		if r.Original == "" || seen[r.Original] {
			continue
		}
		seen[r.Original] = true
		terms = append(terms, fmt.Sprintf("%s -> %s", r.Original, r.Corrected))
	}
	return joinComma(terms)
}

func joinComma(terms []string) string {
	out := ""
	for i, t := range terms {
		if i > 0 {
			out += ", "
		}
		out += t
	}
	return out
}

// audioDurationSeconds estimates duration from file size assuming 16 kHz /
// 16-bit / mono PCM with a 44-byte WAV header — the heuristic spec.md §9
// deliberately accepts in place of parsing the header, preserving only the
// `duration >= 0` contract and the timeout formula.
func audioDurationSeconds(audioPath string) float64 {
	const bytesPerSecond = 32000
	const headerBytes = 44

	info, err := os.Stat(audioPath)
	if err != nil {
		return 0
	}
	size := info.Size() - headerBytes
	if size <= 0 {
		return 0
	}
	return float64(size) / bytesPerSecond
}

// dynamicTimeout implements spec.md §4.2's `max(audioDurationSeconds *
// multiplier, minTimeoutSeconds)`.
func dynamicTimeout(cfg *config.Config, audioPath string) time.Duration {
	duration := audioDurationSeconds(audioPath) * cfg.TimeoutMultiplier
	min := float64(cfg.MinTimeoutSeconds)
	if duration < min {
		duration = min
	}
	return time.Duration(duration) * time.Second
}

// retranscribeTimeout implements `max(sumOfRangeDurations * 15, 600s)`.
func retranscribeTimeout(ranges []ExtractionRange) time.Duration {
	var sum float64
	for _, r := range ranges {
		sum += r.End - r.Start
	}
	seconds := sum * 15
	if seconds < 600 {
		seconds = 600
	}
	return time.Duration(seconds) * time.Second
}

// cleanupFiles deletes the result/progress scratch files on function exit
// regardless of outcome, per spec.md's "cleanup discipline".
func cleanupFiles(paths ...string) {
	for _, p := range paths {
		if p != "" {
			_ = os.Remove(p)
		}
	}
}
