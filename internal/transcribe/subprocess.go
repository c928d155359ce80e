package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"meetcorrect/internal/config"
	"meetcorrect/internal/correction"

	"meetcorrect/pkg/logger"
)

// SubprocessBackend is Mode C: a local binary launched per request. Shaped
// after the teacher's asrengine.Manager subprocess-supervision pattern,
// without the gRPC control plane (the manager's "pb" stubs are not present
// in the retrieval pack — see DESIGN.md).
type SubprocessBackend struct {
	cfg        *config.Config
	correction *correction.Client
}

// NewSubprocessBackend builds Mode C's backend.
func NewSubprocessBackend(cfg *config.Config, correctionClient *correction.Client) *SubprocessBackend {
	return &SubprocessBackend{cfg: cfg, correction: correctionClient}
}

// IsAvailable reports whether the configured binary exists and is
// executable.
func (b *SubprocessBackend) IsAvailable(ctx context.Context) bool {
	path, err := exec.LookPath(b.cfg.SubprocessBinaryPath)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode()&0111 != 0
}

// Transcribe launches the subprocess with the plain transcription options.
func (b *SubprocessBackend) Transcribe(ctx context.Context, req Request, onProgress ProgressSink) (*Result, error) {
	progressFile := filepath.Join(req.WorkspacePath, req.MeetingID+"_progress.json")
	defer cleanupFiles(progressFile)

	opts := buildOptions(ctx, b.cfg, b.correction, req, progressFile)
	timeout := dynamicTimeout(b.cfg, req.AudioPath)
	return b.run(ctx, req, opts, timeout, progressFile, onProgress)
}

// Retranscribe launches the subprocess with the forced large-model,
// extraction-range options.
func (b *SubprocessBackend) Retranscribe(ctx context.Context, req Request, onProgress ProgressSink) (*Result, error) {
	progressFile := filepath.Join(req.WorkspacePath, req.MeetingID+"_progress.json")
	defer cleanupFiles(progressFile)

	opts := buildRetranscribeOptions(ctx, b.cfg, b.correction, req, progressFile)
	timeout := retranscribeTimeout(req.Ranges)
	return b.run(ctx, req, opts, timeout, progressFile, onProgress)
}

func (b *SubprocessBackend) run(ctx context.Context, req Request, opts Options, timeout time.Duration, progressFile string, onProgress ProgressSink) (*Result, error) {
	optsJSON, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("marshal options: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	watchCtx, stopWatch := context.WithCancel(runCtx)
	defer stopWatch()
	if onProgress != nil {
		go watchProgressFile(watchCtx, progressFile, b.cfg.PollInterval, func(ev ProgressEvent) {
			onProgress(req.MeetingID, req.ClientID, ev)
		})
	}

	cmd := exec.CommandContext(runCtx, b.cfg.SubprocessBinaryPath, req.AudioPath, string(optsJSON))
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	duration := time.Since(start)

	if stderr.Len() > 0 {
		logger.Debug("subprocess transcriber stderr", "meeting_id", req.MeetingID, "stderr", stderr.String())
	}

	if err != nil {
		logger.TranscriptionFailed(req.MeetingID, duration, err)
		return &Result{Err: fmt.Sprintf("subprocess exited non-zero: %v", err)}, nil
	}

	var result Result
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return nil, fmt.Errorf("decode subprocess result: %w", err)
	}
	logger.TranscriptionCompleted(req.MeetingID, duration, len(result.Segments))
	return &result, nil
}

// DeleteJobsForMeeting is a no-op for Mode C: there is no external job
// resource, the subprocess already exited by the time transcribe returns.
func (b *SubprocessBackend) DeleteJobsForMeeting(ctx context.Context, meetingID string) (bool, error) {
	return false, nil
}

// FindActiveJobForMeeting is a no-op for Mode C: subprocess invocations are
// synchronous and hold no externally discoverable identity across restarts.
func (b *SubprocessBackend) FindActiveJobForMeeting(ctx context.Context, meetingID string) (string, bool, error) {
	return "", false, nil
}

// WaitForExistingJob is unsupported in Mode C: there is nothing to
// re-attach to after a restart, since the subprocess dies with its parent.
func (b *SubprocessBackend) WaitForExistingJob(ctx context.Context, jobName, audioPath string, meetingID, clientID string, onProgress ProgressSink) (*Result, error) {
	return nil, fmt.Errorf("subprocess backend does not support re-attaching to existing jobs")
}
