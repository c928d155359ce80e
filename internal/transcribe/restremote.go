package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/r3labs/sse/v2"

	"meetcorrect/internal/config"
	"meetcorrect/internal/correction"
	"meetcorrect/pkg/logger"
)

// RESTRemoteBackend is Mode B: a chunked-POST upload to a remote
// transcription service, consumed as a server-sent event stream of
// progress/result/error events. Grounded on github.com/r3labs/sse/v2 (the
// only SSE client library referenced anywhere in the retrieval pack — see
// DESIGN.md).
type RESTRemoteBackend struct {
	cfg        *config.Config
	correction *correction.Client
	httpClient *http.Client
}

// NewRESTRemoteBackend builds Mode B's backend.
func NewRESTRemoteBackend(cfg *config.Config, correctionClient *correction.Client) *RESTRemoteBackend {
	return &RESTRemoteBackend{
		cfg:        cfg,
		correction: correctionClient,
		httpClient: &http.Client{Timeout: 0}, // streaming: caller's context governs the deadline
	}
}

// remoteEnvelope is the tagged union of events the remote stream emits.
type remoteEnvelope struct {
	Type     string        `json:"type"` // "progress" | "result" | "error"
	Progress ProgressEvent `json:"progress,omitempty"`
	Result   *Result       `json:"result,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// IsAvailable backs isAvailable() with a single liveness check against
// GET /health, per spec.md §4.2.
func (b *RESTRemoteBackend) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.cfg.RestRemoteURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Transcribe uploads the audio with plain transcription options.
func (b *RESTRemoteBackend) Transcribe(ctx context.Context, req Request, onProgress ProgressSink) (*Result, error) {
	opts := buildOptions(ctx, b.cfg, b.correction, req, "")
	timeout := dynamicTimeout(b.cfg, req.AudioPath)
	return b.stream(ctx, req, opts, timeout, onProgress)
}

// Retranscribe uploads the audio with the forced large-model,
// extraction-range options.
func (b *RESTRemoteBackend) Retranscribe(ctx context.Context, req Request, onProgress ProgressSink) (*Result, error) {
	opts := buildRetranscribeOptions(ctx, b.cfg, b.correction, req, "")
	timeout := retranscribeTimeout(req.Ranges)
	return b.stream(ctx, req, opts, timeout, onProgress)
}

func (b *RESTRemoteBackend) stream(ctx context.Context, req Request, opts Options, timeout time.Duration, onProgress ProgressSink) (*Result, error) {
	audioFile, err := os.Open(req.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer audioFile.Close()

	optsJSON, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("marshal options: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := sse.NewClient(b.cfg.RestRemoteURL + "/v1/transcribe")
	client.Connection = b.httpClient
	client.Method = http.MethodPost
	client.Body = audioFile
	client.Headers["X-Transcribe-Options"] = string(optsJSON)
	client.Headers["X-Meeting-Id"] = req.MeetingID

	var final *Result
	var streamErr error

	err = client.SubscribeWithContext(runCtx, "", func(msg *sse.Event) {
		var env remoteEnvelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			logger.Warn("malformed remote transcription event", "error", err)
			return
		}
		switch env.Type {
		case "progress":
			if onProgress != nil {
				onProgress(req.MeetingID, req.ClientID, env.Progress)
			}
		case "result":
			final = env.Result
		case "error":
			streamErr = fmt.Errorf("remote transcription error: %s", env.Error)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to remote transcription stream: %w", err)
	}
	if streamErr != nil {
		return &Result{Err: streamErr.Error()}, nil
	}
	if final == nil {
		return nil, fmt.Errorf("remote transcription stream closed without a result")
	}
	return final, nil
}

// DeleteJobsForMeeting asks the remote service to cancel any in-flight
// request for this meeting. Mode B has no durable job identity beyond the
// lifetime of the streaming connection, so this is best-effort.
func (b *RESTRemoteBackend) DeleteJobsForMeeting(ctx context.Context, meetingID string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, b.cfg.RestRemoteURL+"/v1/transcribe/"+meetingID, nil)
	if err != nil {
		return false, err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

// FindActiveJobForMeeting has no meaning for Mode B: requests are
// synchronous HTTP streams, not named external jobs.
func (b *RESTRemoteBackend) FindActiveJobForMeeting(ctx context.Context, meetingID string) (string, bool, error) {
	return "", false, nil
}

// WaitForExistingJob is unsupported in Mode B for the same reason.
func (b *RESTRemoteBackend) WaitForExistingJob(ctx context.Context, jobName, audioPath string, meetingID, clientID string, onProgress ProgressSink) (*Result, error) {
	return nil, fmt.Errorf("rest remote backend does not support re-attaching to existing jobs")
}
