package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"meetcorrect/internal/config"
	"meetcorrect/internal/correction"
	"meetcorrect/pkg/logger"
)

// memoryProvisioning maps a model name to {request, limit}, per spec.md
// §4.2's memory table. Unrecognized models fall back to the 512Mi/2Gi
// default.
var memoryProvisioning = map[string][2]string{
	"tiny":     {"512Mi", "2Gi"},
	"base":     {"512Mi", "2Gi"},
	"small":    {"1Gi", "3Gi"},
	"medium":   {"2Gi", "6Gi"},
	"large-v3": {"4Gi", "12Gi"},
}

const jobLabelService = "app"
const jobLabelMeeting = "meeting-id"

// KubernetesBackend is Mode A: one Kubernetes batch Job per transcription
// attempt, discoverable by label and polled on a fixed cadence for its
// progress/result files written to a shared volume. Grounded on the
// `k8s.io/client-go` batch Job usage conventions shown in the pack's
// jordigilh-kubernaut e2e manifests (see DESIGN.md; no full buildable
// client-go source exists in the retrieval pack, so this follows the
// library's documented public API rather than a copied call site).
type KubernetesBackend struct {
	cfg        *config.Config
	correction *correction.Client
	clientset  kubernetes.Interface
}

// NewKubernetesBackend builds Mode A's backend using in-cluster config.
func NewKubernetesBackend(cfg *config.Config, correctionClient *correction.Client) (*KubernetesBackend, error) {
	restCfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("kubernetes backend requires in-cluster config: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("build kubernetes clientset: %w", err)
	}
	return &KubernetesBackend{cfg: cfg, correction: correctionClient, clientset: clientset}, nil
}

// IsAvailable reports whether the Kubernetes API is reachable.
func (b *KubernetesBackend) IsAvailable(ctx context.Context) bool {
	_, err := b.clientset.Discovery().ServerVersion()
	return err == nil
}

// Transcribe creates a job with plain transcription options.
func (b *KubernetesBackend) Transcribe(ctx context.Context, req Request, onProgress ProgressSink) (*Result, error) {
	progressFile := filepath.Join(req.WorkspacePath, req.MeetingID+"_progress.json")
	resultFile := filepath.Join(req.WorkspacePath, req.MeetingID+"_transcript.json")
	defer cleanupFiles(progressFile, resultFile)

	opts := buildOptions(ctx, b.cfg, b.correction, req, progressFile)
	timeout := dynamicTimeout(b.cfg, req.AudioPath)
	return b.runJob(ctx, req, opts, timeout, progressFile, resultFile, onProgress, "transcribe")
}

// Retranscribe creates a job with the forced large-model,
// extraction-range options.
func (b *KubernetesBackend) Retranscribe(ctx context.Context, req Request, onProgress ProgressSink) (*Result, error) {
	progressFile := filepath.Join(req.WorkspacePath, req.MeetingID+"_progress.json")
	resultFile := filepath.Join(req.WorkspacePath, req.MeetingID+"_transcript.json")
	defer cleanupFiles(progressFile, resultFile)

	opts := buildRetranscribeOptions(ctx, b.cfg, b.correction, req, progressFile)
	timeout := retranscribeTimeout(req.Ranges)
	return b.runJob(ctx, req, opts, timeout, progressFile, resultFile, onProgress, "retranscribe")
}

func (b *KubernetesBackend) runJob(ctx context.Context, req Request, opts Options, timeout time.Duration, progressFile, resultFile string, onProgress ProgressSink, kind string) (*Result, error) {
	job, err := b.createJob(ctx, req, opts, kind)
	if err != nil {
		return nil, fmt.Errorf("create transcription job: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	watchCtx, stopWatch := context.WithCancel(runCtx)
	defer stopWatch()
	if onProgress != nil {
		go watchProgressFile(watchCtx, progressFile, b.cfg.JobPollInterval, func(ev ProgressEvent) {
			onProgress(req.MeetingID, req.ClientID, ev)
		})
	}

	result, err := b.pollJob(runCtx, job.Name, resultFile)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// pollJob polls the job's status on JobPollInterval, per spec.md §4.2's
// terminal conditions.
func (b *KubernetesBackend) pollJob(ctx context.Context, jobName, resultFile string) (*Result, error) {
	ticker := time.NewTicker(b.cfg.JobPollInterval)
	defer ticker.Stop()

	namespace := b.cfg.KubernetesNamespace
	for {
		select {
		case <-ctx.Done():
			_ = b.deleteJob(context.Background(), jobName)
			return &Result{Err: "transcription job timed out"}, nil
		case <-ticker.C:
			job, err := b.clientset.BatchV1().Jobs(namespace).Get(ctx, jobName, metav1.GetOptions{})
			if err != nil {
				return nil, fmt.Errorf("get job %s: %w", jobName, err)
			}
			if job.Status.Succeeded > 0 {
				result, err := readResultFile(resultFile)
				_ = b.deleteJob(context.Background(), jobName)
				if err != nil {
					return nil, fmt.Errorf("read result file for job %s: %w", jobName, err)
				}
				return result, nil
			}
			if job.Status.Failed > 0 {
				_ = b.deleteJob(context.Background(), jobName)
				return &Result{Err: "transcription job failed"}, nil
			}
		}
	}
}

func readResultFile(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode result file: %w", err)
	}
	return &result, nil
}

func (b *KubernetesBackend) createJob(ctx context.Context, req Request, opts Options, kind string) (*batchv1.Job, error) {
	optsJSON, err := json.Marshal(opts)
	if err != nil {
		return nil, err
	}

	mem, ok := memoryProvisioning[opts.Model]
	if !ok {
		mem = memoryProvisioning["base"]
	}

	jobName := fmt.Sprintf("%s-%s-%d", b.cfg.ServiceLabel, req.MeetingID, time.Now().UnixNano())
	backoffLimit := int32(0) // single-attempt per spec.md §4.2

	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      jobName,
			Namespace: b.cfg.KubernetesNamespace,
			Labels: map[string]string{
				jobLabelService: b.cfg.ServiceLabel,
				jobLabelMeeting: req.MeetingID,
			},
		},
		Spec: batchv1.JobSpec{
			BackoffLimit: &backoffLimit,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: map[string]string{
						jobLabelService: b.cfg.ServiceLabel,
						jobLabelMeeting: req.MeetingID,
					},
				},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{
						{
							Name:  "transcriber",
							Image: b.cfg.KubernetesJobImage,
							Env: []corev1.EnvVar{
								{Name: "AUDIO_PATH", Value: req.AudioPath},
								{Name: "WORKSPACE_PATH", Value: req.WorkspacePath},
								{Name: "MEETING_ID", Value: req.MeetingID},
								{Name: "CLIENT_ID", Value: req.ClientID},
								{Name: "KIND", Value: kind},
								{Name: "OPTIONS_JSON", Value: string(optsJSON)},
							},
							Resources: corev1.ResourceRequirements{
								Requests: corev1.ResourceList{
									corev1.ResourceCPU:    resource.MustParse("500m"),
									corev1.ResourceMemory: resource.MustParse(mem[0]),
								},
								Limits: corev1.ResourceList{
									corev1.ResourceCPU:    resource.MustParse("2"),
									corev1.ResourceMemory: resource.MustParse(mem[1]),
								},
							},
						},
					},
				},
			},
		},
	}

	created, err := b.clientset.BatchV1().Jobs(b.cfg.KubernetesNamespace).Create(ctx, job, metav1.CreateOptions{})
	if err != nil {
		return nil, err
	}
	logger.Info("created transcription job", "job", created.Name, "meeting_id", req.MeetingID)
	return created, nil
}

func (b *KubernetesBackend) deleteJob(ctx context.Context, jobName string) error {
	propagation := metav1.DeletePropagationBackground
	return b.clientset.BatchV1().Jobs(b.cfg.KubernetesNamespace).Delete(ctx, jobName, metav1.DeleteOptions{
		PropagationPolicy: &propagation,
	})
}

// DeleteJobsForMeeting removes every job labeled with this meeting, used
// both for operator-initiated cancellation and stuck-recovery cleanup.
func (b *KubernetesBackend) DeleteJobsForMeeting(ctx context.Context, meetingID string) (bool, error) {
	jobs, err := b.listJobsForMeeting(ctx, meetingID)
	if err != nil {
		return false, err
	}
	if len(jobs) == 0 {
		return false, nil
	}
	for _, job := range jobs {
		if err := b.deleteJob(ctx, job.Name); err != nil {
			return false, fmt.Errorf("delete job %s: %w", job.Name, err)
		}
	}
	return true, nil
}

// FindActiveJobForMeeting discovers a still-running job for this meeting
// by label, the mechanism C9's re-attach controller relies on after a
// process restart.
func (b *KubernetesBackend) FindActiveJobForMeeting(ctx context.Context, meetingID string) (string, bool, error) {
	jobs, err := b.listJobsForMeeting(ctx, meetingID)
	if err != nil {
		return "", false, err
	}
	for _, job := range jobs {
		if job.Status.Succeeded == 0 && job.Status.Failed == 0 {
			return job.Name, true, nil
		}
	}
	return "", false, nil
}

func (b *KubernetesBackend) listJobsForMeeting(ctx context.Context, meetingID string) ([]batchv1.Job, error) {
	selector := fmt.Sprintf("%s=%s,%s=%s", jobLabelService, b.cfg.ServiceLabel, jobLabelMeeting, meetingID)
	list, err := b.clientset.BatchV1().Jobs(b.cfg.KubernetesNamespace).List(ctx, metav1.ListOptions{
		LabelSelector: selector,
	})
	if err != nil {
		return nil, fmt.Errorf("list jobs for meeting %s: %w", meetingID, err)
	}
	return list.Items, nil
}

// WaitForExistingJob re-attaches to an already-running job discovered by
// C9, polling it to completion exactly like a freshly created job.
func (b *KubernetesBackend) WaitForExistingJob(ctx context.Context, jobName, audioPath string, meetingID, clientID string, onProgress ProgressSink) (*Result, error) {
	workspacePath := filepath.Dir(audioPath)
	progressFile := filepath.Join(workspacePath, meetingID+"_progress.json")
	resultFile := filepath.Join(workspacePath, meetingID+"_transcript.json")
	defer cleanupFiles(progressFile, resultFile)

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	if onProgress != nil {
		go watchProgressFile(watchCtx, progressFile, b.cfg.JobPollInterval, func(ev ProgressEvent) {
			onProgress(meetingID, clientID, ev)
		})
	}

	return b.pollJob(ctx, jobName, resultFile)
}
