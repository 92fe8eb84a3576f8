package pipeline

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/moka-guys/GeL-Reports/internal/platform/remote"
)

// RemoteError reports a failed remote job. Stderr carries the remote
// program's complaint when the program itself failed; cause carries the
// transport error when the channel did. The two are distinguishable so the
// orchestrator can separate business rejection from system fault.
type RemoteError struct {
	Op         string
	Stderr     string
	Incomplete bool
	Stats      remote.TransferStats
	cause      error
}

func (e *RemoteError) Error() string {
	switch {
	case e.Incomplete:
		return fmt.Sprintf("%s: incomplete file transfer, %d out of %d bytes", e.Op, e.Stats.Transferred, e.Stats.Total)
	case e.Stderr != "":
		return fmt.Sprintf("%s: remote program failed: %s", e.Op, strings.TrimSpace(e.Stderr))
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.cause)
	}
}

func (e *RemoteError) Unwrap() error { return e.cause }

// RemoteLogic reports whether the remote program itself signalled failure, as
// opposed to the channel or transfer breaking.
func (e *RemoteError) RemoteLogic() bool { return e.Stderr != "" && !e.Incomplete }

// JobRunner invokes the named remote programs on the application server. Both
// operations are synchronous and never retried; a single failure is reported
// to the caller.
type JobRunner struct {
	runner                  remote.Runner
	exitQuestionnaireScript string
	summaryFindingsScript   string
	summaryRemoteDir        string
	now                     func() time.Time
}

func NewJobRunner(runner remote.Runner, exitQuestionnaireScript, summaryFindingsScript, summaryRemoteDir string) *JobRunner {
	return &JobRunner{
		runner:                  runner,
		exitQuestionnaireScript: exitQuestionnaireScript,
		summaryFindingsScript:   summaryFindingsScript,
		summaryRemoteDir:        summaryRemoteDir,
		now:                     time.Now,
	}
}

// SubmitExitQuestionnaire submits the negneg clinical report and exit
// questionnaire for the interpretation request. Non-empty stderr from the
// remote program is failure; its exit code is not separately inspected.
func (j *JobRunner) SubmitExitQuestionnaire(ctx context.Context, irID, actor string) error {
	const op = "submit exit questionnaire"
	command := fmt.Sprintf("%s -i %s -r %s -d %s",
		j.exitQuestionnaireScript, irID, actor, j.now().Format("2006-01-02"))

	_, stderr, err := j.runner.Run(ctx, command)
	if err != nil {
		return &RemoteError{Op: op, cause: err}
	}
	if stderr != "" {
		return &RemoteError{Op: op, Stderr: stderr}
	}
	return nil
}

// DownloadSummaryFindings generates the summary-of-findings PDF on the server
// and pulls it back to localPath. The transfer is verified byte-for-byte: a
// short copy is an incomplete-transfer failure even though the file exists
// locally.
func (j *JobRunner) DownloadSummaryFindings(ctx context.Context, irID, header, localPath string) (remote.TransferStats, error) {
	const op = "download summary of findings"

	id, version, ok := strings.Cut(irID, "-")
	if !ok {
		return remote.TransferStats{}, &RemoteError{Op: op, cause: fmt.Errorf("interpretation request ID %q has no version", irID)}
	}

	remotePath := path.Join(j.summaryRemoteDir, filepath.Base(localPath))
	command := fmt.Sprintf("%s --ir_id %s --ir_version %s -o %s",
		j.summaryFindingsScript, id, version, remotePath)
	if header != "" {
		command += fmt.Sprintf(" --header '%s'", header)
	}

	_, stderr, err := j.runner.Run(ctx, command)
	if err != nil {
		return remote.TransferStats{}, &RemoteError{Op: op, cause: err}
	}
	if stderr != "" {
		return remote.TransferStats{}, &RemoteError{Op: op, Stderr: stderr}
	}

	stats, err := j.runner.Fetch(ctx, remotePath, localPath, nil)
	if err != nil {
		return stats, &RemoteError{Op: op, Stats: stats, cause: err}
	}
	if !stats.Complete() {
		return stats, &RemoteError{Op: op, Incomplete: true, Stats: stats}
	}
	return stats, nil
}
