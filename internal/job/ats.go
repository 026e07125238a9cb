package job

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"
)

// TEFactory builds a runnable Test Executable from an ATS source,
// syntax-checks it, and builds the command line used to fork it.
// Injected into AtsJob so job preparation stays independent of the
// concrete TTCN-3 compiler/interpreter.
type TEFactory interface {
	// Generate extracts metadata from source, produces a TE main module
	// file under outDir, and syntax-checks it. Returns the path to the
	// generated TE main module and the script's declared parameter
	// defaults (its "signature").
	Generate(source, sourcePath, outDir string) (teMainPath string, defaults map[string]string, err error)

	// BuildCommand returns the executable, args and extra environment
	// used to run the packaged TE artefact at artefactPath.
	BuildCommand(artefactPath string, inputSessionFile string) (command string, args []string, env map[string]string)
}

// AtsJob is a job running a single Abstract Test Suite.
type AtsJob struct {
	Base

	source      string
	factory     TEFactory
	resolver    DependencyResolver
	docRoot     string
	coreModules string
	mergeMode   MergeMode
	groups      []string

	stagingDir  string
	archivePath string
	defaults    map[string]string

	mu      sync.Mutex
	proc    *Process
	pausedAt time.Time
}

// NewAtsJob constructs an AtsJob. source is the ATS script text.
func NewAtsJob(base Base, source string, factory TEFactory, resolver DependencyResolver, docRoot, coreModules string, mergeMode MergeMode, groups []string) *AtsJob {
	if resolver == nil {
		resolver = TextImportResolver{}
	}
	return &AtsJob{
		Base:        base,
		source:      source,
		factory:     factory,
		resolver:    resolver,
		docRoot:     docRoot,
		coreModules: coreModules,
		mergeMode:   mergeMode,
		groups:      groups,
	}
}

// Prepare implements Job.Prepare.
func (j *AtsJob) Prepare() error {
	workDir, err := os.MkdirTemp("", fmt.Sprintf("te-%d-", j.ID()))
	if err != nil {
		j.fail(20, fmt.Errorf("creating staging workdir: %w", err))
		return err
	}

	teMain, defaults, err := j.factory.Generate(j.source, j.SourcePath(), workDir)
	if err != nil {
		j.fail(21, fmt.Errorf("generating TE: %w", err))
		return err
	}
	j.defaults = defaults

	// Imports are read from the generated TE main module, which carries
	// the submitted source text, so the source need not exist as a file
	// under the doc root.
	deps, err := j.resolver.Resolve(teMain, j.docRoot)
	if err != nil {
		j.fail(22, fmt.Errorf("resolving dependencies: %w", err))
		return err
	}

	meta := Metadata{Name: j.Name(), Version: "1", Sources: append([]string{j.SourcePath()}, deps...)}
	if err := Stage(workDir, teMain, deps, j.docRoot, j.coreModules, meta); err != nil {
		j.fail(23, fmt.Errorf("staging TE artefact: %w", err))
		return err
	}

	j.stagingDir = workDir
	j.SetState(StateWaiting)
	return nil
}

// fail records a preparation failure: result code in 20-29 and
// transition to Error.
func (j *AtsJob) fail(code int, err error) {
	j.SetResult(ResultPreparationBase + (code - 20))
	j.SetState(StateError)
}

// PreRun implements Job.PreRun.
func (j *AtsJob) PreRun() error {
	now := time.Now()
	basename := LogBasename(now, j.ID(), j.Owner())
	archiveDir := filepath.Join(j.docRoot, "archives", j.Name(), basename)
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return fmt.Errorf("creating archive dir: %w", err)
	}
	j.archivePath = filepath.Join(archiveDir, "te.zip")
	j.SetLogPath(LogPath(j.docRoot, j.Name(), basename))
	return nil
}

// Run implements Job.Run.
func (j *AtsJob) Run(inputSession map[string]string) error {
	log, err := OpenLog(j.LogPath())
	if err != nil {
		return err
	}
	_ = log.WriteEvent("job.run.start", j.Name())

	if err := Archive(j.stagingDir, j.archivePath); err != nil {
		j.SetState(StateError)
		j.SetResult(ResultPreparationBase)
		return fmt.Errorf("archiving TE: %w", err)
	}

	merged, err := MergeSession(j.defaults, inputSession, j.Mapping(), j.mergeMode)
	if err != nil {
		j.SetState(StateError)
		return err
	}
	inputSessionFile := j.archivePath + ".in.json"
	outputSessionFile := j.archivePath + ".out.json"
	if err := writeSessionFile(inputSessionFile, merged); err != nil {
		j.SetState(StateError)
		return err
	}
	defer os.Remove(inputSessionFile)
	defer os.Remove(outputSessionFile)

	command, args, env := j.factory.BuildCommand(j.archivePath, inputSessionFile)
	ctx := context.Background()
	proc, err := Spawn(ctx, command, args, Environ(env), filepath.Dir(j.archivePath))
	if err != nil {
		j.SetState(StateError)
		j.SetResult(ResultPreparationBase)
		return err
	}

	j.mu.Lock()
	j.proc = proc
	j.mu.Unlock()

	j.SetState(StateRunning)
	retcode, sig, waitErr := proc.Wait()

	j.mu.Lock()
	j.proc = nil
	j.mu.Unlock()

	if waitErr != nil {
		j.SetState(StateError)
		j.SetResult(3)
		return waitErr
	}

	j.applyExitOutcome(retcode, sig)

	if out, readErr := readSessionFile(outputSessionFile); readErr == nil {
		j.SetOutputSession(out)
	}
	_ = log.WriteEvent("job.run.end", j.Name())
	return nil
}

// applyExitOutcome maps the TE process's exit code and terminating
// signal to the job's result code and terminal state.
func (j *AtsJob) applyExitOutcome(retcode int, sig syscall.Signal) {
	switch {
	case sig == syscall.SIGKILL:
		j.SetResult(ResultKilled)
		j.SetState(StateKilled)
	case sig != 0:
		j.SetResult(ResultCrash)
		j.SetState(StateError)
	case retcode == 0 || retcode == 4:
		j.SetResult(ResultComplete)
		j.SetState(StateComplete)
	case retcode == 1:
		j.SetResult(ResultCancelled)
		j.SetState(StateCancelled)
	default:
		j.SetResult(retcode)
		j.SetState(StateError)
	}
}

// HandleSignal implements Job.HandleSignal.
func (j *AtsJob) HandleSignal(sig Signal) error {
	if j.State().IsTerminal() {
		return nil
	}

	j.mu.Lock()
	proc := j.proc
	j.mu.Unlock()

	switch sig {
	case SignalCancel:
		switch j.State() {
		case StateWaiting:
			j.SetResult(ResultCancelled)
			j.SetState(StateCancelled)
			return nil
		case StatePaused:
			if proc == nil {
				return nil
			}
			j.SetState(StateCancelling)
			if err := proc.Signal(syscall.SIGCONT); err != nil {
				return err
			}
			return proc.Signal(syscall.SIGINT)
		case StateRunning:
			if proc == nil {
				return nil
			}
			j.SetState(StateCancelling)
			return proc.Signal(syscall.SIGINT)
		}
		return nil
	case SignalKill:
		if proc == nil {
			return nil
		}
		j.SetState(StateKilling)
		return proc.KillTree()
	case SignalPause:
		if j.State() != StateRunning || proc == nil {
			return nil
		}
		j.SetState(StatePaused)
		return proc.Signal(syscall.SIGSTOP)
	case SignalResume:
		if j.State() != StatePaused || proc == nil {
			return nil
		}
		j.SetState(StateRunning)
		return proc.Signal(syscall.SIGCONT)
	case SignalActionPerformed:
		if j.State() != StateRunning || proc == nil {
			return nil
		}
		return proc.Signal(syscall.SIGUSR1)
	}
	return nil
}

func writeSessionFile(path string, session map[string]string) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func readSessionFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var session map[string]string
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshaling session: %w", err)
	}
	return session, nil
}
