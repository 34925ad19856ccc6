// Package slurm submits training runs as batch jobs to a Slurm cluster.
package slurm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/jnb666/mnistrun/log"
	"github.com/jnb666/mnistrun/train"
)

// DefaultScriptPath is where the job script is written.
const DefaultScriptPath = "submit_model_training.slurm"

// JobID is the identifier assigned by the scheduler.
type JobID string

// SubmissionError is returned if sbatch fails or its output does not contain a job id.
type SubmissionError struct {
	Script     string
	ExitStatus int
	Stdout     string
	Stderr     string
	Err        error
}

func (e *SubmissionError) Error() string {
	msg := fmt.Sprintf("submitting %s", e.Script)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.ExitStatus > 0 {
		msg += fmt.Sprintf(" (exit status %d)", e.ExitStatus)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *SubmissionError) Unwrap() error { return e.Err }

func (e *SubmissionError) Cause() error { return e.Err }

// Options configure the job script and submission.
type Options struct {
	JobName      string
	OutputLog    string
	Ntasks       int
	Gres         string
	Mem          string
	Time         string
	Partition    string
	Directives   map[string]string
	Modules      []string
	Command      string
	Template     string
	ScriptPath   string
	UniqueScript bool
	Sbatch       string
	Timeout      time.Duration
}

// DefaultOptions requests a single GPU task.
func DefaultOptions() Options {
	return Options{
		JobName:    "mnist_training",
		OutputLog:  "slurm_output_%j.log",
		Ntasks:     1,
		Gres:       "gpu:1",
		Mem:        "8G",
		Time:       "02:00:00",
		Partition:  "gpu",
		Command:    "train",
		Template:   DefaultTemplate,
		ScriptPath: DefaultScriptPath,
		Sbatch:     "sbatch",
	}
}

// OptionsFromConfig reads the settings under the slurm key, using the defaults for any which are not set.
// template_file names a file containing the job script template.
func OptionsFromConfig(v *viper.Viper) (Options, error) {
	o := DefaultOptions()
	sub := v.Sub("slurm")
	if sub == nil {
		return o, nil
	}
	setString := func(key string, dst *string) {
		if sub.IsSet(key) {
			*dst = cast.ToString(sub.Get(key))
		}
	}
	setString("job_name", &o.JobName)
	setString("output_log", &o.OutputLog)
	setString("gres", &o.Gres)
	setString("mem", &o.Mem)
	setString("time", &o.Time)
	setString("partition", &o.Partition)
	setString("command", &o.Command)
	setString("script_path", &o.ScriptPath)
	setString("sbatch", &o.Sbatch)
	if sub.IsSet("ntasks") {
		n, err := cast.ToIntE(sub.Get("ntasks"))
		if err != nil {
			return o, errors.Wrap(err, "slurm.ntasks")
		}
		o.Ntasks = n
	}
	if sub.IsSet("directives") {
		d, err := cast.ToStringMapStringE(sub.Get("directives"))
		if err != nil {
			return o, errors.Wrap(err, "slurm.directives")
		}
		o.Directives = d
	}
	if sub.IsSet("modules") {
		o.Modules = cast.ToStringSlice(sub.Get("modules"))
	}
	if sub.IsSet("timeout") {
		d, err := cast.ToDurationE(sub.Get("timeout"))
		if err != nil {
			return o, errors.Wrap(err, "slurm.timeout")
		}
		o.Timeout = d
	}
	o.UniqueScript = cast.ToBool(sub.Get("unique_script"))
	if file := cast.ToString(sub.Get("template_file")); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return o, errors.Wrap(err, "reading job script template")
		}
		o.Template = string(data)
	}
	return o, nil
}

// Submitter renders the job script for a run and submits it with sbatch.
type Submitter struct {
	Options
	Exec Executor
}

// NewSubmitter returns a submitter which runs sbatch as a subprocess.
func NewSubmitter(opts Options) *Submitter {
	return &Submitter{Options: opts, Exec: CommandExecutor{Timeout: opts.Timeout}}
}

// Params returns the template parameters for a run.
func (s *Submitter) Params(hp train.Hyperparameters) JobParams {
	return JobParams{
		Hyperparameters: hp,
		JobName:         s.JobName,
		OutputLog:       s.OutputLog,
		Ntasks:          s.Ntasks,
		Gres:            s.Gres,
		Mem:             s.Mem,
		Time:            s.Time,
		Partition:       s.Partition,
		Directives:      s.Directives,
		Modules:         s.Modules,
		Command:         s.Command,
	}
}

// scriptPath returns the file name for the job script, with a unique suffix if UniqueScript is set.
func (s *Submitter) scriptPath() string {
	path := s.ScriptPath
	if path == "" {
		path = DefaultScriptPath
	}
	if !s.UniqueScript {
		return path
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + uuid.NewV4().String() + ext
}

// Submit writes the job script, overwriting any previous one, submits it and returns the job id.
// It does not wait for the job to run.
func (s *Submitter) Submit(ctx context.Context, hp train.Hyperparameters) (JobID, error) {
	if err := hp.Validate(); err != nil {
		return "", err
	}
	tmpl := s.Template
	if tmpl == "" {
		tmpl = DefaultTemplate
	}
	script, err := RenderScript(tmpl, s.Params(hp))
	if err != nil {
		return "", err
	}
	path := s.scriptPath()
	if err = os.WriteFile(path, []byte(script), 0644); err != nil {
		return "", errors.Wrap(err, "writing job script")
	}
	log.Debugf("wrote job script %s:\n%s", path, script)
	sbatch := s.Sbatch
	if sbatch == "" {
		sbatch = "sbatch"
	}
	stdout, stderr, err := s.Exec.Run(ctx, sbatch, path)
	if err != nil {
		return "", &SubmissionError{Script: path, ExitStatus: ExitStatus(err), Stdout: stdout, Stderr: stderr, Err: err}
	}
	id, err := ParseJobID(stdout)
	if err != nil {
		return "", &SubmissionError{Script: path, Stdout: stdout, Stderr: stderr, Err: err}
	}
	log.Printf("job submitted with id %s", id)
	return id, nil
}

// ParseJobID returns the last whitespace separated token in the sbatch output.
func ParseJobID(stdout string) (JobID, error) {
	fields := strings.Fields(stdout)
	if len(fields) == 0 {
		return "", errors.New("no job id in sbatch output")
	}
	return JobID(fields[len(fields)-1]), nil
}
