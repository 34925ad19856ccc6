package slurm

import (
	"sort"
	"strings"
	"text/template"

	"github.com/pkg/errors"

	"github.com/jnb666/mnistrun/train"
)

// DefaultTemplate is the job script used unless a template file is configured.
const DefaultTemplate = `#!/bin/bash
#SBATCH --job-name={{.JobName}}
#SBATCH --output={{.OutputLog}}
#SBATCH --ntasks={{.Ntasks}}
{{- with .Gres}}
#SBATCH --gres={{.}}
{{- end}}
{{- with .Mem}}
#SBATCH --mem={{.}}
{{- end}}
{{- with .Time}}
#SBATCH --time={{.}}
{{- end}}
{{- with .Partition}}
#SBATCH --partition={{.}}
{{- end}}
{{- range .ExtraDirectives}}
#SBATCH --{{.}}
{{- end}}
{{range .Modules}}
module load {{.}}
{{- end}}

{{.Command}} --output {{quote .OutputPath}} --epochs {{.Epochs}} --batch_size {{.BatchSize}}
`

// JobParams are the values substituted into the job script template.
type JobParams struct {
	train.Hyperparameters
	JobName    string
	OutputLog  string
	Ntasks     int
	Gres       string
	Mem        string
	Time       string
	Partition  string
	Directives map[string]string
	Modules    []string
	Command    string
}

// ExtraDirectives returns the additional #SBATCH options as name=value sorted by name.
func (p JobParams) ExtraDirectives() []string {
	var res []string
	for k, v := range p.Directives {
		if v == "" {
			res = append(res, k)
		} else {
			res = append(res, k+"="+v)
		}
	}
	sort.Strings(res)
	return res
}

var funcs = template.FuncMap{
	"quote": shellQuote,
}

// quote for use as a single shell word
func shellQuote(s string) string {
	if s != "" && strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./=:+@%", r))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// RenderScript substitutes the parameters into the job script template.
func RenderScript(tmpl string, p JobParams) (string, error) {
	t, err := template.New("job").Funcs(funcs).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", errors.Wrap(err, "parsing job script template")
	}
	var b strings.Builder
	if err = t.Execute(&b, p); err != nil {
		return "", errors.Wrap(err, "rendering job script")
	}
	return b.String(), nil
}
