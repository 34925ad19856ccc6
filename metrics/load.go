package metrics

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Suffix is appended to the model name to give the metrics file name.
const Suffix = "_output.txt"

// Input names a metrics file and the configuration it belongs to.
type Input struct {
	ConfigID string
	Path     string
}

// ParseInput parses an argument of the form config_id=path. If there is no '=' the config id is taken from the
// file name with the metrics suffix or extension removed.
func ParseInput(arg string) (Input, error) {
	if i := strings.Index(arg, "="); i >= 0 {
		in := Input{ConfigID: arg[:i], Path: arg[i+1:]}
		if in.ConfigID == "" || in.Path == "" {
			return in, errors.Errorf("invalid input %q: expecting config_id=path", arg)
		}
		return in, nil
	}
	if arg == "" {
		return Input{}, errors.New("empty input path")
	}
	return Input{ConfigID: ConfigName(arg), Path: arg}, nil
}

// ConfigName returns the base file name without the metrics suffix.
func ConfigName(path string) string {
	base := filepath.Base(path)
	if strings.HasSuffix(base, Suffix) {
		return strings.TrimSuffix(base, Suffix)
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// LoadAll reads the metrics files concurrently. The records are returned in the same order as the inputs
// with ConfigID set. The first error cancels the remaining reads.
func LoadAll(ctx context.Context, inputs []Input) ([]Record, error) {
	records := make([]Record, len(inputs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := Read(in.Path)
			if err != nil {
				return err
			}
			rec.ConfigID = in.ConfigID
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

// LoadDir reads all of the metrics files in dir, sorted by config name.
func LoadDir(ctx context.Context, dir string) ([]Record, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &IOError{Op: "list", Path: dir, Err: err}
	}
	var inputs []Input
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Suffix) || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		inputs = append(inputs, Input{ConfigID: ConfigName(e.Name()), Path: filepath.Join(dir, e.Name())})
	}
	return LoadAll(ctx, inputs)
}
