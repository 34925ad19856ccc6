// Package web serves a read only view of the training results in a directory: the aggregated table, the per
// epoch metrics for each run and the plots rendered as SVG.
package web

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/jnb666/mnistrun/log"
	"github.com/jnb666/mnistrun/metrics"
	"github.com/jnb666/mnistrun/nnet"
	"github.com/jnb666/mnistrun/plots"
)

const (
	plotWidth  = 800
	plotHeight = 480
)

// Options for the results server.
type Options struct {
	User     string
	Password string
	Realm    string
}

// Server renders the metrics files found in Dir. The files are reloaded on each request so that results from
// jobs which finish while the server is running are picked up.
type Server struct {
	Dir string
	*Templates
	handler http.Handler
}

// NewServer creates the router. If opts.User is set then requests require basic authentication.
func NewServer(dir string, opts Options) (*Server, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &metrics.IOError{Op: "open", Path: dir, Err: err}
	}
	if !info.IsDir() {
		return nil, errors.Errorf("%s is not a directory", dir)
	}
	t, err := NewTemplates()
	if err != nil {
		return nil, errors.Wrap(err, "parsing templates")
	}
	s := &Server{Dir: dir, Templates: t}
	r := mux.NewRouter()
	r.HandleFunc("/", s.Index())
	r.HandleFunc("/runs/{config}", s.Run())
	r.HandleFunc("/plot/accuracy.svg", s.AccuracyPlot())
	r.HandleFunc("/plot/loss/{config}.svg", s.LossPlot())
	s.handler = r
	if opts.User != "" {
		s.handler = NewAuthMiddleware(opts).Middleware(r)
	}
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log.Debugf("%s %s", r.Method, r.URL.Path)
	s.handler.ServeHTTP(w, r)
}

// Index page with the final epoch for each configuration.
func (s *Server) Index() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := metrics.LoadDir(r.Context(), s.Dir)
		if err != nil {
			logError(w, err)
			return
		}
		rows, err := metrics.Aggregate(records)
		if err != nil {
			logError(w, err)
			return
		}
		t := s.page("/", "Results")
		for _, rec := range records {
			t.AddMenuItem(Link{Name: rec.ConfigID, Url: "/runs/" + rec.ConfigID})
		}
		t.Exec(w, "index", map[string]interface{}{
			"Heading": t.Heading, "Menu": t.Menu, "Columns": t.Columns(), "Rows": rows, "Dir": s.Dir,
		})
	}
}

// Run page with the metrics for each epoch and the saved model configuration if it can be loaded.
func (s *Server) Run() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["config"]
		rec, err := s.load(id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		t := s.page(r.URL.Path, "Run "+id)
		t.AddMenuItem(Link{Name: id, Url: r.URL.Path, Selected: true})
		data := map[string]interface{}{
			"Heading": t.Heading, "Menu": t.Menu, "Columns": t.Columns()[1:], "Record": rec,
		}
		if m, ok := s.model(id); ok {
			data["Model"] = m.Config.String()
		}
		t.Exec(w, "run", data)
	}
}

// AccuracyPlot returns the final accuracy bar chart.
func (s *Server) AccuracyPlot() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := metrics.LoadDir(r.Context(), s.Dir)
		if err != nil {
			logError(w, err)
			return
		}
		rows, err := metrics.Aggregate(records)
		if err != nil {
			logError(w, err)
			return
		}
		p, err := plots.Accuracy(rows)
		if err != nil {
			logError(w, err)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		if err := plots.WriteSVG(w, p, plotWidth, plotHeight); err != nil {
			log.Println(err)
		}
	}
}

// LossPlot returns the loss curves for one configuration.
func (s *Server) LossPlot() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := s.load(mux.Vars(r)["config"])
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		p, err := plots.Loss([]metrics.Record{rec})
		if err != nil {
			logError(w, err)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		if err := plots.WriteSVG(w, p, plotWidth, plotHeight); err != nil {
			log.Println(err)
		}
	}
}

func (s *Server) page(url, heading string) *Templates {
	t := s.Templates.Clone()
	t.Heading = heading
	return t.Select(url)
}

func (s *Server) load(id string) (metrics.Record, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return metrics.Record{}, errors.Errorf("invalid config name %q", id)
	}
	rec, err := metrics.Read(filepath.Join(s.Dir, id+metrics.Suffix))
	if err != nil {
		return rec, err
	}
	rec.ConfigID = id
	return rec, nil
}

// model looks for the saved model which the metrics file was written alongside.
func (s *Server) model(id string) (nnet.Model, bool) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nnet.Model{}, false
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasSuffix(name, metrics.Suffix) || strings.TrimSuffix(name, filepath.Ext(name)) != id {
			continue
		}
		m, err := nnet.LoadModel(filepath.Join(s.Dir, name))
		if err != nil {
			log.Debugf("skip %s: %s", name, err)
			continue
		}
		return m, true
	}
	return nnet.Model{}, false
}
