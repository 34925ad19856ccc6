package web

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/jnb666/mnistrun/log"
	"github.com/jnb666/mnistrun/metrics"
)

//go:embed assets/*.html
var assets embed.FS

var funcs = template.FuncMap{
	"float": func(v float64) string { return fmt.Sprintf("%.4f", v) },
	"optFloat": func(v *float64) string {
		if v == nil {
			return "-"
		}
		return fmt.Sprintf("%.4f", *v)
	},
}

// Template and main menu definition
type Templates struct {
	*template.Template
	Menu    []Link
	Heading string
}

type Link struct {
	Url      string
	Name     string
	Selected bool
}

// Parse templates and initialise main menu
func NewTemplates() (*Templates, error) {
	tmpl, err := template.New("").Funcs(funcs).ParseFS(assets, "assets/*.html")
	if err != nil {
		return nil, err
	}
	t := &Templates{Template: tmpl}
	t.AddMenuItem(Link{Name: "results", Url: "/"})
	return t, nil
}

// Clone returns a copy with its own menu so that pages can be rendered concurrently.
func (t *Templates) Clone() *Templates {
	return &Templates{Template: t.Template, Menu: append([]Link{}, t.Menu...), Heading: t.Heading}
}

func (t *Templates) Select(url string) *Templates {
	for i, key := range t.Menu {
		t.Menu[i].Selected = key.Url == url || (key.Url != "/" && strings.HasPrefix(url, key.Url))
	}
	return t
}

func (t *Templates) AddMenuItem(l Link) *Templates {
	t.Menu = append(t.Menu, l)
	return t
}

// Columns returns the table headings.
func (t *Templates) Columns() []string {
	return metrics.Header
}

// Exec renders the named template, logging any error.
func (t *Templates) Exec(w http.ResponseWriter, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := t.ExecuteTemplate(w, name, data); err != nil {
		logError(w, err)
	}
}

func logError(w http.ResponseWriter, err error) {
	log.Println(err)
	http.Error(w, fmt.Sprint(err), http.StatusInternalServerError)
}
