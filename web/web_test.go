package web

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnb666/mnistrun/metrics"
	"github.com/jnb666/mnistrun/nnet"
)

func writeRun(t *testing.T, dir, id string, epochs int) {
	rec := metrics.NewRecorder(id)
	for i := 1; i <= epochs; i++ {
		rec.Add(metrics.EpochMetric{
			Epoch:              i,
			Loss:               1 / float64(i),
			Accuracy:           0.8 + 0.05*float64(i),
			ValidationLoss:     metrics.Float(1.2 / float64(i)),
			ValidationAccuracy: metrics.Float(0.75 + 0.05*float64(i)),
		})
	}
	require.NoError(t, metrics.Write(filepath.Join(dir, id+metrics.Suffix), rec.Record()))
}

func get(t *testing.T, h http.Handler, url string) (int, string) {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", url, nil))
	body, err := io.ReadAll(w.Result().Body)
	require.NoError(t, err)
	return w.Code, string(body)
}

func TestIndex(t *testing.T) {
	dir := t.TempDir()
	writeRun(t, dir, "cfg1", 3)
	writeRun(t, dir, "cfg2", 2)
	s, err := NewServer(dir, Options{})
	require.NoError(t, err)

	code, body := get(t, s, "/")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `<a href="/runs/cfg1">cfg1</a>`)
	assert.Contains(t, body, `<a href="/runs/cfg2">cfg2</a>`)
	assert.Contains(t, body, "Validation Accuracy")
	assert.Contains(t, body, "0.9500")
}

func TestIndexEmpty(t *testing.T) {
	s, err := NewServer(t.TempDir(), Options{})
	require.NoError(t, err)
	code, body := get(t, s, "/")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "No results found")
}

func TestRunPage(t *testing.T) {
	dir := t.TempDir()
	writeRun(t, dir, "cfg1", 2)
	s, err := NewServer(dir, Options{})
	require.NoError(t, err)

	code, body := get(t, s, "/runs/cfg1")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, strings.Count(body, "<tr>\n<td>"))
	assert.Contains(t, body, "/plot/loss/cfg1.svg")

	code, _ = get(t, s, "/runs/missing")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestPlots(t *testing.T) {
	dir := t.TempDir()
	writeRun(t, dir, "cfg1", 3)
	s, err := NewServer(dir, Options{})
	require.NoError(t, err)

	for _, url := range []string{"/plot/accuracy.svg", "/plot/loss/cfg1.svg"} {
		code, body := get(t, s, url)
		assert.Equal(t, http.StatusOK, code, url)
		assert.Contains(t, body, "<svg", url)
	}
	code, _ := get(t, s, "/plot/loss/nope.svg")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestBadDir(t *testing.T) {
	_, err := NewServer(filepath.Join(t.TempDir(), "missing"), Options{})
	assert.Error(t, err)

	f := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(f, nil, 0644))
	_, err = NewServer(f, Options{})
	assert.Error(t, err)
}

func TestAuth(t *testing.T) {
	dir := t.TempDir()
	writeRun(t, dir, "cfg1", 1)
	s, err := NewServer(dir, Options{User: "admin", Password: "secret"})
	require.NoError(t, err)

	code, _ := get(t, s, "/")
	assert.Equal(t, http.StatusUnauthorized, code)

	for _, pass := range []string{"wrong", "secret"} {
		req := httptest.NewRequest("GET", "/", nil)
		req.SetBasicAuth("admin", pass)
		w := httptest.NewRecorder()
		s.ServeHTTP(w, req)
		if pass == "secret" {
			assert.Equal(t, http.StatusOK, w.Code)
		} else {
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		}
	}
}

func TestRunPageModel(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "runs[1]")
	require.NoError(t, os.Mkdir(dir, 0755))
	writeRun(t, dir, "cfg1", 1)
	b := nnet.NewBackend(nnet.Config{Optimizer: "adam", Eta: 0.002})
	require.NoError(t, b.Build([]string{"0", "1"}, []int{1, 10, 10}))
	_, err := b.Save(filepath.Join(dir, "cfg1.gob"))
	require.NoError(t, err)

	s, err := NewServer(dir, Options{})
	require.NoError(t, err)
	code, body := get(t, s, "/runs/cfg1")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "<h3>Model</h3>")
	assert.Contains(t, body, "0.002")
	code, body = get(t, s, "/")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `<a href="/runs/cfg1">cfg1</a>`)
}

func TestAuthCookie(t *testing.T) {
	dir := t.TempDir()
	writeRun(t, dir, "cfg1", 1)
	s, err := NewServer(dir, Options{User: "admin", Password: "secret"})
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/", nil)
	req.SetBasicAuth("admin", "secret")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, cookieName, cookies[0].Name)

	// the session cookie is enough on later requests
	req = httptest.NewRequest("GET", "/runs/cfg1", nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// a forged cookie is not
	req = httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: cookieValue})
	w = httptest.NewRecorder()
	s.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// nor one from another server
	other, err := NewServer(dir, Options{User: "admin", Password: "secret"})
	require.NoError(t, err)
	req = httptest.NewRequest("GET", "/", nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	other.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
