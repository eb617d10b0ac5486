package httpapi

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/example/rocket-deliveries/internal/models"
	"github.com/example/rocket-deliveries/internal/pilots"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{"index", "signup", "login", "dashboard", "error", "404"}

type views struct {
	pages map[string]*template.Template
}

var templateFuncs = template.FuncMap{
	"money": func(cents int64) string {
		sign := ""
		if cents < 0 {
			sign, cents = "-", -cents
		}
		return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
	},
	"date": func(t time.Time) string { return t.Format("Jan 2, 15:04") },
}

func loadViews() (*views, error) {
	v := &views{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t, err := template.New("layout.html").Funcs(templateFuncs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		v.pages[name] = t
	}
	return v, nil
}

// page is the data every template receives.
type page struct {
	AppName     string
	Pilot       *models.Pilot
	Flashes     []string
	Step        pilots.Step
	Error       string
	Message     string
	ErrorDetail string
	Dashboard   *pilots.Dashboard
	ShowBanner  bool
}

// render executes into a buffer first so a template failure still yields a
// clean 500 instead of a half-written page.
func (v *views) render(w http.ResponseWriter, status int, name string, data page) error {
	t, ok := v.pages[name]
	if !ok {
		return fmt.Errorf("unknown template %q", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

func (s *Server) newPage(r *http.Request) page {
	return page{AppName: s.cfg.AppName, Pilot: pilotFromContext(r.Context())}
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data page) {
	if err := s.views.render(w, status, name, data); err != nil {
		s.logger.Error("render failed", "template", name, "err", err, "request_id", requestIDFromContext(r.Context()))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// renderError shows the generic error page. The underlying error is only
// exposed outside production.
func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, err error) {
	s.logger.Error("request failed", "status", status, "err", err, "request_id", requestIDFromContext(r.Context()))
	data := s.newPage(r)
	data.Message = http.StatusText(status)
	if !s.cfg.Production() && err != nil {
		data.ErrorDetail = err.Error()
	}
	s.render(w, r, status, "error", data)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusNotFound, "404", s.newPage(r))
}
