package app

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"customerqueries/web/internal/view"
)

//go:embed templates/*.html
var templateFS embed.FS

var templateFuncs = template.FuncMap{
	"formatTime": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Format("Jan 2, 2006 15:04")
	},
}

var pageTemplates = mustLoadTemplates()

func mustLoadTemplates() map[view.ViewKind]*template.Template {
	kinds := []view.ViewKind{
		view.ViewLoading,
		view.ViewLanding,
		view.ViewProtected,
		view.ViewLogin,
		view.ViewSignup,
	}
	out := make(map[view.ViewKind]*template.Template, len(kinds))
	for _, kind := range kinds {
		tmpl, err := template.New("layout.html").Funcs(templateFuncs).ParseFS(templateFS,
			"templates/layout.html",
			"templates/"+string(kind)+".html",
		)
		if err != nil {
			panic(fmt.Sprintf("parse template %s: %v", kind, err))
		}
		out[kind] = tmpl
	}
	return out
}

func (s *HTTPServer) render(w http.ResponseWriter, r *http.Request, status int, kind view.ViewKind, data map[string]any) {
	tmpl, ok := pageTemplates[kind]
	if !ok {
		s.logger.Error("template not found", "view", kind)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	data["View"] = string(kind)

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		s.logger.Error("render failed", "view", kind, "path", r.URL.Path, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}
