// internal/api/handler/web/handler.go
package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

//go:embed templates/*
var templateFS embed.FS

// pages lists the page templates rendered inside layout.html.
var pages = []string{"dashboard.html"}

// Dashboard is the state the web UI renders and drives.
type Dashboard interface {
	Region(name string) (template.HTML, error)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Dismiss(id string) error
}

// PageOptions controls page-level settings.
type PageOptions struct {
	Title        string
	PollInterval time.Duration
	// NoticeInterval is how often the notification stack is re-fetched.
	NoticeInterval time.Duration
	BackendURL     string
}

// Handler provides web UI handlers with template rendering
type Handler struct {
	// pageTemplates holds separate template instances for each page
	// Each instance contains layout.html + the specific page template
	pageTemplates map[string]*template.Template
	partials      *template.Template
	dashboard     Dashboard
	opts          PageOptions
	logger        *zap.Logger
}

// NewHandler creates a new web handler with templates loaded from the given directory.
// If templatesDir is empty, it falls back to embedded templates.
func NewHandler(d Dashboard, opts PageOptions, templatesDir string, logger *zap.Logger) (*Handler, error) {
	fsys := TemplateFS()
	if templatesDir != "" {
		fsys = os.DirFS(filepath.Clean(templatesDir))
	}
	return NewHandlerWithFS(d, opts, fsys, logger)
}

// NewHandlerWithFS creates a new web handler using a custom filesystem.
// This is useful for testing or custom template sources.
func NewHandlerWithFS(d Dashboard, opts PageOptions, fsys fs.FS, logger *zap.Logger) (*Handler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Title == "" {
		opts.Title = "Trading Bot Dashboard"
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.NoticeInterval <= 0 {
		opts.NoticeInterval = time.Second
	}

	pageTemplates := make(map[string]*template.Template)
	for _, page := range pages {
		tmpl, err := template.ParseFS(fsys, "layout.html", page)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", page, err)
		}
		pageTemplates[page] = tmpl
	}

	partials, err := template.ParseFS(fsys, "control_response.html")
	if err != nil {
		return nil, fmt.Errorf("parsing control response template: %w", err)
	}

	return &Handler{
		pageTemplates: pageTemplates,
		partials:      partials,
		dashboard:     d,
		opts:          opts,
		logger:        logger,
	}, nil
}

// render executes the specified page template with the given data
func (h *Handler) render(w http.ResponseWriter, page string, data any) {
	tmpl, ok := h.pageTemplates[page]
	if !ok {
		http.Error(w, "template not found: "+page, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "layout.html", data); err != nil {
		h.logger.Error("render page", zap.String("page", page), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// TemplateFS returns the embedded template filesystem for external use.
func TemplateFS() fs.FS {
	subFS, err := fs.Sub(templateFS, "templates")
	if err != nil {
		// This should never happen with valid embed directive
		return templateFS
	}
	return subFS
}
