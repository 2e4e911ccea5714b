package view

import (
	"io/fs"
	"strings"
	"sync"

	"github.com/thibaut-decherit/usermanager/internal/email"
)

// FSRenderer renders views found in a file system. Views are parsed
// on first use and kept for the lifetime of the renderer.
type FSRenderer struct {
	fs fs.FS

	mu    sync.Mutex
	views map[string]*View
}

func NewFSRenderer(fsys fs.FS) *FSRenderer {
	return &FSRenderer{
		fs:    fsys,
		views: make(map[string]*View),
	}
}

// Render implements email.Renderer.
func (r *FSRenderer) Render(name string, element email.TemplateElement, data any) (string, error) {
	v, err := r.view(name)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if err := v.Render(&sb, element, data); err != nil {
		return "", err
	}

	return sb.String(), nil
}

// Check parses all named views, so missing templates are found at startup.
func (r *FSRenderer) Check(names ...string) error {
	for _, name := range names {
		if _, err := r.view(name); err != nil {
			return err
		}
	}
	return nil
}

func (r *FSRenderer) view(name string) (*View, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.views[name]; ok {
		return v, nil
	}

	v, err := Parse(r.fs, name)
	if err != nil {
		return nil, err
	}

	r.views[name] = v
	return v, nil
}
