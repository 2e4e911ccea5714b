package view

import (
	"fmt"
	"io"
	"io/fs"
	"text/template"

	"github.com/thibaut-decherit/usermanager/internal/email"
)

// View is a template used to render email messages.
type View struct {
	tmpl *template.Template
}

// Parse parses the file system and returns a view for the given name.
// fs is expected to contain *.tmpl files in the root directory, each
// defining a subject and a body template.
func Parse(fsys fs.FS, name string) (*View, error) {
	// Names end up in filenames, they can't be trusted to not traverse directories.
	if err := validateName(name); err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("%s.tmpl", name)
	tmpl, err := template.New(name).Option("missingkey=error").ParseFS(fsys, filename)
	if err != nil {
		return nil, err
	}

	for _, el := range []email.TemplateElement{email.ElementSubject, email.ElementBody} {
		if tmpl.Lookup(string(el)) == nil {
			return nil, fmt.Errorf("view %s: missing %s template", name, el)
		}
	}

	return &View{
		tmpl: tmpl,
	}, nil
}

func (v *View) Render(w io.Writer, element email.TemplateElement, data any) error {
	return v.tmpl.ExecuteTemplate(w, string(element), data)
}

// validateName checks if all characters are alphanumeric, dashes or underscores.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("empty view name")
	}

	for _, c := range name {
		if !validViewRune(c) {
			return fmt.Errorf("invalid character %q in view name: %s", c, name)
		}
	}
	return nil
}

func validViewRune(r rune) bool {
	return r == '-' || r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
