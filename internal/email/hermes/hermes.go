// Package hermes renders HTML email bodies with matcornic/hermes.
package hermes

import (
	"github.com/matcornic/hermes/v2"
	"github.com/thibaut-decherit/usermanager/internal/email"
)

// Product describes the application in the header and footer of emails.
type Product struct {
	Name string
	Link string
}

// Renderer renders email layouts with the default hermes theme.
type Renderer struct {
	h hermes.Hermes
}

func NewRenderer(p Product) *Renderer {
	return &Renderer{
		h: hermes.Hermes{
			Theme:         new(hermes.Default),
			TextDirection: hermes.TDLeftToRight,
			Product: hermes.Product{
				Name:        p.Name,
				Link:        p.Link,
				TroubleText: "If the '{ACTION}' button doesn't work, copy and paste the URL below into your web browser.",
			},
		},
	}
}

// RenderHTML implements email.HTMLRenderer.
func (r *Renderer) RenderHTML(l email.Layout) (string, error) {
	return r.h.GenerateHTML(toEmail(l))
}

func toEmail(l email.Layout) hermes.Email {
	body := hermes.Body{
		Name:   l.Greeting,
		Intros: l.Intros,
		Outros: l.Outros,
	}

	if l.Action != nil {
		body.Actions = []hermes.Action{
			{
				Instructions: l.Action.Instructions,
				Button: hermes.Button{
					Text: l.Action.Button,
					Link: l.Action.Link,
				},
			},
		}
	}

	return hermes.Email{Body: body}
}
