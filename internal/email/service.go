package email

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// TemplateElement is used by a renderer to identify the different parts of an email template.
type TemplateElement string

const (
	ElementSubject TemplateElement = "subject"
	ElementBody    TemplateElement = "body"
)

// Message is a rendered email, ready to be sent.
type Message struct {
	From    Address
	To      Address
	Subject string
	// Text is the plain text body, it is always set.
	Text string
	// HTML is an optional alternative body.
	HTML string
}

// Renderer is responsible for rendering email templates.
type Renderer interface {
	Render(name string, element TemplateElement, data any) (string, error)
}

// Layout is the structured content of an email, used to render HTML bodies.
type Layout struct {
	// Greeting is the name the email is addressed to.
	Greeting string
	Intros   []string
	Action   *Action
	Outros   []string
}

// Action is a call to action, rendered as a button.
type Action struct {
	Instructions string
	Button       string
	Link         string
}

// Layouter is implemented by template data that can be rendered as HTML.
type Layouter interface {
	EmailLayout() Layout
}

// HTMLRenderer renders a layout to an HTML document.
type HTMLRenderer interface {
	RenderHTML(l Layout) (string, error)
}

// Sender is responsible for actually sending an email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Service renders templated emails and hands them to a Sender.
type Service struct {
	from     Address
	renderer Renderer
	html     HTMLRenderer
	sender   Sender
}

// NewService creates a new email service. html is optional, when nil
// only plain text emails are sent.
func NewService(from Address, renderer Renderer, html HTMLRenderer, sender Sender) *Service {
	return &Service{
		from:     from,
		renderer: renderer,
		html:     html,
		sender:   sender,
	}
}

// Send renders the template with the given name and sends it to the recipient.
func (s *Service) Send(ctx context.Context, template string, to Address, data any) error {
	msg, err := s.Render(template, to, data)
	if err != nil {
		return err
	}

	if err := s.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send %s email: %w", template, err)
	}

	return nil
}

// Render renders the template with the given name without sending it.
func (s *Service) Render(template string, to Address, data any) (Message, error) {
	if to == "" {
		return Message{}, ErrInvalidEmail
	}

	subject, err := s.renderer.Render(template, ElementSubject, data)
	if err != nil {
		return Message{}, fmt.Errorf("failed to render subject of %s: %w", template, err)
	}

	subject = strings.TrimSpace(subject)
	if subject == "" {
		return Message{}, errors.New("empty subject")
	}

	body, err := s.renderer.Render(template, ElementBody, data)
	if err != nil {
		return Message{}, fmt.Errorf("failed to render body of %s: %w", template, err)
	}

	msg := Message{
		From:    s.from,
		To:      to,
		Subject: subject,
		Text:    strings.TrimSpace(body) + "\n",
	}

	if l, ok := data.(Layouter); ok && s.html != nil {
		msg.HTML, err = s.html.RenderHTML(l.EmailLayout())
		if err != nil {
			return Message{}, fmt.Errorf("failed to render html of %s: %w", template, err)
		}
	}

	return msg, nil
}
