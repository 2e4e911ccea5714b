package email_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/thibaut-decherit/usermanager/internal/email"
	"github.com/thibaut-decherit/usermanager/internal/email/view"
	"github.com/thibaut-decherit/usermanager/internal/errorz/testerr"
)

var testFS = fstest.MapFS{
	"welcome.tmpl": &fstest.MapFile{Data: []byte(
		`{{ define "subject" }} Welcome {{ .Name }} {{ end }}{{ define "body" }}
Hi {{ .Name }},

Click {{ .Link }}
{{ end }}`,
	)},
	"blank.tmpl": &fstest.MapFile{Data: []byte(`{{ define "subject" }}  {{ end }}{{ define "body" }}x{{ end }}`)},
}

type welcome struct {
	Name string
	Link string
}

type layoutWelcome welcome

func (w layoutWelcome) EmailLayout() email.Layout {
	return email.Layout{
		Greeting: w.Name,
		Action:   &email.Action{Button: "Go", Link: w.Link},
	}
}

type fakeHTML struct {
	got email.Layout
	err error
}

func (f *fakeHTML) RenderHTML(l email.Layout) (string, error) {
	f.got = l
	return "<p>" + l.Greeting + "</p>", f.err
}

func Test_Service_Send(t *testing.T) {
	const from = email.Address("noreply@example.com")
	const to = email.Address("alice@example.com")

	t.Run("ok, plain text", func(t *testing.T) {
		sender := email.NewMemorySender()
		svc := email.NewService(from, view.NewFSRenderer(testFS), &fakeHTML{}, sender)

		err := svc.Send(context.Background(), "welcome", to, welcome{Name: "alice", Link: "http://x"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		msgs := sender.Messages()
		if len(msgs) != 1 {
			t.Fatalf("expected 1 message, got %d", len(msgs))
		}

		want := email.Message{
			From:    from,
			To:      to,
			Subject: "Welcome alice",
			Text:    "Hi alice,\n\nClick http://x\n",
		}
		if msgs[0] != want {
			t.Errorf("got %#v, want %#v", msgs[0], want)
		}
	})

	t.Run("ok, with html alternative", func(t *testing.T) {
		sender := email.NewMemorySender()
		html := &fakeHTML{}
		svc := email.NewService(from, view.NewFSRenderer(testFS), html, sender)

		err := svc.Send(context.Background(), "welcome", to, layoutWelcome{Name: "alice", Link: "http://x"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		msgs := sender.Messages()
		if len(msgs) != 1 || msgs[0].HTML != "<p>alice</p>" {
			t.Fatalf("unexpected messages %#v", msgs)
		}

		if html.got.Action == nil || html.got.Action.Link != "http://x" {
			t.Errorf("unexpected layout %#v", html.got)
		}
	})

	t.Run("ok, no html renderer", func(t *testing.T) {
		sender := email.NewMemorySender()
		svc := email.NewService(from, view.NewFSRenderer(testFS), nil, sender)

		err := svc.Send(context.Background(), "welcome", to, layoutWelcome{Name: "alice", Link: "http://x"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if msgs := sender.Messages(); msgs[0].HTML != "" {
			t.Errorf("expected no html, got %q", msgs[0].HTML)
		}
	})

	failTests := map[string]struct {
		template string
		to       email.Address
		html     *fakeHTML
		sendErr  error
		wantErr  error
	}{
		"fail, unknown template": {
			template: "unknown",
			to:       to,
			html:     &fakeHTML{},
		},
		"fail, blank subject": {
			template: "blank",
			to:       to,
			html:     &fakeHTML{},
		},
		"fail, no recipient": {
			template: "welcome",
			html:     &fakeHTML{},
			wantErr:  email.ErrInvalidEmail,
		},
		"fail, html fails": {
			template: "welcome",
			to:       to,
			html:     &fakeHTML{err: testerr.Err},
			wantErr:  testerr.Err,
		},
		"fail, sender fails": {
			template: "welcome",
			to:       to,
			html:     &fakeHTML{},
			sendErr:  testerr.Err,
			wantErr:  testerr.Err,
		},
	}

	for name, tc := range failTests {
		t.Run(name, func(t *testing.T) {
			sender := email.NewMemorySender()
			sender.Err = tc.sendErr
			svc := email.NewService(from, view.NewFSRenderer(testFS), tc.html, sender)

			err := svc.Send(context.Background(), tc.template, tc.to, layoutWelcome{Name: "alice", Link: "http://x"})
			if err == nil {
				t.Fatalf("expected error, got nil")
			}

			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected error %v, got %v (via errors.Is)", tc.wantErr, err)
			}

			if len(sender.Messages()) != 0 {
				t.Errorf("expected no messages")
			}
		})
	}
}

func Test_LogSender(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	err := email.NewLogSender(logger).Send(context.Background(), email.Message{
		From:    "noreply@example.com",
		To:      "alice@example.com",
		Subject: "Hello",
		Text:    "Body",
		HTML:    "<p>Body</p>",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"to=alice@example.com", "subject=Hello", "htmlBytes=11"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in log output %q", want, out)
		}
	}
}
