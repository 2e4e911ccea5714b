package mailgun_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thibaut-decherit/usermanager/internal/email"
	"github.com/thibaut-decherit/usermanager/internal/email/mailgun"
	"github.com/thibaut-decherit/usermanager/internal/krypto"
)

type request struct {
	path    string
	user    string
	pass    string
	from    string
	to      string
	subject string
	text    string
	html    string
}

func newServer(t *testing.T, status int) (*httptest.Server, *[]request) {
	t.Helper()

	var got []request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			if err := r.ParseForm(); err != nil {
				t.Errorf("failed to parse form: %v", err)
			}
		}

		user, pass, _ := r.BasicAuth()
		got = append(got, request{
			path:    r.URL.Path,
			user:    user,
			pass:    pass,
			from:    r.FormValue("from"),
			to:      r.FormValue("to"),
			subject: r.FormValue("subject"),
			text:    r.FormValue("text"),
			html:    r.FormValue("html"),
		})

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"id":"<1@mg.example.com>","message":"Queued. Thank you."}`))
	}))
	t.Cleanup(srv.Close)

	return srv, &got
}

func Test_Sender_Send(t *testing.T) {
	msg := email.Message{
		From:    "noreply@mg.example.com",
		To:      "alice@example.com",
		Subject: "Reset your password",
		Text:    "Click the link",
		HTML:    "<p>Click the link</p>",
	}

	t.Run("ok, message sent", func(t *testing.T) {
		srv, got := newServer(t, http.StatusOK)

		s := mailgun.NewSender(mailgun.Settings{
			Domain:  "mg.example.com",
			APIKey:  krypto.NewSecret("key-123"),
			APIBase: srv.URL + "/v3",
		})

		err := s.Send(context.Background(), msg)
		require.NoError(t, err)

		require.Len(t, *got, 1)
		req := (*got)[0]
		assert.True(t, strings.HasSuffix(req.path, "/mg.example.com/messages"), req.path)
		assert.Equal(t, "api", req.user)
		assert.Equal(t, "key-123", req.pass)
		assert.Equal(t, "noreply@mg.example.com", req.from)
		assert.Equal(t, "alice@example.com", req.to)
		assert.Equal(t, "Reset your password", req.subject)
		assert.Equal(t, "Click the link", req.text)
		assert.Equal(t, "<p>Click the link</p>", req.html)
	})

	t.Run("fail, api error", func(t *testing.T) {
		srv, _ := newServer(t, http.StatusUnauthorized)

		s := mailgun.NewSender(mailgun.Settings{
			Domain:  "mg.example.com",
			APIKey:  krypto.NewSecret("wrong"),
			APIBase: srv.URL + "/v3",
		})

		err := s.Send(context.Background(), msg)
		assert.Error(t, err)
	})
}
