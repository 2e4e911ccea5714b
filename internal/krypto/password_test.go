package krypto_test

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/thibaut-decherit/usermanager/internal/krypto"
	"golang.org/x/crypto/bcrypt"
)

func Test_ParsePassword(t *testing.T) {
	okTests := map[string]string{
		"ok, minimum length": "12345678",
		"ok, maximum length": strings.Repeat("a", 512),
		"ok, non-ascii":      "🥸🥸🥸",
	}

	for name, raw := range okTests {
		t.Run(name, func(t *testing.T) {
			_, err := krypto.ParsePassword(raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}

	failTests := map[string]string{
		"fail, empty":     "",
		"fail, too short": "1234567",
		"fail, too long":  strings.Repeat("a", 513),
	}

	for name, raw := range failTests {
		t.Run(name, func(t *testing.T) {
			_, err := krypto.ParsePassword(raw)
			if !errors.Is(err, krypto.ErrInvalidPassword) {
				t.Fatalf("expected %v, got %v (via errors.Is)", krypto.ErrInvalidPassword, err)
			}
		})
	}
}

func Test_Password_HashAndVerify(t *testing.T) {
	pwd := must(krypto.ParsePassword("reallyStrongPassword1"))

	t.Run("ok, argon2 hash matches", func(t *testing.T) {
		encoded := must(pwd.Hash())

		match, rehash, err := pwd.Verify(encoded)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !match || rehash {
			t.Errorf("got match=%v rehash=%v, want match=true rehash=false", match, rehash)
		}
	})

	t.Run("ok, argon2 hash does not match other password", func(t *testing.T) {
		encoded := must(pwd.Hash())
		other := must(krypto.ParsePassword("anotherPassword"))

		match, _, err := other.Verify(encoded)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if match {
			t.Errorf("expected no match")
		}
	})

	t.Run("ok, legacy bcrypt hash matches and needs rehash", func(t *testing.T) {
		legacy := must(bcrypt.GenerateFromPassword([]byte("reallyStrongPassword1"), bcrypt.MinCost))

		match, rehash, err := pwd.Verify(string(legacy))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !match || !rehash {
			t.Errorf("got match=%v rehash=%v, want match=true rehash=true", match, rehash)
		}
	})

	t.Run("ok, legacy bcrypt hash does not match", func(t *testing.T) {
		legacy := must(bcrypt.GenerateFromPassword([]byte("somethingElse1"), bcrypt.MinCost))

		match, rehash, err := pwd.Verify(string(legacy))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if match || rehash {
			t.Errorf("got match=%v rehash=%v, want both false", match, rehash)
		}
	})

	t.Run("fail, unknown hash format", func(t *testing.T) {
		_, _, err := pwd.Verify("plaintext")
		if !errors.Is(err, krypto.ErrUnknownHash) {
			t.Fatalf("expected %v, got %v (via errors.Is)", krypto.ErrUnknownHash, err)
		}
	})
}

func Test_Password_PreventExposure(t *testing.T) {
	raw := "reallyStrongPassword1"
	pwd := must(krypto.ParsePassword(raw))

	for _, verb := range []string{"%s", "%v", "%+v", "%#v"} {
		if got := fmt.Sprintf(verb, pwd); got != krypto.SecretMarker {
			t.Errorf("%s: got %s, want %s", verb, got, krypto.SecretMarker)
		}
	}

	var buf bytes.Buffer
	slog.New(slog.NewTextHandler(&buf, nil)).Info("logging a password", "password", pwd)
	if strings.Contains(buf.String(), raw) {
		t.Errorf("log output\n%s\ncontains raw password", buf.String())
	}
}
