package account

import (
	"errors"
	"regexp"
	"strings"

	"github.com/thibaut-decherit/usermanager/internal/email"
	"github.com/thibaut-decherit/usermanager/internal/errorz"
	"github.com/thibaut-decherit/usermanager/internal/krypto"
)

const maxUsernameBytes = 255

var (
	ErrInvalidUsername = errors.New("invalid username")
	ErrUsernameTaken   = errors.New("username is taken")

	// loginEmailRegexp decides whether a login identifier is an email address.
	loginEmailRegexp = regexp.MustCompile(`^.+@\S+\.\S+$`)
)

// Registration is a validated registration request.
type Registration struct {
	Username string
	Email    email.Address
	Password krypto.Password
}

// ParseRegistration validates raw registration input. All problems are
// reported at once as an errorz.InvalidInput of errorz.Keyed errors.
func ParseRegistration(username, addr, password string) (Registration, error) {
	var (
		r    Registration
		errs errorz.InvalidInput
		err  error
	)

	r.Username, err = ParseUsername(username)
	if err != nil {
		errs = append(errs, errorz.Keyed{Key: "username", Err: err})
	}

	r.Email, err = email.ParseAddress(addr)
	if err != nil {
		errs = append(errs, errorz.Keyed{Key: "email", Err: err})
	}

	r.Password, err = krypto.ParsePassword(password)
	if err != nil {
		errs = append(errs, errorz.Keyed{Key: "password", Err: err})
	}

	if len(errs) > 0 {
		return Registration{}, errs
	}

	return r, nil
}

// ParseUsername trims raw and checks it is a usable username. Usernames
// can't contain an @, that is how logins tell them apart from addresses.
func ParseUsername(raw string) (string, error) {
	username := strings.TrimSpace(raw)
	if username == "" || len(username) > maxUsernameBytes || strings.Contains(username, "@") {
		return "", ErrInvalidUsername
	}
	return username, nil
}

func isEmailLogin(login string) bool {
	return loginEmailRegexp.MatchString(login)
}
