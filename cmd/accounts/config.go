package main

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/thibaut-decherit/usermanager/internal/account"
	"github.com/thibaut-decherit/usermanager/internal/email"
	"github.com/thibaut-decherit/usermanager/internal/email/mailgun"
	"github.com/thibaut-decherit/usermanager/internal/email/smtp"
	"github.com/thibaut-decherit/usermanager/internal/krypto"
	"github.com/thibaut-decherit/usermanager/internal/ratelimit"
)

const (
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"

	emailDriverLog     = "log"
	emailDriverSMTP    = "smtp"
	emailDriverMailgun = "mailgun"
)

// dbConfig is the configuration of the account database.
type dbConfig struct {
	driver string
	file   string
	// url is the postgres connection string, it usually contains a password.
	url     krypto.Secret
	migrate bool
}

// emailConfig is the configuration of outgoing emails.
type emailConfig struct {
	driver  string
	from    email.Address
	html    bool
	product string
	smtp    smtp.Settings
	mailgun mailgun.Settings
}

// limiterConfig is the configuration of the optional request limiter.
type limiterConfig struct {
	redisURL krypto.Secret
	limit    ratelimit.Config
}

// config is the configuration for the accounts command.
type config struct {
	baseURL string
	account account.ServiceConfig
	db      dbConfig
	email   emailConfig
	limiter limiterConfig
}

// defaultConfig returns a config with sane default values.
func defaultConfig() config {
	return config{
		baseURL: "http://localhost:8888",
		account: account.DefaultServiceConfig(),
		db: dbConfig{
			driver:  driverSQLite,
			file:    "accounts.db",
			migrate: true,
		},
		email: emailConfig{
			driver:  emailDriverLog,
			html:    true,
			product: "User Manager",
			smtp: smtp.Settings{
				Port: 587,
				TLS:  smtp.TLSMandatory,
			},
		},
		limiter: limiterConfig{
			limit: ratelimit.Config{
				Max:    5,
				Window: time.Hour,
			},
		},
	}
}

// requiredKeys lists the environment variables that have no default.
var requiredKeys = []string{"EMAIL_FROM"}

// envMap maps environment variable names to fields in the config struct.
var envMap = map[string]func(v string, c *config) error{
	"ACTIVATION_TOKEN_VALIDITY_SECONDS": func(v string, c *config) error {
		return confSeconds(v, &c.account.Activation.Validity, time.Second, math.MaxInt32*time.Second)
	},
	"ACTIVATION_RETRY_COOLDOWN_SECONDS": func(v string, c *config) error {
		return confSeconds(v, &c.account.Activation.Cooldown, 0, math.MaxInt32*time.Second)
	},
	"PASSWORD_RESET_TOKEN_VALIDITY_SECONDS": func(v string, c *config) error {
		return confSeconds(v, &c.account.PasswordReset.Validity, time.Second, math.MaxInt32*time.Second)
	},
	"PASSWORD_RESET_RETRY_COOLDOWN_SECONDS": func(v string, c *config) error {
		return confSeconds(v, &c.account.PasswordReset.Cooldown, 0, math.MaxInt32*time.Second)
	},
	"EMAIL_CHANGE_TOKEN_VALIDITY_SECONDS": func(v string, c *config) error {
		return confSeconds(v, &c.account.EmailChange.Validity, time.Second, math.MaxInt32*time.Second)
	},
	"EMAIL_CHANGE_RETRY_COOLDOWN_SECONDS": func(v string, c *config) error {
		return confSeconds(v, &c.account.EmailChange.Cooldown, 0, math.MaxInt32*time.Second)
	},
	"ACCOUNT_DELETION_TOKEN_VALIDITY_SECONDS": func(v string, c *config) error {
		return confSeconds(v, &c.account.AccountDeletion.Validity, time.Second, math.MaxInt32*time.Second)
	},
	"ACCOUNT_DELETION_RETRY_COOLDOWN_SECONDS": func(v string, c *config) error {
		return confSeconds(v, &c.account.AccountDeletion.Cooldown, 0, math.MaxInt32*time.Second)
	},
	"TOKEN_ENTROPY_BITS": func(v string, c *config) error {
		if err := confInt(v, &c.account.EntropyBits, 0, math.MaxInt32); err != nil {
			return err
		}
		return krypto.ValidateEntropy(c.account.EntropyBits)
	},
	"TOKEN_MAX_ATTEMPTS": func(v string, c *config) error {
		return confInt(v, &c.account.MaxAttempts, 1, 1000)
	},
	"BASE_URL": func(v string, c *config) error {
		u, err := url.Parse(v)
		if err != nil {
			return err
		}

		if !u.IsAbs() || u.Host == "" {
			return fmt.Errorf("url %q is not absolute", v)
		}

		c.baseURL = v
		return nil
	},
	"DB_DRIVER": func(v string, c *config) error {
		return confOneOf(v, &c.db.driver, driverSQLite, driverPostgres)
	},
	"DB_FILENAME": func(v string, c *config) error {
		if v == "" {
			return errors.New("empty filename")
		}
		c.db.file = v
		return nil
	},
	"DB_URL": func(v string, c *config) error {
		if _, err := url.Parse(v); err != nil {
			// url.Parse includes the input in its error, don't log the password.
			return errors.New("invalid url")
		}
		c.db.url = krypto.NewSecret(v)
		return nil
	},
	"DB_MIGRATE": func(v string, c *config) error {
		return confBool(v, &c.db.migrate)
	},
	"EMAIL_DRIVER": func(v string, c *config) error {
		return confOneOf(v, &c.email.driver, emailDriverLog, emailDriverSMTP, emailDriverMailgun)
	},
	"EMAIL_FROM": func(v string, c *config) error {
		addr, err := email.ParseAddress(v)
		if err != nil {
			return err
		}
		c.email.from = addr
		return nil
	},
	"EMAIL_HTML": func(v string, c *config) error {
		return confBool(v, &c.email.html)
	},
	"EMAIL_PRODUCT_NAME": func(v string, c *config) error {
		c.email.product = v
		return nil
	},
	"SMTP_HOST": func(v string, c *config) error {
		c.email.smtp.Host = v
		return nil
	},
	"SMTP_PORT": func(v string, c *config) error {
		return confInt(v, &c.email.smtp.Port, 1, math.MaxUint16)
	},
	"SMTP_USERNAME": func(v string, c *config) error {
		c.email.smtp.Username = v
		return nil
	},
	"SMTP_PASSWORD": func(v string, c *config) error {
		c.email.smtp.Password = krypto.NewSecret(v)
		return nil
	},
	"SMTP_TLS": func(v string, c *config) error {
		return confOneOf(v, &c.email.smtp.TLS, smtp.TLSMandatory, smtp.TLSOpportunistic, smtp.TLSNone)
	},
	"MAILGUN_DOMAIN": func(v string, c *config) error {
		c.email.mailgun.Domain = v
		return nil
	},
	"MAILGUN_API_KEY": func(v string, c *config) error {
		c.email.mailgun.APIKey = krypto.NewSecret(v)
		return nil
	},
	"MAILGUN_API_BASE": func(v string, c *config) error {
		c.email.mailgun.APIBase = v
		return nil
	},
	"REDIS_URL": func(v string, c *config) error {
		if _, err := redis.ParseURL(v); err != nil {
			return errors.New("invalid redis url")
		}
		c.limiter.redisURL = krypto.NewSecret(v)
		return nil
	},
	"RATE_LIMIT_MAX": func(v string, c *config) error {
		return confInt(v, &c.limiter.limit.Max, 1, math.MaxInt32)
	},
	"RATE_LIMIT_WINDOW": func(v string, c *config) error {
		return confDuration(v, &c.limiter.limit.Window, time.Second, math.MaxInt64)
	},
}

// configFromEnv returns a config with values from the environment. It falls
// back to default values for any missing environment variables.
//
// It does a best effort to validate provided values, so that mistakes are
// caught ASAP. However, there is no guarantee that the returned config
// is valid and will work.
func configFromEnv() (config, error) {
	c := defaultConfig()

	var errs []error
	for _, key := range requiredKeys {
		if _, ok := os.LookupEnv(key); !ok {
			errs = append(errs, fmt.Errorf("missing env variable %s", key))
		}
	}

	for key, mf := range envMap {
		if val, ok := os.LookupEnv(key); ok {
			if err := mf(val, &c); err != nil {
				errs = append(errs, fmt.Errorf("invalid env variable %s: %w", key, err))
			}
		}
	}

	if len(errs) > 0 {
		return c, errors.Join(errs...)
	}

	return c, c.validate()
}

// validate checks settings that depend on each other.
func (c config) validate() error {
	var errs []error

	if c.db.driver == driverPostgres && c.db.url.IsZero() {
		errs = append(errs, errors.New("env variable DB_URL is required for the postgres driver"))
	}

	switch c.email.driver {
	case emailDriverSMTP:
		if c.email.smtp.Host == "" {
			errs = append(errs, errors.New("env variable SMTP_HOST is required for the smtp driver"))
		}
	case emailDriverMailgun:
		if c.email.mailgun.Domain == "" {
			errs = append(errs, errors.New("env variable MAILGUN_DOMAIN is required for the mailgun driver"))
		}
		if c.email.mailgun.APIKey.IsZero() {
			errs = append(errs, errors.New("env variable MAILGUN_API_KEY is required for the mailgun driver"))
		}
	}

	return errors.Join(errs...)
}

// confDuration attempts to parse v into tgt and checks if the result is in
// the provided range (inclusive).
func confDuration(v string, tgt *time.Duration, min, max time.Duration) error {
	dur, err := time.ParseDuration(v)
	if err != nil {
		return err
	}

	if dur < min || dur > max {
		return fmt.Errorf("duration %s not in range [%s, %s] (inclusive)", dur, min, max)
	}

	*tgt = dur

	return nil
}

// confSeconds is like confDuration, but v is a whole number of seconds.
func confSeconds(v string, tgt *time.Duration, min, max time.Duration) error {
	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return err
	}

	if secs < int64(min/time.Second) || secs > int64(max/time.Second) {
		return fmt.Errorf("%d seconds not in range [%s, %s] (inclusive)", secs, min, max)
	}

	*tgt = time.Duration(secs) * time.Second

	return nil
}

// confInt attempts to parse v into tgt and checks if the result is in
// the provided range (inclusive).
func confInt(v string, tgt *int, min, max int) error {
	i, err := strconv.Atoi(v)
	if err != nil {
		return err
	}

	if i < min || i > max {
		return fmt.Errorf("%d not in range [%d, %d] (inclusive)", i, min, max)
	}

	*tgt = i

	return nil
}

func confBool(v string, tgt *bool) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}

	*tgt = b

	return nil
}

func confOneOf(v string, tgt *string, options ...string) error {
	for _, o := range options {
		if v == o {
			*tgt = v
			return nil
		}
	}

	return fmt.Errorf("%q is not one of %v", v, options)
}
