package account

import (
	"github.com/google/uuid"
	"github.com/thibaut-decherit/usermanager/internal/email"
)

// DuplicateOutcome tells whether a registration collides with an existing account.
type DuplicateOutcome int

const (
	NoDuplicate DuplicateOutcome = iota
	DuplicateActivated
	DuplicateUnactivated
)

func (o DuplicateOutcome) String() string {
	switch o {
	case DuplicateActivated:
		return "duplicate activated"
	case DuplicateUnactivated:
		return "duplicate unactivated"
	default:
		return "no duplicate"
	}
}

// Duplicate is an existing account a registration collides with.
type Duplicate struct {
	Outcome DuplicateOutcome
	Account Account
}

// ResolveDuplicates finds the accounts that already own addr or username.
// An account owning both is returned once, so its owner is notified once.
// No duplicates results in an empty slice.
func ResolveDuplicates(tx Tx, addr email.Address, username string) ([]Duplicate, error) {
	byEmail, err := tx.FindAccounts(&Filter{Emails: []email.Address{addr}})
	if err != nil {
		return nil, err
	}

	byUsername, err := tx.FindAccounts(&Filter{Usernames: []string{username}})
	if err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]struct{})
	out := make([]Duplicate, 0, 2)
	for _, a := range append(byEmail, byUsername...) {
		if _, ok := seen[a.ID]; ok {
			continue
		}
		seen[a.ID] = struct{}{}

		outcome := DuplicateUnactivated
		if a.Activated {
			outcome = DuplicateActivated
		}

		out = append(out, Duplicate{
			Outcome: outcome,
			Account: a,
		})
	}

	return out, nil
}
