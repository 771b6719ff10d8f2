package orders

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// RegisterUser inserts a user record. Credentials live elsewhere.
func RegisterUser(ctx context.Context, store Store, email string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") || len(email) > MaxNameLen {
		return User{}, Validation("invalid email")
	}
	u := User{ID: uuid.NewString(), Email: email, CreatedAt: time.Now().UTC()}
	err := store.Users().Insert(ctx, &u)
	if errors.Is(err, ErrDuplicate) {
		return User{}, Conflict("user already exists", err)
	}
	if err != nil {
		return User{}, Internal(errors.Wrap(err, "insert user"))
	}
	return u, nil
}
