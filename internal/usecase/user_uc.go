package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/phenrril/orderdesk/internal/adapters/sheets"
	"github.com/phenrril/orderdesk/internal/domain"
	"github.com/phenrril/orderdesk/internal/store"
)

type UserUC struct {
	store  *store.Store
	sheets Persister
}

func NewUserUC(st *store.Store, sheets Persister) *UserUC {
	return &UserUC{store: st, sheets: sheets}
}

func (u *UserUC) Get(id string) (domain.User, error) {
	usr, ok := u.store.User(id)
	if !ok {
		return domain.User{}, fmt.Errorf("%w: user %s", domain.ErrNotFound, id)
	}
	return usr, nil
}

func (u *UserUC) GetByUsername(username string) (domain.User, error) {
	usr, ok := u.store.UserByUsername(username)
	if !ok {
		return domain.User{}, fmt.Errorf("%w: user %s", domain.ErrNotFound, username)
	}
	return usr, nil
}

// PasswordHash exposes the stored hash for the authentication layer; it is
// never part of the User value itself.
func (u *UserUC) PasswordHash(id string) string {
	return u.store.UserPasswordHash(id)
}

func (u *UserUC) List() []domain.User {
	return u.store.Users()
}

func (u *UserUC) Create(ctx context.Context, username, passwordHash, displayName, role string) (domain.User, error) {
	username = strings.ToLower(sanitize(username))
	if username == "" || passwordHash == "" {
		return domain.User{}, fmt.Errorf("%w: username and password required", domain.ErrBadRequest)
	}
	if _, exists := u.store.UserByUsername(username); exists {
		return domain.User{}, fmt.Errorf("%w: username %s taken", domain.ErrConflict, username)
	}
	usr := domain.User{
		ID:          uuid.NewString(),
		Username:    username,
		DisplayName: sanitize(displayName),
		Role:        sanitize(role),
		Active:      true,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
	}
	u.store.PutUser(usr, passwordHash)
	u.sheets.AppendRow(sheets.TabUsers, userRow(usr, passwordHash))
	log.Info().Str("userId", usr.ID).Str("username", username).Msg("user created")
	return usr, nil
}

// UserUpdate carries optional field changes; nil means keep.
type UserUpdate struct {
	DisplayName  *string
	Role         *string
	Active       *bool
	PasswordHash *string
}

func (u *UserUC) Update(ctx context.Context, id string, upd UserUpdate) (domain.User, error) {
	usr, ok := u.store.User(id)
	if !ok {
		return domain.User{}, fmt.Errorf("%w: user %s", domain.ErrNotFound, id)
	}
	hash := u.store.UserPasswordHash(id)
	if upd.DisplayName != nil {
		usr.DisplayName = sanitize(*upd.DisplayName)
	}
	if upd.Role != nil {
		usr.Role = sanitize(*upd.Role)
	}
	if upd.Active != nil {
		usr.Active = *upd.Active
	}
	if upd.PasswordHash != nil && *upd.PasswordHash != "" {
		hash = *upd.PasswordHash
	}
	u.store.PutUser(usr, hash)
	ridx := u.sheets.FindRowIndex(ctx, sheets.TabUsers, usr.ID)
	if ridx > 0 {
		u.sheets.UpdateRow(sheets.TabUsers, ridx, userRow(usr, hash))
	} else {
		log.Warn().Str("userId", usr.ID).Msg("user row not found for update, appending")
		u.sheets.AppendRow(sheets.TabUsers, userRow(usr, hash))
	}
	return usr, nil
}
