package user

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/markit/core"
)

// Roles
const (
	RoleAdmin  = "admin"
	RoleMarker = "marker"
)

var (
	AllRoles = []string{RoleAdmin, RoleMarker}

	Roles = []Role{
		{Name: "Marker", Value: RoleMarker},
		{Name: "Admin", Value: RoleAdmin},
	}
)

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Nickname     string    `json:"nickname,omitempty"`
	Avatar       string    `json:"avatar,omitempty"`
	IsActive     bool      `json:"is_active"`
	Roles        []string  `json:"roles"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`  // UTC
	ModifiedAt   time.Time `json:"modified_at"` // UTC
	LastLogin    time.Time `json:"last_login"`  // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (u User) IsAdmin() bool  { return u.HasRole(RoleAdmin) }
func (u User) IsMarker() bool { return u.HasRole(RoleMarker) }

// Mini is the public card of a User, embedded in other entities.
func (u User) Mini() Mini {
	return Mini{ID: u.ID, Name: u.Name, Nickname: u.Nickname, Avatar: u.Avatar}
}

type Mini struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Nickname string `json:"nickname,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string   `json:"name" validate:"required,max=16,alphanum_"`
	Email           string   `json:"email" validate:"required,email,max=64"`
	Nickname        string   `json:"nickname" validate:"omitempty,max=16"`
	Avatar          string   `json:"avatar" validate:"omitempty,url,max=128"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	nu.Name = core.CleanString(nu.Name, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Nickname = core.CleanString(nu.Nickname)
	nu.Avatar = core.CleanString(nu.Avatar)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Name, nu.Email, nu.Nickname)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name            string   `json:"name" validate:"omitempty,max=16,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email,max=64"`
	Nickname        *string  `json:"nickname" validate:"omitempty,max=16"`
	Avatar          *string  `json:"avatar" validate:"omitempty,max=128"`
	IsActive        *bool    `json:"is_active"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
	Password        string   `json:"password" validate:"omitempty"`
	PasswordConfirm string   `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc Service) error {
	if name := core.CleanString(uu.Name, true /* lower */); name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}

	if email := core.CleanString(uu.Email, true /* lower */); email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}

	nickname := origUsr.Nickname
	if uu.Nickname != nil {
		nickname = core.CleanString(*uu.Nickname)
	}
	uu.Nickname = &nickname

	if uu.Avatar != nil {
		avatar := core.CleanString(*uu.Avatar)
		uu.Avatar = &avatar
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, uu.Name, uu.Email, nickname, origUsr.ID)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type QueryFilter struct {
	Search   string   `query:"search"`
	Roles    []string `query:"role"`
	IsActive *bool    `query:"is_active"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// GetFilter selects a single User; the first non-zero field wins.
type GetFilter struct {
	ID          int64
	Name        string
	Email       string
	NameOrEmail string
}
