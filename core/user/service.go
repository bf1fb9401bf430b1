package user

import (
	"context"
	"net/mail"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/markit/core"
)

const defaultSearchLimit = 5

var (
	// errors
	ErrNotFound         = core.NewNotFoundError("user")
	ErrNameExists       = errors.New("a user with this name already exists")
	ErrEmailExists      = errors.New("a user with this email already exists")
	ErrNicknameExists   = errors.New("a user with this nickname already exists")
	ErrInvalidResetLink = errors.New("the reset password link is no longer valid")
	ErrNameRequired     = core.NewBasicError("name is required")
)

type (
	Repository interface {
		// CheckUniqueness returns ErrNameExists, ErrEmailExists or ErrNicknameExists on conflict.
		CheckUniqueness(ctx context.Context, name, email, nickname string, excludedIDs []int64, exec ...core.DBExecutor) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Nickname or User.Email.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]User, error)
		// SearchUsers matches name or nickname, case-insensitive.
		SearchUsers(ctx context.Context, name string, limit int, exec ...core.DBExecutor) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		GetUsersByID(ctx context.Context, ids []int64, exec ...core.DBExecutor) ([]User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		DeleteUsersByID(ctx context.Context, ids []int64, exec ...core.DBExecutor) (int, error)
	}

	Service interface {
		CheckUniqueness(ctx context.Context, name, email, nickname string, excludedIDs ...int64) error
		Create(ctx context.Context, nu NewUser) (User, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		Search(ctx context.Context, name string, limit int) ([]User, error)
		GetByID(ctx context.Context, id int64) (User, error)
		GetByName(ctx context.Context, name string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		GetByNameOrEmail(ctx context.Context, login string) (User, error)
		GetByIDs(ctx context.Context, ids ...int64) (map[int64]User, error)
		Update(ctx context.Context, usr User, uu UpdateUser) (User, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
		ChangePassword(ctx context.Context, usr User, pwd string) (User, error)
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, data ResetUserPassword) error
		Delete(ctx context.Context, ids ...int64) (int, error)
	}

	service struct {
		repo     Repository
		mailSvc  core.EmailService
		tokenGen tokenGenerator
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) Service {
	return &service{
		repo:     repo,
		mailSvc:  mailSvc,
		tokenGen: newTokenGenerator(conf),
	}
}

func (svc *service) CheckUniqueness(ctx context.Context, name, email, nickname string, excludedIDs ...int64) error {
	if err := svc.repo.CheckUniqueness(ctx, name, email, nickname, excludedIDs); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrNameExists:
			field = "name"
		case ErrEmailExists:
			field = "email"
		case ErrNicknameExists:
			field = "nickname"
		default:
			return errors.Wrap(err, "checking uniqueness")
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: errors.Cause(err).Error()})
	}
	return nil
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	roles := nu.Roles
	if len(roles) == 0 {
		roles = []string{RoleMarker}
	}
	usr := User{
		Name:       nu.Name,
		Email:      nu.Email,
		Nickname:   nu.Nickname,
		Avatar:     nu.Avatar,
		IsActive:   true,
		Roles:      roles,
		CreatedAt:  now,
		ModifiedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter, ordering)
}

// Search returns up to `limit` (default 5) users whose name or nickname contains `name`.
func (svc *service) Search(ctx context.Context, name string, limit int) ([]User, error) {
	name = core.CleanString(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if limit < 1 {
		limit = defaultSearchLimit
	}
	return svc.repo.SearchUsers(ctx, name, limit)
}

func (svc *service) GetByID(ctx context.Context, id int64) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByName(ctx context.Context, name string) (User, error) {
	name = core.CleanString(name, true /* lower */)
	if name == "" {
		return User{}, ErrNotFound
	}
	return svc.repo.GetUser(ctx, GetFilter{Name: name})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	email = core.CleanString(email, true /* lower */)
	if email == "" {
		return User{}, ErrNotFound
	}
	return svc.repo.GetUser(ctx, GetFilter{Email: email})
}

func (svc *service) GetByNameOrEmail(ctx context.Context, login string) (User, error) {
	login = core.CleanString(login, true /* lower */)
	if login == "" {
		return User{}, ErrNotFound
	}
	return svc.repo.GetUser(ctx, GetFilter{NameOrEmail: login})
}

func (svc *service) GetByIDs(ctx context.Context, ids ...int64) (map[int64]User, error) {
	users := make(map[int64]User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}
	list, err := svc.repo.GetUsersByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, usr := range list {
		users[usr.ID] = usr
	}
	return users, nil
}

// Update applies a validated UpdateUser on usr.
func (svc *service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	usr.Name = uu.Name
	usr.Email = uu.Email
	if uu.Nickname != nil {
		usr.Nickname = *uu.Nickname
	}
	if uu.Avatar != nil {
		usr.Avatar = *uu.Avatar
	}
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.Roles != nil {
		usr.Roles = uu.Roles
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	usr.ModifiedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) ChangePassword(ctx context.Context, usr User, pwd string) (User, error) {
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	usr.ModifiedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}
	svc.mailSvc.SendMessages(svc.passwordResetMessage(usr))
	return nil
}

func (svc *service) passwordResetMessage(usr User) *core.EmailMessage {
	return &core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: map[string]interface{}{
			"Name":  usr.Name,
			"UID":   EncodeUID(usr),
			"Token": svc.tokenGen.MakeToken(usr),
		},
	}
}

func (svc *service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	id, err := decodeUID(data.UID)
	if err != nil {
		return core.NewValidationError(ErrInvalidResetLink)
	}
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return core.NewValidationError(ErrInvalidResetLink)
		}
		return errors.Wrap(err, "finding user by ID")
	}
	if err = svc.tokenGen.VerifyToken(usr, data.Token); err != nil {
		return core.NewValidationError(ErrInvalidResetLink)
	}
	_, err = svc.ChangePassword(ctx, usr, data.Password)
	return err
}

func (svc *service) Delete(ctx context.Context, ids ...int64) (int, error) {
	return svc.repo.DeleteUsersByID(ctx, ids)
}

// EncodeUID encodes the ID of usr for password reset links.
func EncodeUID(usr User) string {
	return encodeUID(strconv.FormatInt(usr.ID, 10))
}
