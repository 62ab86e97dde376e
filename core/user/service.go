package user

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"time"

	"github.com/kat-co/vala"
	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/elearning/core"
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("user not found")
	ErrEmailExists        = errors.New("a user with this email already exists")
	ErrTokenNotFound      = core.NewNotFoundError("verification token not found")
	ErrInvalidCredentials = errors.New("Invalid email or password")
	ErrAccountDisabled    = errors.New("User account is disabled")
	ErrAlreadyVerified    = errors.New("this account is already verified")
	ErrUnknownEmail       = errors.New("no account is registered with this email")
	ErrIncorrectPassword  = errors.New("incorrect password")

	nowFunc = func() time.Time { return time.Now().UTC() } // mockable
)

type (
	Repository interface {
		CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.FirstName, User.LastName or User.Email.
		QueryUsers(ctx context.Context, filter QueryFilter, orderings []core.DBOrdering) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		DeleteUsersByID(ctx context.Context, ids ...string) error

		CreateVerificationToken(ctx context.Context, tok VerificationToken) (VerificationToken, error)
		GetVerificationToken(ctx context.Context, token string) (VerificationToken, error)
		MarkVerificationTokenUsed(ctx context.Context, id string) error
		DeleteUnusedVerificationTokens(ctx context.Context, email string) error
		DeleteExpiredVerificationTokens(ctx context.Context, before time.Time) (int, error)
	}

	ServiceInterface interface {
		CheckUniqueness(ctx context.Context, email string, exclUsers ...User) error
		Signup(ctx context.Context, su SignupUser) (User, error)
		VerifyEmail(ctx context.Context, token string) (User, error)
		ResendVerification(ctx context.Context, email string) error
		Authenticate(ctx context.Context, email, pwd string) (User, error)
		Create(ctx context.Context, nu NewUser) (User, error)
		Query(ctx context.Context, filter QueryFilter, orderings []core.DBOrdering) ([]User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		Update(ctx context.Context, usr User, uu UpdateUser) (User, error)
		ChangePassword(ctx context.Context, usr, actor User, cp ChangeUserPassword) error
		Delete(ctx context.Context, ids ...string) error
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, rp ResetUserPassword) error
		PurgeExpiredTokens(ctx context.Context) (int, error)
	}

	service struct {
		repo     Repository
		mailSvc  core.EmailService
		tokenGen TokenGenerator
		conf     *core.Config
	}
)

var _ ServiceInterface = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) ServiceInterface {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	return &service{
		repo:     repo,
		mailSvc:  mailSvc,
		tokenGen: NewTokenGenerator(conf.SecretKey, conf.PasswordResetTimeoutDelta),
		conf:     conf,
	}
}

func (svc *service) CheckUniqueness(ctx context.Context, email string, exclUsers ...User) error {
	if err := svc.repo.CheckEmailUniqueness(ctx, email, exclUsers...); err != nil {
		if err == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return err
	}
	return nil
}

// Signup registers an inactive student and emails them a verification link.
func (svc *service) Signup(ctx context.Context, su SignupUser) (User, error) {
	now := nowFunc()
	usr := User{
		FirstName: su.FirstName,
		LastName:  su.LastName,
		Email:     su.Email,
		AgeLevel:  su.AgeLevel,
		Roles:     []string{RoleStudent},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(su.Password); err != nil {
		return User{}, err
	}

	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		return User{}, pkgerrors.Wrap(err, "creating user")
	}
	if err := svc.sendVerificationMail(ctx, usr); err != nil {
		return User{}, pkgerrors.Wrap(err, "sending verification mail")
	}
	return usr, nil
}

func (svc *service) VerifyEmail(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, &VerificationError{Code: VerifyMissingToken}
	}

	tok, err := svc.repo.GetVerificationToken(ctx, token)
	if err != nil {
		if core.IsNotFound(err) {
			return User{}, &VerificationError{Code: VerifyInvalidToken}
		}
		return User{}, pkgerrors.Wrap(err, "getting verification token")
	}
	if tok.Used {
		return User{}, &VerificationError{Code: VerifyInvalidToken}
	}
	if tok.IsExpired(nowFunc()) {
		if err := svc.repo.MarkVerificationTokenUsed(ctx, tok.ID); err != nil {
			return User{}, pkgerrors.Wrap(err, "expiring verification token")
		}
		return User{}, &VerificationError{Code: VerifyExpiredToken}
	}

	usr, err := svc.repo.GetUser(ctx, GetFilter{Email: tok.Email})
	if err != nil {
		if core.IsNotFound(err) {
			return User{}, &VerificationError{Code: VerifyUserNotFound}
		}
		return User{}, pkgerrors.Wrap(err, "getting user by email")
	}

	if err := svc.repo.MarkVerificationTokenUsed(ctx, tok.ID); err != nil {
		return User{}, pkgerrors.Wrap(err, "using verification token")
	}
	usr.IsActive = true
	usr.EmailVerified = true
	usr.UpdatedAt = nowFunc()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) ResendVerification(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if core.IsNotFound(err) {
			return core.NewValidationError(ErrUnknownEmail, core.FieldError{Field: "email", Error: ErrUnknownEmail.Error()})
		}
		return err
	}
	if usr.IsActive {
		return core.NewValidationError(ErrAlreadyVerified, core.FieldError{Field: "email", Error: ErrAlreadyVerified.Error()})
	}
	return svc.sendVerificationMail(ctx, usr)
}

// Authenticate checks the credentials of an active user and records the login.
func (svc *service) Authenticate(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if core.IsNotFound(err) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, pkgerrors.Wrap(err, "finding user by email")
	}
	if err := usr.CheckPassword(pwd); err != nil {
		return User{}, ErrInvalidCredentials
	}
	if !usr.IsActive {
		return User{}, ErrAccountDisabled
	}

	usr.LastLogin = nowFunc()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := nowFunc()
	roles := nu.Roles
	if len(roles) == 0 {
		roles = []string{RoleStudent}
	}
	usr := User{
		FirstName:     nu.FirstName,
		LastName:      nu.LastName,
		Email:         nu.Email,
		AgeLevel:      nu.AgeLevel,
		IsActive:      true,
		EmailVerified: true,
		Roles:         roles,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, err
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *service) Query(ctx context.Context, filter QueryFilter, orderings []core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter, orderings)
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

// Update applies validated changes to usr.
func (svc *service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	usr.FirstName = uu.FirstName
	usr.LastName = uu.LastName
	usr.Email = uu.Email
	usr.AgeLevel = uu.AgeLevel
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.Roles != nil {
		usr.Roles = uu.Roles
	}
	usr.UpdatedAt = nowFunc()
	return svc.repo.UpdateUser(ctx, usr)
}

// ChangePassword sets a new password on usr on behalf of actor.
// Only admins may skip the old password check.
func (svc *service) ChangePassword(ctx context.Context, usr, actor User, cp ChangeUserPassword) error {
	if usr.ID != actor.ID && !actor.IsAdmin() {
		return core.ErrPermissionDenied
	}
	if !actor.IsAdmin() {
		if cp.OldPassword == "" || usr.CheckPassword(cp.OldPassword) != nil {
			return core.NewValidationError(
				ErrIncorrectPassword,
				core.FieldError{Field: "old_password", Error: ErrIncorrectPassword.Error()},
			)
		}
	}
	if err := validatePasswordFor(usr, cp.NewPassword, "new_password"); err != nil {
		return err
	}

	if err := usr.SetPassword(cp.NewPassword); err != nil {
		return err
	}
	usr.UpdatedAt = nowFunc()
	_, err := svc.repo.UpdateUser(ctx, usr)
	return err
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteUsersByID(ctx, ids...)
}

func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}

	token, err := svc.tokenGen.MakeToken(usr)
	if err != nil {
		return pkgerrors.Wrap(err, "making reset token")
	}
	q := make(url.Values)
	q.Set("uid", EncodeUID(usr))
	q.Set("token", token)
	link := fmt.Sprintf("%s/auth/reset-password?%s", svc.conf.FrontendBaseURL, q.Encode())

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName(), Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: map[string]interface{}{
			"Name": usr.FullName(),
			"URL":  link,
		},
	})
	return nil
}

func (svc *service) ResetPassword(ctx context.Context, rp ResetUserPassword) error {
	invalid := core.NewValidationError(errors.New("invalid token"), core.FieldError{Field: "token", Error: "invalid token"})

	uid, err := decodeUID(rp.UID)
	if err != nil {
		return invalid
	}
	usr, err := svc.GetByID(ctx, uid)
	if err != nil {
		if core.IsNotFound(err) {
			return invalid
		}
		return err
	}
	if err := svc.tokenGen.verifyToken(usr, rp.Token); err != nil {
		if err == errTokenExpired {
			return core.NewValidationError(err, core.FieldError{Field: "token", Error: err.Error()})
		}
		return invalid
	}
	if err := validatePasswordFor(usr, rp.Password, "password"); err != nil {
		return err
	}

	if err := usr.SetPassword(rp.Password); err != nil {
		return err
	}
	usr.UpdatedAt = nowFunc()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return err
}

// PurgeExpiredTokens deletes verification tokens past their expiry.
func (svc *service) PurgeExpiredTokens(ctx context.Context) (int, error) {
	return svc.repo.DeleteExpiredVerificationTokens(ctx, nowFunc())
}

func (svc *service) sendVerificationMail(ctx context.Context, usr User) error {
	if err := svc.repo.DeleteUnusedVerificationTokens(ctx, usr.Email); err != nil {
		return pkgerrors.Wrap(err, "deleting unused tokens")
	}

	token, err := newVerificationToken()
	if err != nil {
		return pkgerrors.Wrap(err, "generating token")
	}
	now := nowFunc()
	tok, err := svc.repo.CreateVerificationToken(ctx, VerificationToken{
		Email:     usr.Email,
		Token:     token,
		ExpiresAt: now.Add(svc.conf.EmailVerificationTimeoutDelta),
		CreatedAt: now,
	})
	if err != nil {
		return pkgerrors.Wrap(err, "creating token")
	}

	q := make(url.Values)
	q.Set("token", tok.Token)
	link := fmt.Sprintf("%s/v1/auth/verify-email?%s", svc.conf.BackendBaseURL, q.Encode())

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.FullName(), Address: usr.Email}},
		Subject:      "Verify your email address",
		TemplateName: "verify_email",
		TemplateData: map[string]interface{}{
			"Name":      usr.FullName(),
			"URL":       link,
			"ExpiresIn": fmt.Sprintf("%d hours", int(svc.conf.EmailVerificationTimeoutDelta.Hours())),
		},
	})
	return nil
}
