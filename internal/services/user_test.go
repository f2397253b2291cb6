package services_test

import (
	"errors"
	"testing"
	"time"

	"github.com/libranet/apiserver/internal/services"
	"github.com/libranet/apiserver/internal/store/memstore"
	"github.com/libranet/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registerPatron(t *testing.T, f *fixture, email string) types.User {
	t.Helper()
	user, err := f.users.Register(f.ctx, services.RegisterInput{
		Name:     "Ada",
		Email:    email,
		Password: "secret123",
	}, nil)
	require.NoError(t, err)
	return user
}

func TestRegisterResendVerifyLogin(t *testing.T) {
	f := newFixture(t)

	user := registerPatron(t, f, "a@x.com")
	assert.False(t, user.IsVerified)
	assert.Equal(t, types.RolePatron, user.Role)
	assert.Regexp(t, `^LIB-\d{6}$`, user.LibraryCardNumber)
	assert.NotEqual(t, "secret123", user.PasswordHash)
	assert.Equal(t, 1, f.mail.count())

	require.NoError(t, f.users.ResendOTP(f.ctx, "a@x.com"))
	mail := f.mail.last(t)
	assert.Equal(t, "a@x.com", mail.To)
	assert.Equal(t, "Your Library OTP Code", mail.Subject)
	assert.Contains(t, mail.Body, "It expires in 10 minutes.")

	require.NoError(t, f.users.VerifyOTP(f.ctx, user.ID, f.mail.lastCode(t)))
	stored, ok := f.store.User(user.ID)
	require.True(t, ok)
	assert.True(t, stored.IsVerified)

	loggedIn, token, err := f.users.Login(f.ctx, "a@x.com", "secret123", "")
	require.NoError(t, err)
	assert.Equal(t, user.ID, loggedIn.ID)

	principal, err := f.issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, principal.UserID)
	assert.Equal(t, types.RolePatron, principal.Role)
	assert.Equal(t, "a@x.com", principal.Email)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	registerPatron(t, f, "a@x.com")

	_, err := f.users.Register(f.ctx, services.RegisterInput{Name: "Bob", Email: " A@X.com ", Password: "secret123"}, nil)
	assert.ErrorIs(t, err, services.ErrEmailInUse)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	cases := []services.RegisterInput{
		{Name: "A", Email: "a@x.com", Password: "secret123"},
		{Name: "Ada", Email: "not-an-email", Password: "secret123"},
		{Name: "Ada", Email: "a@x.com", Password: "short"},
		{Name: "Ada", Email: "a@x.com", Password: "secret123", Role: "OWNER"},
	}
	for _, in := range cases {
		_, err := f.users.Register(f.ctx, in, nil)
		assert.True(t, services.IsValidation(err), "%+v: %v", in, err)
	}
}

func TestRegisterRoles(t *testing.T) {
	f := newFixture(t)
	admin := f.user(t, "admin@x.com", types.RoleAdmin)
	patron := f.user(t, "p@x.com", types.RolePatron)

	in := services.RegisterInput{Name: "Lib", Email: "lib@x.com", Password: "secret123", Role: types.RoleLibrarian}
	_, err := f.users.Register(f.ctx, in, nil)
	assert.ErrorIs(t, err, services.ErrForbidden)
	_, err = f.users.Register(f.ctx, in, &patron)
	assert.ErrorIs(t, err, services.ErrForbidden)

	librarian, err := f.users.Register(f.ctx, in, &admin)
	require.NoError(t, err)
	assert.Equal(t, types.RoleLibrarian, librarian.Role)

	_, err = f.users.Register(f.ctx, services.RegisterInput{Name: "Root", Email: "root@x.com", Password: "secret123", Role: types.RoleAdmin}, &admin)
	assert.ErrorIs(t, err, services.ErrForbidden)
}

func TestRegisterSucceedsWhenFirstMailFails(t *testing.T) {
	f := newFixture(t)
	f.mail.err = errors.New("smtp down")

	user := registerPatron(t, f, "a@x.com")
	assert.NotZero(t, user.ID)
	for _, otp := range f.store.OTPs(user.ID) {
		assert.True(t, otp.Consumed)
	}
}

func TestResendInvalidatesOlderCodes(t *testing.T) {
	f := newFixture(t)
	user := registerPatron(t, f, "a@x.com")
	first := f.mail.lastCode(t)

	require.NoError(t, f.users.ResendOTP(f.ctx, "a@x.com"))
	second := f.mail.lastCode(t)

	valid := 0
	for _, otp := range f.store.OTPs(user.ID) {
		if otp.Valid(time.Now()) {
			valid++
		}
	}
	assert.Equal(t, 1, valid)

	if first != second {
		assert.ErrorIs(t, f.users.VerifyOTP(f.ctx, user.ID, first), services.ErrInvalidOTP)
	}
	require.NoError(t, f.users.VerifyOTP(f.ctx, user.ID, second))
}

func TestResendFailureLeavesNoValidCode(t *testing.T) {
	f := newFixture(t)
	user := registerPatron(t, f, "a@x.com")
	f.mail.err = errors.New("smtp down")

	err := f.users.ResendOTP(f.ctx, "a@x.com")
	require.Error(t, err)
	assert.False(t, services.IsValidation(err))
	for _, otp := range f.store.OTPs(user.ID) {
		assert.True(t, otp.Consumed)
	}
}

func TestResendOTPErrors(t *testing.T) {
	f := newFixture(t)
	f.user(t, "done@x.com", types.RolePatron)

	assert.ErrorIs(t, f.users.ResendOTP(f.ctx, "missing@x.com"), services.ErrUserNotFound)
	assert.ErrorIs(t, f.users.ResendOTP(f.ctx, "done@x.com"), services.ErrAlreadyVerified)
	assert.True(t, services.IsValidation(f.users.ResendOTP(f.ctx, "")))
}

func TestVerifyOTPSingleUse(t *testing.T) {
	f := newFixture(t)
	user := registerPatron(t, f, "a@x.com")
	code := f.mail.lastCode(t)

	require.NoError(t, f.users.VerifyOTP(f.ctx, user.ID, code))
	assert.ErrorIs(t, f.users.VerifyOTP(f.ctx, user.ID, code), services.ErrInvalidOTP)
}

func TestVerifyOTPRejectsWrongUserAndCode(t *testing.T) {
	f := newFixture(t)
	user := registerPatron(t, f, "a@x.com")
	other := registerPatron(t, f, "b@x.com")
	code := f.mail.lastCode(t)

	assert.ErrorIs(t, f.users.VerifyOTP(f.ctx, user.ID, code), services.ErrInvalidOTP)
	assert.True(t, services.IsValidation(f.users.VerifyOTP(f.ctx, other.ID, "12ab56")))
	assert.True(t, services.IsValidation(f.users.VerifyOTP(f.ctx, 0, code)))
	require.NoError(t, f.users.VerifyOTP(f.ctx, other.ID, code))
}

func TestVerifyOTPExpired(t *testing.T) {
	f := newFixture(t)
	user := registerPatron(t, f, "a@x.com")
	code := f.mail.lastCode(t)

	f.users.SetClock(func() time.Time { return time.Now().Add(11 * time.Minute) })
	assert.ErrorIs(t, f.users.VerifyOTP(f.ctx, user.ID, code), services.ErrInvalidOTP)
}

func TestVerifyOTPIsAtomic(t *testing.T) {
	f := newFixture(t)
	user := registerPatron(t, f, "a@x.com")
	code := f.mail.lastCode(t)

	f.store.FailNext(memstore.OpMarkVerified, errors.New("disk full"))
	require.Error(t, f.users.VerifyOTP(f.ctx, user.ID, code))

	stored, _ := f.store.User(user.ID)
	assert.False(t, stored.IsVerified)
	require.NoError(t, f.users.VerifyOTP(f.ctx, user.ID, code))
}

func TestLoginFailures(t *testing.T) {
	f := newFixture(t)
	f.user(t, "lib@x.com", types.RoleLibrarian)
	registerPatron(t, f, "new@x.com")

	_, _, unknown := f.users.Login(f.ctx, "nobody@x.com", "secret123", "")
	_, _, wrong := f.users.Login(f.ctx, "lib@x.com", "wrong-password", "")
	assert.ErrorIs(t, unknown, services.ErrInvalidCredentials)
	assert.ErrorIs(t, wrong, services.ErrInvalidCredentials)
	assert.Equal(t, unknown.Error(), wrong.Error())

	_, _, err := f.users.Login(f.ctx, "lib@x.com", "secret123", types.RolePatron)
	assert.ErrorIs(t, err, services.ErrRoleMismatch)

	_, _, err = f.users.Login(f.ctx, "new@x.com", "secret123", "")
	assert.ErrorIs(t, err, services.ErrEmailNotVerified)

	_, token, err := f.users.Login(f.ctx, "LIB@x.com", "secret123", types.RoleLibrarian)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestListAndGetUsers(t *testing.T) {
	f := newFixture(t)
	first := f.user(t, "one@x.com", types.RolePatron)
	second := f.user(t, "two@x.com", types.RoleLibrarian)

	users, err := f.users.List(f.ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, second.UserID, users[0].ID)

	user, err := f.users.GetByID(f.ctx, first.UserID)
	require.NoError(t, err)
	assert.Equal(t, "one@x.com", user.Email)

	_, err = f.users.GetByID(f.ctx, 999)
	assert.ErrorIs(t, err, services.ErrUserNotFound)
}
