package identity

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parishworks/lychgate/internal/models"
	pkgauth "github.com/parishworks/lychgate/pkg/auth"
)

type fakeUserStore struct {
	byEmail map[string]*models.User
	byID    map[string]*models.User
}

func newFakeUserStore(users ...*models.User) *fakeUserStore {
	s := &fakeUserStore{
		byEmail: make(map[string]*models.User),
		byID:    make(map[string]*models.User),
	}
	for _, u := range users {
		s.byEmail[u.Email] = u
		s.byID[u.ID] = u
	}
	return s
}

func (s *fakeUserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := s.byEmail[email]; ok {
		return u, nil
	}
	return nil, models.ErrNotFound
}

func (s *fakeUserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := s.byID[id]; ok {
		return u, nil
	}
	return nil, models.ErrNotFound
}

func testUser(t *testing.T, email, password string) *models.User {
	t.Helper()
	hash, err := pkgauth.HashPassword(password)
	require.NoError(t, err)
	return &models.User{
		ID:           "user-1",
		Email:        email,
		PasswordHash: hash,
		Role:         "parishioner",
	}
}

func newTestProvider(t *testing.T, users UserStore, tm *TOTPManager) *LocalProvider {
	t.Helper()
	return NewLocalProvider(users, tm, slog.New(slog.NewJSONHandler(os.Stdout, nil)))
}

func TestSignIn_Password(t *testing.T) {
	user := testUser(t, "warden@stmichaels.example", "CorrectHorse9!")
	p := newTestProvider(t, newFakeUserStore(user), nil)

	result, err := p.SignIn(context.Background(), "warden@stmichaels.example", "CorrectHorse9!")
	require.NoError(t, err)
	assert.Equal(t, KindPassword, result.Kind)
	assert.Equal(t, user.ID, result.User.ID)
}

func TestSignIn_NormalizesEmail(t *testing.T) {
	user := testUser(t, "warden@stmichaels.example", "CorrectHorse9!")
	p := newTestProvider(t, newFakeUserStore(user), nil)

	result, err := p.SignIn(context.Background(), "  Warden@StMichaels.example ", "CorrectHorse9!")
	require.NoError(t, err)
	assert.Equal(t, KindPassword, result.Kind)
}

func TestSignIn_WrongPassword(t *testing.T) {
	user := testUser(t, "warden@stmichaels.example", "CorrectHorse9!")
	p := newTestProvider(t, newFakeUserStore(user), nil)

	_, err := p.SignIn(context.Background(), "warden@stmichaels.example", "wrong")
	assert.ErrorIs(t, err, models.ErrInvalidCredential)
}

func TestSignIn_UnknownUser(t *testing.T) {
	p := newTestProvider(t, newFakeUserStore(), nil)

	// Unknown accounts are indistinguishable from wrong passwords.
	_, err := p.SignIn(context.Background(), "nobody@stmichaels.example", "whatever")
	assert.ErrorIs(t, err, models.ErrInvalidCredential)
}

func mfaUser(t *testing.T, tm *TOTPManager, secret string) *models.User {
	t.Helper()
	user := testUser(t, "rector@stmichaels.example", "CorrectHorse9!")
	enc, nonce, err := tm.EncryptSecret([]byte(secret))
	require.NoError(t, err)
	user.MFAEnabled = true
	user.MFASecretEnc = enc
	user.MFASecretNonc = nonce
	return user
}

func totpCode(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func TestSignIn_MFAChallenge(t *testing.T) {
	tm := newTestTOTPManager(t)
	user := mfaUser(t, tm, "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP")
	p := newTestProvider(t, newFakeUserStore(user), tm)

	result, err := p.SignIn(context.Background(), user.Email, "CorrectHorse9!")
	require.NoError(t, err)
	assert.Equal(t, KindMFAChallenge, result.Kind)
	require.NotNil(t, result.Challenge)
	assert.NotEmpty(t, result.Challenge.ResolverID)
	assert.Nil(t, result.User)
}

func TestSignIn_MFAWithoutManagerFailsClosed(t *testing.T) {
	tm := newTestTOTPManager(t)
	user := mfaUser(t, tm, "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP")
	p := newTestProvider(t, newFakeUserStore(user), nil)

	_, err := p.SignIn(context.Background(), user.Email, "CorrectHorse9!")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestResolveMFA(t *testing.T) {
	tm := newTestTOTPManager(t)
	secret := "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"
	user := mfaUser(t, tm, secret)
	p := newTestProvider(t, newFakeUserStore(user), tm)

	now := time.Now()
	p.now = func() time.Time { return now }

	challenge, err := p.SignIn(context.Background(), user.Email, "CorrectHorse9!")
	require.NoError(t, err)
	resolverID := challenge.Challenge.ResolverID

	// A wrong code leaves the challenge pending.
	_, err = p.ResolveMFA(context.Background(), resolverID, "000000")
	assert.ErrorIs(t, err, models.ErrMFAInvalidCode)

	result, err := p.ResolveMFA(context.Background(), resolverID, totpCode(t, secret, now))
	require.NoError(t, err)
	assert.Equal(t, KindPassword, result.Kind)
	assert.Equal(t, user.ID, result.User.ID)

	// The challenge never resolves twice.
	_, err = p.ResolveMFA(context.Background(), resolverID, totpCode(t, secret, now))
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestResolveMFA_UnknownResolver(t *testing.T) {
	tm := newTestTOTPManager(t)
	p := newTestProvider(t, newFakeUserStore(), tm)

	_, err := p.ResolveMFA(context.Background(), "no-such-challenge", "123456")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestResolveMFA_ExpiredChallenge(t *testing.T) {
	tm := newTestTOTPManager(t)
	secret := "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"
	user := mfaUser(t, tm, secret)
	p := newTestProvider(t, newFakeUserStore(user), tm)

	now := time.Now()
	p.now = func() time.Time { return now }

	challenge, err := p.SignIn(context.Background(), user.Email, "CorrectHorse9!")
	require.NoError(t, err)

	p.now = func() time.Time { return now.Add(challengeTTL + time.Minute) }

	_, err = p.ResolveMFA(context.Background(), challenge.Challenge.ResolverID, totpCode(t, secret, now))
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}