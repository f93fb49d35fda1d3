package identity

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTOTPManager(t *testing.T) *TOTPManager {
	t.Helper()
	tm, err := NewTOTPManager(bytes.Repeat([]byte("k"), 32), "ParishWorks")
	require.NoError(t, err)
	return tm
}

func TestNewTOTPManager_RejectsShortKey(t *testing.T) {
	_, err := NewTOTPManager([]byte("too-short"), "ParishWorks")
	assert.Error(t, err)
}

func TestEncryptDecryptSecret(t *testing.T) {
	tm := newTestTOTPManager(t)

	encrypted, nonce, err := tm.EncryptSecret([]byte("JBSWY3DPEHPK3PXP"))
	require.NoError(t, err)
	assert.NotEqual(t, []byte("JBSWY3DPEHPK3PXP"), encrypted)

	decrypted, err := tm.DecryptSecret(encrypted, nonce)
	require.NoError(t, err)
	assert.Equal(t, []byte("JBSWY3DPEHPK3PXP"), decrypted)
}

func TestDecryptSecret_WrongNonceFails(t *testing.T) {
	tm := newTestTOTPManager(t)

	encrypted, _, err := tm.EncryptSecret([]byte("JBSWY3DPEHPK3PXP"))
	require.NoError(t, err)

	_, err = tm.DecryptSecret(encrypted, bytes.Repeat([]byte{0}, 12))
	assert.Error(t, err)
}

func TestGenerateEnrollment(t *testing.T) {
	tm := newTestTOTPManager(t)

	enrollment, err := tm.GenerateEnrollment("rector@stmichaels.example")
	require.NoError(t, err)

	assert.NotEmpty(t, enrollment.Secret)
	assert.True(t, strings.HasPrefix(enrollment.QRDataURL, "data:image/png;base64,"))

	// The stored ciphertext must decrypt back to the plaintext secret.
	decrypted, err := tm.DecryptSecret(enrollment.SecretEnc, enrollment.Nonce)
	require.NoError(t, err)
	assert.Equal(t, enrollment.Secret, string(decrypted))
}

func TestValidateCode(t *testing.T) {
	tm := newTestTOTPManager(t)
	secret := "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	code, err := totp.GenerateCodeCustom(secret, now, totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)

	valid, err := tm.ValidateCode([]byte(secret), code, now)
	require.NoError(t, err)
	assert.True(t, valid)

	// Within the ±1 step skew window.
	valid, err = tm.ValidateCode([]byte(secret), code, now.Add(30*time.Second))
	require.NoError(t, err)
	assert.True(t, valid)

	// Outside the skew window.
	valid, err = tm.ValidateCode([]byte(secret), code, now.Add(5*time.Minute))
	require.NoError(t, err)
	assert.False(t, valid)

	valid, err = tm.ValidateCode([]byte(secret), "000000", now)
	require.NoError(t, err)
	assert.False(t, valid)
}
