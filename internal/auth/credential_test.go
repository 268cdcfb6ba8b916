package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/fitnessclient/internal/domain"
)

var testSigner = SignerConfig{Secret: "test-secret", Issuer: "fitness-dev", TTL: time.Hour}

func TestDecodeTokenExtractsClaims(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	token, err := Issue(testSigner, Claims{Subject: "user-1", Name: "Ada Lovelace", Email: "ada@example.com"}, now)
	require.NoError(t, err)

	cred, err := DecodeToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", cred.UserID)
	require.Equal(t, "user-1", cred.Claims.Subject)
	require.Equal(t, "Ada Lovelace", cred.Claims.DisplayName())
	require.True(t, cred.Claims.ExpiresAt.Equal(now.Add(time.Hour)))
	require.False(t, cred.Expired(now))
	require.True(t, cred.Expired(now.Add(2*time.Hour)))
}

func TestDecodeTokenRejectsGarbage(t *testing.T) {
	_, err := DecodeToken("not-a-jwt")
	require.ErrorIs(t, err, domain.ErrInvalidSession)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = DecodeToken("  ")
	require.ErrorIs(t, err, ErrMissingToken)

	token, err := Issue(testSigner, Claims{}, time.Now())
	require.NoError(t, err)
	_, err = DecodeToken(token)
	require.ErrorIs(t, err, domain.ErrInvalidSession)
}

func TestVerifyChecksSignatureAndIssuer(t *testing.T) {
	token, err := Issue(testSigner, Claims{Subject: "user-2", PreferredUsername: "grace"}, time.Now())
	require.NoError(t, err)

	claims, err := Verify(token, testSigner)
	require.NoError(t, err)
	require.Equal(t, "user-2", claims.Subject)
	require.Equal(t, "grace", claims.DisplayName())

	_, err = Verify(token, SignerConfig{Secret: "other", Issuer: testSigner.Issuer})
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = Verify(token, SignerConfig{Secret: testSigner.Secret, Issuer: "someone-else"})
	require.ErrorIs(t, err, ErrInvalidToken)

	expired, err := Issue(testSigner, Claims{Subject: "user-2"}, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = Verify(expired, testSigner)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestCredentialEqual(t *testing.T) {
	a := &Credential{Token: "t", UserID: "u", Claims: Claims{Subject: "u"}}
	b := &Credential{Token: "t", UserID: "u", Claims: Claims{Subject: "u"}}
	require.True(t, a.Equal(b))
	b.Token = "other"
	require.False(t, a.Equal(b))
	var none *Credential
	require.True(t, none.Equal(nil))
	require.False(t, a.Equal(nil))
}

func TestClaimsContextRoundTrip(t *testing.T) {
	ctx := WithClaims(context.Background(), &Claims{Subject: "user-3"})
	claims, ok := FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "user-3", claims.Subject)

	_, ok = FromContext(context.Background())
	require.False(t, ok)
}
