package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MiguelitoPsi/care-lifecycle-service/internal/core/domain"
)

func genKeyPair(t *testing.T) (privPEM, pubPEM []byte, key *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	privPEM = pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return privPEM, pubPEM, key
}

func newTestProvider(t *testing.T) *JWTProvider {
	t.Helper()
	privPEM, pubPEM, _ := genKeyPair(t)
	p, err := NewJWTProvider(privPEM, pubPEM)
	require.NoError(t, err)
	return p
}

func TestJWTRoundtrip(t *testing.T) {
	p := newTestProvider(t)
	identity, err := domain.NewIdentity(domain.RolePatient, "Jo")
	require.NoError(t, err)

	token, err := p.Generate(identity)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	id, err := p.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, identity.ID, id)
}

func TestJWTClaimsContent(t *testing.T) {
	p := newTestProvider(t)
	identity, err := domain.NewIdentity(domain.RoleTherapist, "Dr. Ana")
	require.NoError(t, err)

	token, err := p.Generate(identity)
	require.NoError(t, err)

	claims := &SessionClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(token, claims)
	require.NoError(t, err)
	assert.Equal(t, identity.ID, claims.IdentityID)
	assert.Equal(t, "therapist", claims.Role)
	assert.Equal(t, "Dr. Ana", claims.DisplayName)
	assert.Equal(t, "miguelitopsi-care", claims.Issuer)
	require.NotNil(t, claims.ExpiresAt)
}

func TestJWTRejectsForeignKey(t *testing.T) {
	p := newTestProvider(t)
	other := newTestProvider(t)

	identity, err := domain.NewIdentity(domain.RolePatient, "Jo")
	require.NoError(t, err)
	token, err := other.Generate(identity)
	require.NoError(t, err)

	_, err = p.Validate(token)
	assert.Error(t, err, "token signed by another key must be refused")
}

func TestJWTRejectsAlgorithmConfusion(t *testing.T) {
	privPEM, pubPEM, key := genKeyPair(t)
	p, err := NewJWTProvider(privPEM, pubPEM)
	require.NoError(t, err)

	// Token HS256 signé avec la clé publique comme secret : le classique
	// de la confusion d'algorithme. Doit être refusé par le keyfunc.
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		IdentityID: "attacker",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: "attacker",
			Issuer:  "miguelitopsi-care",
		},
	})
	tokenString, err := forged.SignedString(pubDER)
	require.NoError(t, err)

	_, err = p.Validate(tokenString)
	assert.Error(t, err)
}

func TestJWTRejectsGarbage(t *testing.T) {
	p := newTestProvider(t)
	_, err := p.Validate("not.a.token")
	assert.Error(t, err)
}

func TestNewJWTProviderBadPEM(t *testing.T) {
	_, err := NewJWTProvider([]byte("junk"), []byte("junk"))
	assert.Error(t, err)
}
