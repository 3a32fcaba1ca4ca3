package security

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/MiguelitoPsi/care-lifecycle-service/internal/core/domain"
)

// SessionClaims étend les claims standards JWT. Le rôle voyage dans le
// token pour que les surfaces en aval (dashboards) sachent quoi rendre,
// mais l'autorisation des actions sensibles recharge toujours l'identité.
type SessionClaims struct {
	IdentityID  string `json:"identity_id"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
	jwt.RegisteredClaims
}

type JWTProvider struct {
	privateKey    *rsa.PrivateKey
	publicKey     *rsa.PublicKey
	sessionExpiry time.Duration
	issuer        string
}

// NewJWTProvider charge les clés RSA depuis des bytes PEM.
func NewJWTProvider(privateKeyPEM, publicKeyPEM []byte) (*JWTProvider, error) {
	privKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	pubKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return &JWTProvider{
		privateKey:    privKey,
		publicKey:     pubKey,
		sessionExpiry: 12 * time.Hour,
		issuer:        "miguelitopsi-care",
	}, nil
}

// Generate frappe un token de session. Pas de refresh token ici : la
// réactivation exige une ré-authentification complète, jamais une
// récupération silencieuse de session.
func (j *JWTProvider) Generate(identity *domain.Identity) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		IdentityID:  identity.ID,
		Role:        string(identity.Role),
		DisplayName: identity.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(j.sessionExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    j.issuer,
			Subject:   identity.ID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(j.privateKey)
}

// Validate vérifie la signature et retourne l'IdentityID (Subject).
func (j *JWTProvider) Validate(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Sécurité critique : refuser tout autre alg que RSA (attaques
		// par confusion d'algorithme "none"/HS256).
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.publicKey, nil
	})
	if err != nil {
		return "", err
	}

	if claims, ok := token.Claims.(*SessionClaims); ok && token.Valid {
		return claims.Subject, nil
	}
	return "", errors.New("invalid token claims")
}
