package oauthdrive

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/cloudkit/cloudkit"
	"github.com/cloudkit/cloudkit/engine"
	"github.com/cloudkit/cloudkit/provider"
	"github.com/golang-jwt/jwt/v5"
)

// serviceAccountClaims is the JWT-bearer assertion RFC 7523 describes: a
// short-lived, self-signed claim set exchanged for an access token without
// any interactive consent step. Grounded on the RegisteredClaims shape
// sly67-FruitSalade signs for its own service tokens.
type serviceAccountClaims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope,omitempty"`
}

// SignServiceAccountAssertion builds and signs a JWT-bearer assertion for
// the server-to-server exchange path (§4.6's "alternate exchange_authorization_code
// path for server-to-server hints"). keyPEM is the service account's PKCS#1/PKCS#8
// RSA private key.
func SignServiceAccountAssertion(issuer, subject, audience, scope string, keyPEM []byte, ttl time.Duration) (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(keyPEM)
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims := serviceAccountClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Scope: scope,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(key)
}

// ExchangeServiceAccountJWT trades a signed assertion for an access token
// using the JWT-bearer grant, bypassing auth.Manager's interactive
// AwaitingConsent/HaveCode states entirely.
func (a *Adapter) ExchangeServiceAccountJWT(ctx context.Context, assertion string) cloudkit.Request[cloudkit.Token] {
	return provider.Do[cloudkit.Token](ctx, &a.Base,
		func(ctx context.Context) (provider.RequestSpec, error) {
			v := url.Values{}
			v.Set("grant_type", "urn:ietf:params:oauth:grant-type:jwt-bearer")
			v.Set("assertion", assertion)
			return provider.RequestSpec{
				Method:  "POST",
				URL:     a.endpoints.TokenURL,
				Headers: map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
				Body:    newBytesReader([]byte(v.Encode())),
			}, nil
		},
		nil,
		func(ctx context.Context, rq *engine.Request[cloudkit.Token], resp *cloudkit.Response, body []byte) (cloudkit.Token, error) {
			var out struct {
				AccessToken string `json:"access_token"`
			}
			if err := json.Unmarshal(body, &out); err != nil {
				return cloudkit.Token{}, err
			}
			return cloudkit.Token{AccessToken: out.AccessToken}, nil
		},
	)
}
