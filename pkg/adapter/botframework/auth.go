package botframework

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/m-mizutani/goerr/v2"
)

const (
	DefaultJWKSURL     = "https://login.botframework.com/v1/.well-known/keys"
	BotFrameworkIssuer = "https://api.botframework.com"

	clockSkew = 5 * time.Minute
)

// ErrUnauthorized is returned when an inbound request carries no valid
// channel token.
var ErrUnauthorized = goerr.New("unauthorized request")

// Authenticator verifies the JWT that Bot Service attaches to every
// inbound activity.
type Authenticator struct {
	appID   string
	jwksURL string
	issuer  string
	now     func() time.Time
	keys    keyfunc.Keyfunc
}

type AuthOption func(*Authenticator)

func WithJWKSURL(u string) AuthOption {
	return func(a *Authenticator) {
		a.jwksURL = u
	}
}

func WithIssuer(iss string) AuthOption {
	return func(a *Authenticator) {
		a.issuer = iss
	}
}

// NewAuthenticator creates a verifier for tokens issued to appID. Signing
// keys are fetched from the JWKS endpoint and refreshed in the background
// until ctx is canceled; a token with an unknown kid triggers a rate
// limited refresh. An empty appID disables verification, which is only
// useful with the local emulator.
func NewAuthenticator(ctx context.Context, appID string, opts ...AuthOption) (*Authenticator, error) {
	a := &Authenticator{
		appID:   appID,
		jwksURL: DefaultJWKSURL,
		issuer:  BotFrameworkIssuer,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if !a.Enabled() {
		return a, nil
	}

	keys, err := keyfunc.NewDefaultCtx(ctx, []string{a.jwksURL})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to set up signing keys", goerr.V("jwks_url", a.jwksURL))
	}
	a.keys = keys
	return a, nil
}

// Enabled reports whether tokens are checked at all.
func (a *Authenticator) Enabled() bool {
	return a.appID != ""
}

// Verify checks the Authorization header of an inbound request. serviceURL
// is the activity's serviceUrl; when the token carries a serviceurl claim
// the two must match.
func (a *Authenticator) Verify(ctx context.Context, authHeader, serviceURL string) error {
	if !a.Enabled() {
		return nil
	}

	raw, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || raw == "" {
		return goerr.Wrap(ErrUnauthorized, "missing bearer token")
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, a.keys.KeyfuncCtx(ctx),
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithAudience(a.appID),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !token.Valid {
		return goerr.Wrap(errors.Join(ErrUnauthorized, err), "invalid channel token")
	}

	if claimed, ok := claims["serviceurl"].(string); ok && serviceURL != "" {
		if !strings.EqualFold(strings.TrimRight(claimed, "/"), strings.TrimRight(serviceURL, "/")) {
			return goerr.Wrap(ErrUnauthorized, "serviceUrl does not match token",
				goerr.V("claimed", claimed),
				goerr.V("service_url", serviceURL))
		}
	}

	return nil
}
