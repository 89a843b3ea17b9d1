package marketplace

import (
	"net/http"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/golang-jwt/jwt"
	"github.com/twitchtv/twirp"
	"github.com/yiplee/go-cache"
)

func extractBearerToken(r *http.Request) string {
	token := r.Header.Get("Authorization")
	return strings.TrimPrefix(token, "Bearer ")
}

// handleAuth authenticates bearer tokens signed with the configured secret.
// The token subject is the caller's account id.
func handleAuth(issuer string, secret []byte) func(next http.Handler) http.Handler {
	accounts := cache.New[string, string]()

	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := extractBearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			if account, ok := accounts.Get(token); ok {
				next.ServeHTTP(w, r.WithContext(WithAccount(ctx, account)))
				return
			}

			var claim jwt.StandardClaims
			_, err := jwt.ParseWithClaims(token, &claim, func(*jwt.Token) (interface{}, error) {
				return secret, nil
			})

			if err != nil {
				_ = twirp.WriteError(w, twirp.Unauthenticated.Error(err.Error()))
				return
			}

			if claim.Issuer != issuer {
				_ = twirp.WriteError(w, twirp.NewError(twirp.Unauthenticated, "auth required"))
				return
			}

			if !govalidator.IsUUID(claim.Subject) {
				_ = twirp.WriteError(w, twirp.NewError(twirp.Unauthenticated, "invalid subject"))
				return
			}

			accounts.Set(token, claim.Subject)
			next.ServeHTTP(w, r.WithContext(WithAccount(ctx, claim.Subject)))
		}

		return http.HandlerFunc(fn)
	}
}

// IssueToken signs a bearer token for an account. Used by the bootstrap
// tooling and tests.
func IssueToken(secret []byte, issuer, account string, ttl time.Duration) (string, error) {
	claim := jwt.StandardClaims{
		Issuer:    issuer,
		Subject:   account,
		IssuedAt:  time.Now().Unix(),
		ExpiresAt: time.Now().Add(ttl).Unix(),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claim).SignedString(secret)
}
