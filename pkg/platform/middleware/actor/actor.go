// Package actor attributes requests to whoever performed them.
//
// Attribution is best-effort: the middleware never rejects a request. With a
// signing key configured it trusts only a verified HS256 bearer token;
// without one it trusts the X-Actor-* headers set by an upstream gateway.
package actor

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"labtrail/pkg/requestcontext"
)

// Headers read when no signing key is configured.
const (
	HeaderActorID   = "X-Actor-Id"
	HeaderActorRole = "X-Actor-Role"
	HeaderActorName = "X-Actor-Name"
)

var errInvalidToken = errors.New("invalid token")

// Claims are the actor claims carried by a bearer token.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 tokens.
type Verifier struct {
	signingKey []byte
}

// NewVerifier returns nil for an empty key, which selects header mode.
func NewVerifier(signingKey string) *Verifier {
	if signingKey == "" {
		return nil
	}
	return &Verifier{signingKey: []byte(signingKey)}
}

// Verify parses and validates tokenString.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return v.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errInvalidToken
	}
	return claims, nil
}

// Middleware resolves the actor and stores it in the request context.
// verifier may be nil.
func Middleware(verifier *Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, ok := resolve(r, verifier, logger)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			ctx := requestcontext.WithActor(r.Context(), info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func resolve(r *http.Request, verifier *Verifier, logger *slog.Logger) (requestcontext.ActorInfo, bool) {
	if verifier == nil {
		info := requestcontext.ActorInfo{
			UserID: strings.TrimSpace(r.Header.Get(HeaderActorID)),
			Role:   strings.TrimSpace(r.Header.Get(HeaderActorRole)),
			Name:   strings.TrimSpace(r.Header.Get(HeaderActorName)),
		}
		return info, info != (requestcontext.ActorInfo{})
	}

	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return requestcontext.ActorInfo{}, false
	}

	claims, err := verifier.Verify(strings.TrimSpace(token))
	if err != nil {
		ctx := r.Context()
		logger.WarnContext(ctx, "actor token rejected, request left unattributed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return requestcontext.ActorInfo{}, false
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	return requestcontext.ActorInfo{UserID: userID, Role: claims.Role, Name: claims.Name}, true
}
