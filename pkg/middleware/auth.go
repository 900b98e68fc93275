package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/platinummonkey/cristata/pkg/apierr"
	"github.com/platinummonkey/cristata/pkg/contextkeys"
	"github.com/platinummonkey/cristata/pkg/httputil"
	"github.com/platinummonkey/cristata/pkg/observability"
	"github.com/platinummonkey/cristata/pkg/rbac"
)

// Claims are the identity claims of a verified token
type Claims struct {
	Subject string
	Email   string
}

// TokenVerifier verifies a raw bearer token
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*Claims, error)
}

// ProfileResolver maps verified claims onto a profile of one tenant
type ProfileResolver interface {
	ResolveProfile(ctx context.Context, tenant string, claims *Claims) (*rbac.Profile, error)
}

type oidcVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers the issuer and verifies ID tokens issued to
// clientID
func NewOIDCVerifier(ctx context.Context, issuer, clientID string) (TokenVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, err
	}
	return &oidcVerifier{verifier: provider.Verifier(&oidc.Config{ClientID: clientID})}, nil
}

func (v *oidcVerifier) Verify(ctx context.Context, rawToken string) (*Claims, error) {
	token, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	var extra struct {
		Email string `json:"email"`
	}
	if err := token.Claims(&extra); err != nil {
		return nil, err
	}
	return &Claims{Subject: token.Subject, Email: extra.Email}, nil
}

// AuthMiddleware attaches the caller profile to requests carrying a bearer
// token. Requests without one continue anonymously; public queries accept
// them and protected operations reject them.
type AuthMiddleware struct {
	verifier TokenVerifier
	profiles ProfileResolver
}

// NewAuthMiddleware creates a new authentication middleware. A nil
// verifier disables authentication and every request is anonymous.
func NewAuthMiddleware(verifier TokenVerifier, profiles ProfileResolver) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier, profiles: profiles}
}

// Handler wraps an HTTP handler with authentication. It must run after the
// tenant middleware.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" || m.verifier == nil {
			next.ServeHTTP(w, r)
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			httputil.WriteError(w, apierr.Unauthenticated("invalid authorization header format"))
			return
		}

		ctx := r.Context()
		claims, err := m.verifier.Verify(ctx, token)
		if err != nil {
			observability.FromContext(ctx).WithError(err).Debug("Rejected bearer token")
			httputil.WriteError(w, apierr.Unauthenticated("invalid or expired token"))
			return
		}

		profile, err := m.profiles.ResolveProfile(ctx, contextkeys.GetTenant(ctx), claims)
		if err != nil {
			if errors.Is(err, apierr.ErrUnauthenticated) {
				httputil.WriteError(w, err)
				return
			}
			observability.FromContext(ctx).WithError(err).Error("Failed to resolve profile")
			httputil.WriteError(w, apierr.Internal("failed to resolve profile", err))
			return
		}

		ctx = contextkeys.WithProfile(ctx, profile)
		ctx = contextkeys.WithUserID(ctx, profile.ID.Hex())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ProfileFrom returns the profile attached by AuthMiddleware
func ProfileFrom(ctx context.Context) *rbac.Profile {
	profile, _ := ctx.Value(contextkeys.ProfileKey).(*rbac.Profile)
	return profile
}
