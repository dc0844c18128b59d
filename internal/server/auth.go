package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"

	"robline/internal/domain"
	"robline/internal/engine/auth"
)

type AuthConfig struct {
	Resolver auth.Resolver
	// AllowActorHeaders trusts X-Actor-Name/X-Actor-Role without credentials.
	// Local development only.
	AllowActorHeaders bool
	Log               *zap.SugaredLogger
}

type Principal struct {
	Actor  domain.Actor
	Source string
}

type principalKey struct{}

func (c AuthConfig) log() *zap.SugaredLogger {
	if c.Log != nil {
		return c.Log
	}
	return zap.NewNop().Sugar()
}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func actorFromContext(ctx context.Context) (domain.Actor, huma.StatusError) {
	if p, ok := principalFromContext(ctx); ok && p.Actor.Name != "" {
		return p.Actor, nil
	}
	return domain.Actor{}, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func credentialError(err error) huma.StatusError {
	var fre auth.ForbiddenRoleError
	if errors.As(err, &fre) {
		return handleError(err)
	}
	return newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil)
}

func newAuthMiddleware(basePath string, cfg AuthConfig) func(http.Handler) http.Handler {
	open := map[string]bool{
		path.Join(basePath, "health"):       true,
		path.Join(basePath, "openapi.json"): true,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if open[req.URL.Path] {
				next.ServeHTTP(w, req)
				return
			}

			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			apiKeyHeader := strings.TrimSpace(req.Header.Get("X-Api-Key"))
			actorName := strings.TrimSpace(req.Header.Get("X-Actor-Name"))

			if authz != "" {
				token, ok := bearerToken(authz)
				if !ok {
					respondStatusError(w, credentialError(auth.ErrInvalidCredentials))
					return
				}
				actor, err := cfg.Resolver.FromToken(token)
				if err != nil {
					cfg.log().Infow("bearer token rejected", "error", err)
					respondStatusError(w, credentialError(err))
					return
				}
				next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), Principal{Actor: actor, Source: "jwt"})))
				return
			}

			if apiKeyHeader != "" {
				actor, err := cfg.Resolver.FromAPIKey(apiKeyHeader)
				if err != nil {
					respondStatusError(w, credentialError(err))
					return
				}
				next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), Principal{Actor: actor, Source: "api_key"})))
				return
			}

			if actorName != "" && cfg.AllowActorHeaders {
				actor, err := auth.Identity(actorName, req.Header.Get("X-Actor-Role"), req.Header.Get("X-Actor-Department"))
				if err != nil {
					respondStatusError(w, credentialError(err))
					return
				}
				cfg.log().Warnw("unauthenticated actor headers in use", "actor", actor.Name, "role", actor.Role)
				next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), Principal{Actor: actor, Source: "actor_headers"})))
				return
			}

			respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
