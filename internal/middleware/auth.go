// Package middleware содержит HTTP middleware сервиса обслуживания столиков.
package middleware

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mmeshcher/tableside/internal/model"
)

type contextKey string

const actorKey contextKey = "actor"

// Claims описывает содержимое токена доступа.
type Claims struct {
	Name         string     `json:"name,omitempty"`
	Role         model.Role `json:"role"`
	RestaurantID string     `json:"restaurant_id,omitempty"`
	jwt.RegisteredClaims
}

// AuthMiddleware проверяет Bearer-токен HS256 и кладёт пользователя в контекст запроса.
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным секретным ключом.
// При пустом секрете генерируется случайный ключ: ни один внешний токен не пройдёт проверку.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		_, _ = rand.Read(key)
	}

	return &AuthMiddleware{
		secretKey: key,
	}
}

// Middleware отклоняет запросы без действительного токена с кодом 401.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		actor, err := a.parse(raw)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

func (a *AuthMiddleware) parse(raw string) (model.Actor, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return model.Actor{}, err
	}

	if claims.Subject == "" {
		return model.Actor{}, errors.New("token has no subject")
	}
	switch claims.Role {
	case model.RoleCustomer:
	case model.RoleStaff:
		if claims.RestaurantID == "" {
			return model.Actor{}, errors.New("staff token has no restaurant")
		}
	default:
		return model.Actor{}, errors.New("token has unknown role")
	}

	return model.Actor{
		UserID:       claims.Subject,
		Name:         claims.Name,
		Role:         claims.Role,
		RestaurantID: claims.RestaurantID,
	}, nil
}

// IssueToken подписывает токен доступа для пользователя. Используется в тестах и служебных утилитах.
func (a *AuthMiddleware) IssueToken(actor model.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name:         actor.Name,
		Role:         actor.Role,
		RestaurantID: actor.RestaurantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secretKey)
}

// WithActor кладёт пользователя в контекст.
func WithActor(ctx context.Context, actor model.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext извлекает пользователя из контекста запроса.
func ActorFromContext(ctx context.Context) (model.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(model.Actor)
	return actor, ok
}
