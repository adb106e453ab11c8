package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mmeshcher/tableside/internal/model"
)

func TestAuthMiddleware_WithValidToken(t *testing.T) {
	m := NewAuthMiddleware("test-secret")
	want := model.Actor{UserID: "s1", Name: "Host", Role: model.RoleStaff, RestaurantID: "r1"}

	token, err := m.IssueToken(want, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			t.Fatalf("actor not in context")
		}
		if actor != want {
			t.Fatalf("actor from context = %+v, want %+v", actor, want)
		}
	})

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), r)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	m := NewAuthMiddleware("test-secret")
	foreign := NewAuthMiddleware("other-secret")

	valid := func(a *AuthMiddleware, actor model.Actor, ttl time.Duration) string {
		token, err := a.IssueToken(actor, ttl)
		if err != nil {
			t.Fatalf("IssueToken error: %v", err)
		}
		return "Bearer " + token
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u1", "role": "customer"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}

	customer := model.Actor{UserID: "u1", Role: model.RoleCustomer}

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic dXNlcjpwYXNz"},
		{"garbage", "Bearer not-a-token"},
		{"foreign secret", valid(foreign, customer, time.Hour)},
		{"expired", valid(m, customer, -time.Minute)},
		{"unsigned", "Bearer " + none},
		{"staff without restaurant", valid(m, model.Actor{UserID: "s1", Role: model.RoleStaff}, time.Hour)},
		{"unknown role", valid(m, model.Actor{UserID: "u1", Role: "admin"}, time.Hour)},
		{"no subject", valid(m, model.Actor{Role: model.RoleCustomer}, time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("next handler should not be called")
			})

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			m.Middleware(next).ServeHTTP(w, r)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}
