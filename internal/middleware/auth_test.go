package middleware

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/playmate/playmate/internal/auth"
	"github.com/playmate/playmate/internal/httpx"
	"github.com/playmate/playmate/internal/identity"
	"github.com/playmate/playmate/internal/logging"
)

func protectedApp(tokens *auth.Service) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: httpx.ErrorHandler(logging.Discard())})
	app.Use(JWTAuth(tokens))
	app.Get("/me", func(c *fiber.Ctx) error {
		p, err := auth.FromCtx(c)
		if err != nil {
			return err
		}
		return httpx.OK(c, p)
	})
	app.Get("/admin", RequireAdmin(), func(c *fiber.Ctx) error { return httpx.OK(c, nil) })
	return app
}

func get(t *testing.T, app *fiber.App, path, token string) int {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, path, nil)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestJWTAuth(t *testing.T) {
	tokens := auth.NewService("test-secret", time.Hour)
	app := protectedApp(tokens)

	user, err := tokens.Issue(identity.User{ID: 7, Username: "u", Role: identity.RoleUser})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	admin, _ := tokens.Issue(identity.User{ID: 8, Username: "a", Role: identity.RoleAdmin})
	forged, _ := auth.NewService("other-secret", time.Hour).Issue(identity.User{ID: 8, Role: identity.RoleAdmin})

	cases := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{"missing token", "/me", "", fiber.StatusUnauthorized},
		{"garbage token", "/me", "not-a-jwt", fiber.StatusUnauthorized},
		{"wrong secret", "/me", forged.AccessToken, fiber.StatusUnauthorized},
		{"valid token", "/me", user.AccessToken, fiber.StatusOK},
		{"user on admin route", "/admin", user.AccessToken, fiber.StatusForbidden},
		{"admin on admin route", "/admin", admin.AccessToken, fiber.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := get(t, app, tc.path, tc.token); got != tc.want {
				t.Fatalf("expected %d got %d", tc.want, got)
			}
		})
	}
}

func TestLoginRateLimit(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := fiber.New()
	app.Post("/login", LoginRateLimit(cache, 2), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	attempt := func(username string) int {
		req := httptest.NewRequest(fiber.MethodPost, "/login", strings.NewReader(`{"username":"`+username+`"}`))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	for i := 0; i < 2; i++ {
		if got := attempt("alice"); got != fiber.StatusOK {
			t.Fatalf("attempt %d: expected 200 got %d", i+1, got)
		}
	}
	if got := attempt("Alice"); got != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", got)
	}
	if got := attempt("bob"); got != fiber.StatusOK {
		t.Fatalf("other users are not limited, got %d", got)
	}

	mr.FastForward(time.Minute + time.Second)
	if got := attempt("alice"); got != fiber.StatusOK {
		t.Fatalf("limit should reset after a minute, got %d", got)
	}
}
