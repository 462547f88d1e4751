package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aryan0dhankhar/identityhub/internal/domain"
	"github.com/aryan0dhankhar/identityhub/internal/security/middleware"
)

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestSignupCreatesUser(t *testing.T) {
	fx := newFixture(t)

	rec := httptest.NewRecorder()
	fx.identity.Signup(rec, postJSON("/api/v1/system/signup", `{"username":"alice123","password":"Password1"}`))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if got := message(t, env); got != "User created." {
		t.Fatalf("unexpected message %q", got)
	}

	result := resultMap(t, env)
	user, ok := result["user"].(map[string]any)
	if !ok {
		t.Fatalf("expected user in result, got %v", result)
	}
	if user["username"] != "alice123" {
		t.Fatalf("unexpected username %v", user["username"])
	}
	if _, leaked := user["password"]; leaked {
		t.Fatal("password must not appear in the response")
	}
	if _, leaked := user["passwordDigest"]; leaked {
		t.Fatal("password digest must not appear in the response")
	}
}

func TestSignupDuplicateUsername(t *testing.T) {
	fx := newFixture(t)

	rec := httptest.NewRecorder()
	fx.identity.Signup(rec, postJSON("/api/v1/system/signup", `{"username":"alice123","password":"Password1"}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("first signup failed: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	fx.identity.Signup(rec, postJSON("/api/v1/system/signup", `{"username":"alice123","password":"Password1"}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got := message(t, decodeEnvelope(t, rec)); got != "User already exists with this username. Please signin." {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestSignupInvalidInput(t *testing.T) {
	fx := newFixture(t)

	rec := httptest.NewRecorder()
	fx.identity.Signup(rec, postJSON("/api/v1/system/signup", `{"username":"a!","password":"short"}`))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if got := message(t, env); got != "Invalid input values." {
		t.Fatalf("unexpected message %q", got)
	}
	if len(env.Errors) != 2 {
		t.Fatalf("expected 2 violations, got %v", env.Errors)
	}
}

func TestSignupMalformedBody(t *testing.T) {
	fx := newFixture(t)

	rec := httptest.NewRecorder()
	fx.identity.Signup(rec, postJSON("/api/v1/system/signup", `{not json`))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got := message(t, decodeEnvelope(t, rec)); got != "Invalid request parameters." {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestSignupDisabledByFlag(t *testing.T) {
	fx := newFixture(t)
	t.Setenv("FLAG_SIGNUP_DISABLED", "true")

	rec := httptest.NewRecorder()
	fx.identity.Signup(rec, postJSON("/api/v1/system/signup", `{"username":"alice123","password":"Password1"}`))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if got := message(t, decodeEnvelope(t, rec)); got != "Signups are currently disabled." {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestSigninReturnsToken(t *testing.T) {
	fx := newFixture(t)
	signupFixtureUser(t, fx)

	rec := httptest.NewRecorder()
	fx.identity.Signin(rec, postJSON("/api/v1/system/signin", `{"username":"alice123","password":"Password1"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	result := resultMap(t, decodeEnvelope(t, rec))
	signed, ok := result["token"].(string)
	if !ok || signed == "" {
		t.Fatalf("expected token in result, got %v", result)
	}
	claims, err := fx.tokens.Verify(signed)
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if claims.Username != "alice123" {
		t.Fatalf("unexpected claims username %q", claims.Username)
	}
}

func TestSigninUnknownUsername(t *testing.T) {
	fx := newFixture(t)

	rec := httptest.NewRecorder()
	fx.identity.Signin(rec, postJSON("/api/v1/system/signin", `{"username":"ghost123","password":"Password1"}`))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if got := message(t, decodeEnvelope(t, rec)); got != "User does not exist with this username" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestSigninWrongPassword(t *testing.T) {
	fx := newFixture(t)
	signupFixtureUser(t, fx)

	rec := httptest.NewRecorder()
	fx.identity.Signin(rec, postJSON("/api/v1/system/signin", `{"username":"alice123","password":"WrongPass1"}`))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got := message(t, decodeEnvelope(t, rec)); got != "Username and password combination does not match." {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestWhoAmIWithoutClaims(t *testing.T) {
	fx := newFixture(t)

	rec := httptest.NewRecorder()
	fx.identity.WhoAmI(rec, httptest.NewRequest(http.MethodGet, "/api/v1/system/me", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestChangePasswordFlow(t *testing.T) {
	fx := newFixture(t)
	user := signupFixtureUser(t, fx)

	signed, err := fx.tokens.Issue(user)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	// Exercise through the gate so claims land in context the real way.
	gate := middleware.Authorize(fx.tokens, fx.identity.logger)
	changeHandler := gate(http.HandlerFunc(fx.identity.ChangePassword))

	// Wrong old password.
	req := postJSON("/api/v1/system/me/update-password", `{"oldPassword":"WrongPass1","newPassword":"NewPassword1"}`)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	changeHandler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for wrong old password, got %d", rec.Code)
	}
	if got := message(t, decodeEnvelope(t, rec)); got != "Old password does not match current password." {
		t.Fatalf("unexpected message %q", got)
	}

	// Missing fields.
	req = postJSON("/api/v1/system/me/update-password", `{"oldPassword":"Password1"}`)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec = httptest.NewRecorder()
	changeHandler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing field, got %d", rec.Code)
	}

	// Correct old password.
	req = postJSON("/api/v1/system/me/update-password", `{"oldPassword":"Password1","newPassword":"NewPassword1"}`)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec = httptest.NewRecorder()
	changeHandler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// The new password signs in; the old one no longer does.
	if _, _, err := fx.service.Signin(context.Background(), "alice123", "NewPassword1"); err != nil {
		t.Fatalf("new password should sign in: %v", err)
	}
	if _, _, err := fx.service.Signin(context.Background(), "alice123", "Password1"); err == nil {
		t.Fatal("old password should be rejected")
	}
}

func signupFixtureUser(t *testing.T, fx *fixture) *domain.User {
	t.Helper()
	user, err := fx.service.Signup(context.Background(), "alice123", "Password1")
	if err != nil {
		t.Fatalf("fixture signup failed: %v", err)
	}
	return user
}
