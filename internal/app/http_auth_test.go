package app

import (
	"net/http"
	"testing"
)

func TestRegisterLoginFlow(t *testing.T) {
	ts := newTestServer(t)

	status, envelope := ts.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"name":     "Dana",
		"email":    "Dana@Example.com",
		"password": "hunter2hunter2",
	})
	if status != http.StatusCreated {
		t.Fatalf("register status = %d, body %v", status, envelope)
	}
	data := dataOf(t, envelope)
	if data["token"] == "" || data["refreshToken"] == "" {
		t.Fatalf("register returned no tokens: %v", data)
	}
	user := data["user"].(map[string]any)
	if user["role"] != "developer" {
		t.Fatalf("register role = %v, want developer", user["role"])
	}
	if user["email"] != "dana@example.com" {
		t.Fatalf("email not normalized: %v", user["email"])
	}

	// Same email again fails validation.
	status, envelope = ts.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"name":     "Dana Two",
		"email":    "dana@example.com",
		"password": "hunter2hunter2",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("duplicate register status = %d", status)
	}
	if envelope["success"] != false {
		t.Fatalf("expected failure envelope, got %v", envelope)
	}

	status, envelope = ts.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email":    "dana@example.com",
		"password": "hunter2hunter2",
	})
	if status != http.StatusOK {
		t.Fatalf("login status = %d, body %v", status, envelope)
	}

	status, _ = ts.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email":    "dana@example.com",
		"password": "wrong-password",
	})
	if status != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d", status)
	}
}

func TestRefreshRotation(t *testing.T) {
	ts := newTestServer(t)

	_, envelope := ts.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"name":     "Rey",
		"email":    "rey@example.com",
		"password": "hunter2hunter2",
	})
	refresh := dataOf(t, envelope)["refreshToken"].(string)

	status, envelope := ts.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]any{
		"refreshToken": refresh,
	})
	if status != http.StatusOK {
		t.Fatalf("refresh status = %d, body %v", status, envelope)
	}
	next := dataOf(t, envelope)["refreshToken"].(string)
	if next == refresh {
		t.Fatal("refresh token was not rotated")
	}

	// The consumed token is gone; replaying it is unauthorized.
	status, _ = ts.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]any{
		"refreshToken": refresh,
	})
	if status != http.StatusUnauthorized {
		t.Fatalf("replayed refresh status = %d, want 401", status)
	}

	status, _ = ts.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]any{
		"refreshToken": next,
	})
	if status != http.StatusOK {
		t.Fatalf("rotated refresh status = %d", status)
	}
}

func TestLogoutRevokesRefresh(t *testing.T) {
	ts := newTestServer(t)

	_, envelope := ts.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"name":     "Lee",
		"email":    "lee@example.com",
		"password": "hunter2hunter2",
	})
	data := dataOf(t, envelope)
	access := data["token"].(string)
	refresh := data["refreshToken"].(string)

	status, _ := ts.do(t, http.MethodPost, "/api/v1/auth/logout", access, map[string]any{
		"refreshToken": refresh,
	})
	if status != http.StatusOK {
		t.Fatalf("logout status = %d", status)
	}

	status, _ = ts.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]any{
		"refreshToken": refresh,
	})
	if status != http.StatusUnauthorized {
		t.Fatalf("refresh after logout status = %d, want 401", status)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	ts := newTestServer(t)

	ts.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"name":     "Mia",
		"email":    "mia@example.com",
		"password": "original-pass",
	})

	// Without SMTP the reset token comes back in the response.
	status, envelope := ts.do(t, http.MethodPost, "/api/v1/auth/forgot-password", "", map[string]any{
		"email": "mia@example.com",
	})
	if status != http.StatusOK {
		t.Fatalf("forgot status = %d", status)
	}
	resetToken := dataOf(t, envelope)["resetToken"].(string)

	// Unknown email gets the same 200 with no token.
	status, envelope = ts.do(t, http.MethodPost, "/api/v1/auth/forgot-password", "", map[string]any{
		"email": "nobody@example.com",
	})
	if status != http.StatusOK {
		t.Fatalf("forgot unknown status = %d", status)
	}
	if _, ok := envelope["data"]; ok {
		t.Fatalf("unknown email leaked data: %v", envelope)
	}

	status, _ = ts.do(t, http.MethodPost, "/api/v1/auth/reset-password", "", map[string]any{
		"token":       resetToken,
		"newPassword": "brand-new-pass",
	})
	if status != http.StatusOK {
		t.Fatalf("reset status = %d", status)
	}

	// Token is single use.
	status, _ = ts.do(t, http.MethodPost, "/api/v1/auth/reset-password", "", map[string]any{
		"token":       resetToken,
		"newPassword": "another-pass-123",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("reused reset token status = %d, want 400", status)
	}

	status, _ = ts.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email":    "mia@example.com",
		"password": "brand-new-pass",
	})
	if status != http.StatusOK {
		t.Fatalf("login with new password status = %d", status)
	}
	status, _ = ts.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email":    "mia@example.com",
		"password": "original-pass",
	})
	if status != http.StatusUnauthorized {
		t.Fatalf("login with old password status = %d, want 401", status)
	}
}
