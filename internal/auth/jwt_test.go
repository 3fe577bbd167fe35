package auth_test

import (
	"testing"

	"github.com/outbound-wms/api/internal/auth"
)

func TestGenerateAndValidateToken(t *testing.T) {
	secret := "test-secret"

	token, err := auth.GenerateToken(secret, 42, "picker1", "USER")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	claims, err := auth.ValidateToken(secret, token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}

	if claims.UserID != 42 {
		t.Errorf("user ID: got %d, want 42", claims.UserID)
	}
	if claims.Username != "picker1" {
		t.Errorf("username: got %q, want %q", claims.Username, "picker1")
	}
	if claims.Role != "USER" {
		t.Errorf("role: got %q, want %q", claims.Role, "USER")
	}
	if claims.ID == "" {
		t.Error("expected a token ID for revocation tracking")
	}
}

func TestValidateTokenWithWrongSecret(t *testing.T) {
	token, err := auth.GenerateToken("secret-a", 1, "admin", "ADMIN")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	_, err = auth.ValidateToken("secret-b", token)
	if err == nil {
		t.Fatal("expected error validating with wrong secret")
	}
}

func TestValidateTokenWithInvalidString(t *testing.T) {
	_, err := auth.ValidateToken("secret", "not-a-jwt")
	if err == nil {
		t.Fatal("expected error validating invalid token string")
	}
}
