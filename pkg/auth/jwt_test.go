package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/slotwise-health/slotwise/internal/config"
	"github.com/slotwise-health/slotwise/internal/domain"
)

func testManager(accessTTL time.Duration) *JWTManager {
	return NewJWTManager(config.JWTConfig{
		Secret:          "test-secret-that-is-long-enough-0000",
		AccessTokenTTL:  accessTTL,
		RefreshTokenTTL: time.Hour,
		Issuer:          "slotwise-test",
	})
}

func TestJWTManager_RoundTrip(t *testing.T) {
	m := testManager(time.Minute)

	doctorID := uuid.New()
	in := &domain.Claims{
		UserID:   uuid.New(),
		Email:    "doc@example.com",
		Role:     domain.RoleDoctor,
		DoctorID: &doctorID,
	}

	pair, err := m.GenerateTokenPair(in)
	if err != nil {
		t.Fatalf("GenerateTokenPair: %v", err)
	}
	if pair.TokenType != "Bearer" {
		t.Errorf("TokenType = %q, want Bearer", pair.TokenType)
	}

	out, err := m.ValidateAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if out.UserID != in.UserID || out.Email != in.Email || out.Role != in.Role {
		t.Errorf("claims round-trip mismatch: got %+v", out)
	}
	if out.DoctorID == nil || *out.DoctorID != doctorID {
		t.Error("doctor ID must survive the round trip")
	}
}

func TestJWTManager_RejectsWrongTokenType(t *testing.T) {
	m := testManager(time.Minute)

	pair, err := m.GenerateTokenPair(&domain.Claims{UserID: uuid.New(), Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("GenerateTokenPair: %v", err)
	}

	if _, err := m.ValidateAccessToken(pair.RefreshToken); !errors.Is(err, ErrTokenTypeMismatch) {
		t.Errorf("refresh token as access: err = %v, want ErrTokenTypeMismatch", err)
	}
	if _, err := m.ValidateRefreshToken(pair.AccessToken); !errors.Is(err, ErrTokenTypeMismatch) {
		t.Errorf("access token as refresh: err = %v, want ErrTokenTypeMismatch", err)
	}
}

func TestJWTManager_RejectsTampered(t *testing.T) {
	m := testManager(time.Minute)
	other := NewJWTManager(config.JWTConfig{
		Secret:          "a-completely-different-secret-1111111",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
		Issuer:          "slotwise-test",
	})

	pair, err := other.GenerateTokenPair(&domain.Claims{UserID: uuid.New(), Role: domain.RolePatient})
	if err != nil {
		t.Fatalf("GenerateTokenPair: %v", err)
	}

	if _, err := m.ValidateAccessToken(pair.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("foreign-signed token: err = %v, want ErrTokenInvalid", err)
	}
}
