package auth

import (
	"testing"
	"time"

	"classroll/internal/policy"
)

func TestIssueParse(t *testing.T) {
	const (
		issuer = "classroll-test"
		key    = "unit-test-secret"
	)

	tokens, err := Issue("stu-1", policy.RoleStudent, issuer, key, time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatal("empty tokens issued")
	}

	claims, err := Parse(tokens.AccessToken, key, issuer)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	p := claims.Principal()
	if p.ID != "stu-1" {
		t.Errorf("principal id = %s, want stu-1", p.ID)
	}
	if p.Role != policy.RoleStudent {
		t.Errorf("principal role = %s, want student", p.Role)
	}

	tests := []struct {
		name   string
		token  string
		key    string
		issuer string
	}{
		{name: "wrong key", token: tokens.AccessToken, key: "other-key", issuer: issuer},
		{name: "wrong issuer", token: tokens.AccessToken, key: key, issuer: "someone-else"},
		{name: "garbage token", token: "not.a.token", key: key, issuer: issuer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.token, tt.key, tt.issuer); err == nil {
				t.Error("Parse() accepted invalid input")
			}
		})
	}
}

func TestParseRejectsUnknownRole(t *testing.T) {
	const (
		issuer = "classroll-test"
		key    = "unit-test-secret"
	)
	tokens, err := Issue("x-1", policy.Role("superuser"), issuer, key, time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := Parse(tokens.AccessToken, key, issuer); err == nil {
		t.Error("Parse() accepted a token with an unknown role")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	const (
		issuer = "classroll-test"
		key    = "unit-test-secret"
	)
	tokens, err := Issue("stu-1", policy.RoleStudent, issuer, key, -time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := Parse(tokens.AccessToken, key, issuer); err == nil {
		t.Error("Parse() accepted an expired token")
	}
}
