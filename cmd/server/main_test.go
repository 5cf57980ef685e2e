package main

import (
	"testing"

	"medimitra/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short", AccessTokenTTLMinutes: 60})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
}

func TestValidateSecurityConfigRejectsLongLivedTokens(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", AccessTokenTTLMinutes: 30 * 24 * 60})
	if err == nil {
		t.Fatalf("expected month-long token ttl to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", AccessTokenTTLMinutes: 480})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}
