package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestNewUser_Defaults(t *testing.T) {
	expiry := time.Now().Add(time.Hour)
	user := NewUser("  alice ", "  Alice@X.com ", "hash", "123456", expiry)

	if user.Username != "alice" {
		t.Errorf("expected trimmed username alice, got %q", user.Username)
	}
	if user.Email != "alice@x.com" {
		t.Errorf("expected normalized email alice@x.com, got %q", user.Email)
	}
	if user.IsVerified {
		t.Error("new user must not be verified")
	}
	if !user.IsAcceptingMessages {
		t.Error("new user must accept messages")
	}
	if len(user.Messages) != 0 {
		t.Errorf("expected no messages, got %d", len(user.Messages))
	}
	if user.CanAuthenticate() {
		t.Error("unverified user must not authenticate")
	}
}

func TestUser_VerifyCodeExpired(t *testing.T) {
	now := time.Now()
	user := &User{VerifyCodeExpiry: now}

	if user.VerifyCodeExpired(now.Add(-time.Second)) {
		t.Error("code should be valid before expiry")
	}
	if !user.VerifyCodeExpired(now) {
		t.Error("code should be expired at expiry")
	}
}

func TestValidateMessageContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{name: "too short", content: "h", wantErr: ErrMessageTooShort},
		{name: "min", content: "hi", wantErr: nil},
		{name: "max", content: strings.Repeat("a", MaxMessageLength), wantErr: nil},
		{name: "too long", content: strings.Repeat("a", MaxMessageLength+1), wantErr: ErrMessageTooLong},
		{name: "multibyte counted as characters", content: strings.Repeat("ü", MaxMessageLength), wantErr: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessageContent(tt.content)
			if err != tt.wantErr {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "not found", err: ErrUserNotFound, want: KindNotFound},
		{name: "wrapped not found", err: fmt.Errorf("lookup: %w", ErrUserNotFound), want: KindNotFound},
		{name: "duplicate", err: NewDomainError(ErrUsernameTaken, "sign-up", "alice"), want: KindDuplicateIdentity},
		{name: "forbidden", err: ErrNotAcceptingMessages, want: KindForbidden},
		{name: "auth", err: NewAuthError(ReasonNotVerified), want: KindAuth},
		{name: "store", err: fmt.Errorf("%w: disk full", ErrStore), want: KindStore},
		{name: "unknown", err: errors.New("boom"), want: KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestPublicMessage_DistinctPerFailure(t *testing.T) {
	notFound := PublicMessage(fmt.Errorf("send: %w", ErrUserNotFound))
	forbidden := PublicMessage(ErrNotAcceptingMessages)

	if notFound == forbidden {
		t.Fatalf("not found and forbidden must not share a message: %q", notFound)
	}
	if notFound != "user not found" {
		t.Errorf("unexpected message %q", notFound)
	}
	if got := PublicMessage(errors.New("pq: connection refused")); got != "internal server error" {
		t.Errorf("driver errors must not leak, got %q", got)
	}
}

func TestValidUsername(t *testing.T) {
	tests := []struct {
		username string
		want     bool
	}{
		{"al", true},
		{"alice_01", true},
		{"a", false},
		{strings.Repeat("a", 20), true},
		{strings.Repeat("a", 21), false},
		{"alice smith", false},
		{"alice@x.com", false},
		{"élise", false},
	}

	for _, tt := range tests {
		if got := ValidUsername(tt.username); got != tt.want {
			t.Errorf("ValidUsername(%q) = %v, want %v", tt.username, got, tt.want)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  error
	}{
		{name: "too short", password: "12345", wantErr: ErrInvalidPassword},
		{name: "min", password: "123456", wantErr: nil},
		{name: "at byte limit", password: strings.Repeat("p", MaxPasswordBytes), wantErr: nil},
		{name: "over byte limit", password: strings.Repeat("p", MaxPasswordBytes+1), wantErr: ErrPasswordTooLong},
		{name: "multibyte counted in bytes", password: strings.Repeat("ü", 37), wantErr: ErrPasswordTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidatePassword(tt.password); err != tt.wantErr {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
