package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc/metadata"
)

var secret = []byte("test-secret")

func TestFromTokenReadsSubject(t *testing.T) {
	tok, err := Sign(secret, "user-42", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	id, err := FromToken(tok)
	if err != nil {
		t.Fatal(err)
	}
	if id != "user-42" {
		t.Errorf("identity = %q, want user-42", id)
	}
}

func TestFromTokenEmptyIsGuest(t *testing.T) {
	id, err := FromToken("   ")
	if err != nil || id != "" {
		t.Errorf("FromToken(blank) = %q, %v; want guest", id, err)
	}
}

func TestFromTokenRejectsGarbage(t *testing.T) {
	if _, err := FromToken("not.a.jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestFromTokenRequiresSubject(t *testing.T) {
	tok, _ := Sign(secret, "", 0)
	if _, err := FromToken(tok); !errors.Is(err, ErrMissingSubject) {
		t.Errorf("err = %v, want ErrMissingSubject", err)
	}
}

func TestVerify(t *testing.T) {
	tok, _ := Sign(secret, "B", time.Hour)

	id, err := Verify(tok, secret)
	if err != nil || id != "B" {
		t.Errorf("Verify = %q, %v", id, err)
	}
	if _, err := Verify(tok, []byte("other")); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong secret err = %v, want ErrInvalidToken", err)
	}

	expired, _ := Sign(secret, "B", -time.Minute)
	if _, err := Verify(expired, secret); err == nil {
		t.Error("expired token should not verify")
	}
}

func TestBearerMetadata(t *testing.T) {
	md, err := Bearer("abc").GetRequestMetadata(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if md["authorization"] != "Bearer abc" {
		t.Errorf("authorization = %q", md["authorization"])
	}

	md, _ = Bearer("").GetRequestMetadata(context.Background())
	if len(md) != 0 {
		t.Errorf("empty bearer should send nothing, got %v", md)
	}
}

func TestTokenFromIncoming(t *testing.T) {
	tests := []struct {
		name    string
		md      metadata.MD
		want    string
		wantErr error
	}{
		{"ok", metadata.Pairs("authorization", "Bearer tok"), "tok", nil},
		{"lowercase scheme", metadata.Pairs("authorization", "bearer tok"), "tok", nil},
		{"missing", metadata.MD{}, "", ErrMissingToken},
		{"wrong scheme", metadata.Pairs("authorization", "Basic tok"), "", ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := metadata.NewIncomingContext(context.Background(), tt.md)
			got, err := TokenFromIncoming(ctx)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("token = %q, want %q", got, tt.want)
			}
		})
	}
}
