package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIssueAndParse(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	token, err := iss.Issue("acct-1")
	if err != nil {
		t.Fatal(err)
	}
	id, err := iss.Parse(token)
	if err != nil || id != "acct-1" {
		t.Fatalf("Parse=%q err=%v", id, err)
	}
}

func TestParseRejects(t *testing.T) {
	iss := NewIssuer("secret", time.Hour)
	other, _ := NewIssuer("other", time.Hour).Issue("acct-1")
	expired, _ := NewIssuer("secret", -time.Minute).Issue("acct-1")
	noSubject, _ := iss.Issue("")

	cases := map[string]string{
		"garbage":      "not.a.jwt",
		"wrong secret": other,
		"expired":      expired,
		"no subject":   noSubject,
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := iss.Parse(token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("err=%v want ErrInvalidToken", err)
			}
		})
	}
}

func TestContextAccountID(t *testing.T) {
	if _, ok := AccountID(context.Background()); ok {
		t.Fatal("empty context has an account id")
	}
	ctx := WithAccountID(context.Background(), "acct-9")
	if id, ok := AccountID(ctx); !ok || id != "acct-9" {
		t.Fatalf("AccountID=%q ok=%v", id, ok)
	}
	if _, ok := AccountID(WithAccountID(context.Background(), "")); ok {
		t.Fatal("blank id accepted")
	}
}
