package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestGenerateDeterministic(t *testing.T) {
	c := New("secret")
	a, err := c.Generate("650610123", 42, "CHECKIN", 7)
	if err != nil {
		t.Fatalf("generate error: %v", err)
	}
	b, err := c.Generate("650610123", 42, "CHECKIN", 7)
	if err != nil {
		t.Fatalf("generate error: %v", err)
	}
	if a != b {
		t.Fatalf("expected identical tokens, got %s and %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}

func TestGenerateMatchesReferenceVector(t *testing.T) {
	c := New("secret")
	got, err := c.Generate("650610123", 42, "CHECKIN", 7)
	if err != nil {
		t.Fatalf("generate error: %v", err)
	}
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte("650610123|42|CHECKIN|7"))
	want := hex.EncodeToString(mac.Sum(nil))
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestGenerateInputSensitivity(t *testing.T) {
	c := New("secret")
	base, _ := c.Generate("650610123", 42, "CHECKIN", 7)
	variants := []struct {
		name      string
		code      string
		courseID  int64
		keyword   string
		sessionID int64
	}{
		{"student code", "650610124", 42, "CHECKIN", 7},
		{"course id", "650610123", 43, "CHECKIN", 7},
		{"keyword", "650610123", 42, "CHECKOUT", 7},
		{"session id", "650610123", 42, "CHECKIN", 8},
	}
	for _, v := range variants {
		tok, err := c.Generate(v.code, v.courseID, v.keyword, v.sessionID)
		if err != nil {
			t.Fatalf("%s: generate error: %v", v.name, err)
		}
		if tok == base {
			t.Fatalf("changing %s did not change the token", v.name)
		}
	}
}

func TestGenerateRejectsEmptyInputs(t *testing.T) {
	c := New("secret")
	if _, err := c.Generate("", 42, "CHECKIN", 7); err == nil {
		t.Fatalf("expected error for empty student code")
	}
	if _, err := c.Generate("650610123", 42, "", 7); err == nil {
		t.Fatalf("expected error for empty keyword")
	}
	if _, err := c.Generate("650610123", 0, "CHECKIN", 7); err == nil {
		t.Fatalf("expected error for zero course id")
	}
	if _, err := c.Generate("650610123", 42, "CHECKIN", -1); err == nil {
		t.Fatalf("expected error for negative session id")
	}
}

func TestVerify(t *testing.T) {
	c := New("secret")
	tok, _ := c.Generate("650610123", 42, "CHECKIN", 7)
	if !c.Verify(tok, "650610123", 42, "CHECKIN", 7) {
		t.Fatalf("expected valid token to verify")
	}
	if c.Verify(tok, "650610123", 42, "OTHERWORD", 7) {
		t.Fatalf("expected keyword mismatch to fail")
	}
	if c.Verify(tok, "650610123", 42, "CHECKIN", 8) {
		t.Fatalf("expected session mismatch to fail")
	}
	if c.Verify("", "650610123", 42, "CHECKIN", 7) {
		t.Fatalf("expected empty token to fail")
	}
	other := New("other-secret")
	if other.Verify(tok, "650610123", 42, "CHECKIN", 7) {
		t.Fatalf("expected different secret to fail")
	}
}
