package auth

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/teamchat/inbox/server/store/types"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func resetTokens(t *testing.T, lifetime time.Duration) {
	t.Helper()
	hmacSalt = nil
	if err := TokenInit(testKey, lifetime); err != nil {
		t.Fatal("TokenInit failed:", err)
	}
}

func TestTokenInit(t *testing.T) {
	hmacSalt = nil
	if err := TokenInit([]byte("too short"), time.Hour); err == nil {
		t.Error("Expected failure on a short key")
	}
	if err := TokenInit(testKey, 0); err == nil {
		t.Error("Expected failure on zero lifetime")
	}
	if err := TokenInit(testKey, time.Hour); err != nil {
		t.Error("Unexpected failure:", err)
	}
	if err := TokenInit(testKey, time.Hour); err == nil {
		t.Error("Expected failure on double initialization")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	resetTokens(t, time.Hour)

	rec := &Rec{Uid: types.Uid(12345), AuthLevel: LevelAgent}
	token, err := GenSecret(rec)
	if err != nil {
		t.Fatal("GenSecret failed:", err)
	}

	got, err := AuthenticateToken(token)
	if err != nil {
		t.Fatal("AuthenticateToken failed:", err)
	}
	if got.Uid != rec.Uid {
		t.Errorf("Uid: expected %d, got %d", rec.Uid, got.Uid)
	}
	if got.AuthLevel != LevelAgent {
		t.Errorf("AuthLevel: expected %s, got %s", LevelAgent, got.AuthLevel)
	}
}

func TestTokenTampered(t *testing.T) {
	resetTokens(t, time.Hour)

	token, err := GenSecret(&Rec{Uid: types.Uid(12345), AuthLevel: LevelAdmin})
	if err != nil {
		t.Fatal("GenSecret failed:", err)
	}

	data, _ := base64.URLEncoding.DecodeString(string(token))

	// Flip the embedded uid: the signature no longer matches.
	data[0] ^= 0xff
	tampered := []byte(base64.URLEncoding.EncodeToString(data))
	if _, err = AuthenticateToken(tampered); err != types.ErrFailed {
		t.Error("Tampered uid: expected ErrFailed, got", err)
	}
	data[0] ^= 0xff

	// Promote the access level.
	data[8] = byte(LevelAdmin) + 10
	tampered = []byte(base64.URLEncoding.EncodeToString(data))
	if _, err = AuthenticateToken(tampered); err == nil {
		t.Error("Tampered level: expected an error")
	}

	if _, err = AuthenticateToken([]byte("bogus")); err != types.ErrMalformed {
		t.Error("Garbage token: expected ErrMalformed, got", err)
	}
	if _, err = AuthenticateToken(nil); err != types.ErrMalformed {
		t.Error("Empty token: expected ErrMalformed, got", err)
	}
}

func TestTokenExpired(t *testing.T) {
	resetTokens(t, time.Second)

	token, err := GenSecret(&Rec{Uid: types.Uid(12345), AuthLevel: LevelAgent})
	if err != nil {
		t.Fatal("GenSecret failed:", err)
	}

	time.Sleep(1100 * time.Millisecond)

	if _, err = AuthenticateToken(token); err != types.ErrFailed {
		t.Error("Expired token: expected ErrFailed, got", err)
	}
}
