package auth

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenRoundTrip(t *testing.T) {
	Init("test-secret", []int64{99})

	token, err := GenerateToken(7)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	userID, admin, err := ParseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if userID != 7 {
		t.Fatalf("user id %d", userID)
	}
	if admin {
		t.Fatal("user 7 is not an admin")
	}
}

func TestTokenCarriesAdminClaim(t *testing.T) {
	Init("test-secret", []int64{99})

	token, err := GenerateToken(99)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	_, admin, err := ParseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !admin {
		t.Fatal("admin claim missing")
	}
}

func TestTokenWrongSecretRejected(t *testing.T) {
	Init("secret-one", nil)
	token, err := GenerateToken(7)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	Init("secret-two", nil)
	if _, _, err := ParseToken(token); err == nil {
		t.Fatal("token signed with another secret must be rejected")
	}
}

func TestTokenGarbageRejected(t *testing.T) {
	Init("test-secret", nil)
	if _, _, err := ParseToken("not.a.token"); err == nil {
		t.Fatal("expected an error")
	}
}

func TestTokenWrongSigningMethodRejected(t *testing.T) {
	Init("test-secret", nil)

	// alg=none style token must never pass
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"user_id": 7})
	signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, _, err := ParseToken(signed); err == nil {
		t.Fatal("unsigned token accepted")
	}
}

func TestIsAdmin(t *testing.T) {
	Init("test-secret", []int64{1, 2})
	if !IsAdmin(1) || !IsAdmin(2) {
		t.Fatal("configured admins not recognized")
	}
	if IsAdmin(3) {
		t.Fatal("unconfigured id treated as admin")
	}
}
