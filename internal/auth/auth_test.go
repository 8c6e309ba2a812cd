package auth

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/bigkaa/librarium/internal/domain/model"
)

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	iss, err := NewIssuer(context.Background(), key, "librarium-test", time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer() error: %v", err)
	}
	return iss
}

func testUser() *model.User {
	return &model.User{
		ID:       "7f1c7a34-6a55-4d53-bb43-55b1c1a0d6a1",
		FullName: "Ada Lovelace",
		Email:    "ada@example.com",
		Role:     model.RoleAdmin,
	}
}

func TestIssueAndVerify(t *testing.T) {
	iss := newTestIssuer(t)

	token, exp, err := iss.Issue(testUser())
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if time.Until(exp) < 59*time.Minute {
		t.Errorf("expiry %v is not ~1h ahead", exp)
	}

	p, err := iss.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if p.UserID != testUser().ID || p.Role != model.RoleAdmin || p.Email != "ada@example.com" {
		t.Errorf("Verify() = %+v", p)
	}
}

func TestVerify_Rejects(t *testing.T) {
	iss := newTestIssuer(t)
	other := newTestIssuer(t)

	valid, _, _ := iss.Issue(testUser())
	foreign, _, _ := other.Issue(testUser())

	expiredIssuer := newTestIssuer(t)
	expiredIssuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, _ := expiredIssuer.Issue(testUser())
	expiredIssuer.now = time.Now

	hs := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "x", "iss": "librarium-test", "exp": time.Now().Add(time.Hour).Unix(), "role": "ADMIN",
	})
	hsToken, _ := hs.SignedString([]byte("secret"))

	tests := []struct {
		name   string
		issuer *Issuer
		token  string
	}{
		{"garbage", iss, "not-a-token"},
		{"signed by another key", iss, foreign},
		{"expired", expiredIssuer, expired},
		{"HS256", iss, hsToken},
		{"tampered", iss, valid[:len(valid)-2] + "xx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.issuer.Verify(context.Background(), tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify() = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestJWKS(t *testing.T) {
	iss := newTestIssuer(t)

	var doc struct {
		Keys []struct {
			Kty string `json:"kty"`
			Kid string `json:"kid"`
			Alg string `json:"alg"`
			D   string `json:"d"`
		} `json:"keys"`
	}
	if err := json.Unmarshal(iss.JWKS(), &doc); err != nil {
		t.Fatalf("JWKS() is not JSON: %v", err)
	}
	if len(doc.Keys) != 1 {
		t.Fatalf("JWKS() has %d keys, want 1", len(doc.Keys))
	}
	k := doc.Keys[0]
	if k.Kty != "RSA" || k.Alg != "RS256" || k.Kid != iss.kid {
		t.Errorf("JWK = %+v", k)
	}
	if k.D != "" {
		t.Error("JWKS() leaks the private exponent")
	}
}

func TestLoadPrivateKey(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()

	pkcs1 := filepath.Join(dir, "pkcs1.pem")
	os.WriteFile(pkcs1, pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}), 0o600)

	der, _ := x509.MarshalPKCS8PrivateKey(key)
	pkcs8 := filepath.Join(dir, "pkcs8.pem")
	os.WriteFile(pkcs8, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), 0o600)

	junk := filepath.Join(dir, "junk.pem")
	os.WriteFile(junk, []byte("hello"), 0o600)

	for _, p := range []string{pkcs1, pkcs8} {
		got, err := LoadPrivateKey(p)
		if err != nil {
			t.Fatalf("LoadPrivateKey(%s) error: %v", filepath.Base(p), err)
		}
		if !got.Equal(key) {
			t.Errorf("LoadPrivateKey(%s) returned a different key", filepath.Base(p))
		}
	}
	if _, err := LoadPrivateKey(junk); err == nil {
		t.Error("LoadPrivateKey(junk) returned no error")
	}
	if _, err := LoadPrivateKey(filepath.Join(dir, "missing.pem")); err == nil {
		t.Error("LoadPrivateKey(missing) returned no error")
	}
}

func TestPasswords(t *testing.T) {
	PasswordCost = bcrypt.MinCost
	t.Cleanup(func() { PasswordCost = bcrypt.DefaultCost })

	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}
	if err := CheckPassword(hash, "correct horse"); err != nil {
		t.Errorf("CheckPassword(correct) = %v", err)
	}
	if err := CheckPassword(hash, "battery staple"); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("CheckPassword(wrong) = %v, want ErrPasswordMismatch", err)
	}
}
