package security

import (
	"strings"
	"testing"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, errHash := HashPassword("crystal-ball")
	if errHash != nil {
		t.Fatalf("hash: %v", errHash)
	}
	if hash == "crystal-ball" {
		t.Fatal("hash must not equal plaintext")
	}
	if !CheckPassword(hash, "crystal-ball") {
		t.Fatal("correct password rejected")
	}
	if CheckPassword(hash, "wrong") {
		t.Fatal("wrong password accepted")
	}
	if CheckPassword("", "crystal-ball") {
		t.Fatal("empty hash accepted")
	}
}

func TestGenerateRandomPassword(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 8; i++ {
		password, errGenerate := GenerateRandomPassword()
		if errGenerate != nil {
			t.Fatalf("generate: %v", errGenerate)
		}
		if len(password) != randomPasswordLength {
			t.Fatalf("expected %d chars, got %d (%q)", randomPasswordLength, len(password), password)
		}
		for _, r := range password {
			if !strings.ContainsRune(randomPasswordAlphabet, r) {
				t.Fatalf("character %q outside alphabet in %q", r, password)
			}
		}
		if seen[password] {
			t.Fatalf("duplicate password %q", password)
		}
		seen[password] = true
	}
}
