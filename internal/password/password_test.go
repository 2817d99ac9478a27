package password_test

import (
	"strings"
	"testing"

	"vn.io.arda/idbridge/internal/password"
)

func TestGenerateVerifyRoundTrip(t *testing.T) {
	for _, alg := range []string{"SHA", "SHA1", "SHA-256", "SHA512", "MD5", ""} {
		stored, err := password.Generate("hunter2", alg)
		if err != nil {
			t.Fatalf("Generate(%q): %v", alg, err)
		}
		if !strings.HasPrefix(stored, "{") || !strings.Contains(stored, "$") {
			t.Fatalf("Generate(%q) produced unexpected format: %s", alg, stored)
		}
		if !password.Verify("hunter2", stored) {
			t.Fatalf("Verify failed for freshly generated %q digest", alg)
		}
		if password.Verify("wrong", stored) {
			t.Fatalf("Verify accepted the wrong password for %q", alg)
		}
	}
}

func TestVerifyKnownVector(t *testing.T) {
	// SHA-1("hunter2" + "salt") base64-encoded.
	digest, err := password.Hash("hunter2", "salt", "SHA")
	if err != nil {
		t.Fatal(err)
	}
	stored := "{SHA}salt$" + digest
	if !password.Verify("hunter2", stored) {
		t.Fatal("known vector failed to verify")
	}
}

func TestVerifyUnsaltedFormat(t *testing.T) {
	digest, err := password.Hash("secret", "", "SHA-256")
	if err != nil {
		t.Fatal(err)
	}
	if !password.Verify("secret", "{SHA256}"+digest) {
		t.Fatal("unsalted format failed to verify")
	}
	if password.Verify("other", "{SHA256}"+digest) {
		t.Fatal("unsalted format verified the wrong password")
	}
}

func TestVerifyLegacyPlaintext(t *testing.T) {
	if !password.Verify("demo", "demo") {
		t.Fatal("legacy plaintext equality failed")
	}
	if password.Verify("demo", "other") {
		t.Fatal("legacy plaintext accepted a mismatch")
	}
}

func TestVerifyMalformedStoredValues(t *testing.T) {
	cases := []string{
		"",
		"{SHA}",
		"{UNKNOWNALG}salt$notarealdigest",
		"{SHA}$",
		"{",
	}
	for _, stored := range cases {
		if password.Verify("anything", stored) {
			t.Fatalf("Verify(%q) = true, want false", stored)
		}
	}
}

func TestUnknownAlgorithmFallsBackToSHA1(t *testing.T) {
	// An unrecognized name must hash as SHA-1 so a stored SHA-1 digest
	// tagged with a bogus algorithm still verifies.
	sha1Digest, err := password.Hash("pw", "s", "SHA-1")
	if err != nil {
		t.Fatal(err)
	}
	if !password.Verify("pw", "{WHIRLPOOL}s$"+sha1Digest) {
		t.Fatal("unknown algorithm did not fall back to SHA-1")
	}
}

func TestGenerateUnguessableRejectsEmptyPassword(t *testing.T) {
	stored, err := password.GenerateUnguessable("")
	if err != nil {
		t.Fatalf("GenerateUnguessable: %v", err)
	}
	// A provisioned account's seed credential must not validate against
	// an empty or trivially guessed password.
	if password.Verify("", stored) {
		t.Fatalf("empty password verifies against seed credential %s", stored)
	}
	for _, guess := range []string{" ", "password", "changeme"} {
		if password.Verify(guess, stored) {
			t.Fatalf("guess %q verifies against seed credential", guess)
		}
	}
}

func TestSupported(t *testing.T) {
	for _, alg := range []string{"SHA", "sha256", "MD5", "bogus"} {
		// Every name is supported because normalization never fails.
		if !password.Supported(alg) {
			t.Fatalf("Supported(%q) = false", alg)
		}
	}
}
