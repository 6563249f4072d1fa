package fingerprint

import "testing"

func TestDeriveDeterministic(t *testing.T) {
	a := Derive("Mozilla/5.0", "en-US,en;q=0.9", "203.0.113.7")
	b := Derive("Mozilla/5.0", "en-US,en;q=0.9", "203.0.113.7")
	if a != b {
		t.Fatalf("same inputs produced different fingerprints: %q vs %q", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}

func TestDeriveDistinguishesAttributes(t *testing.T) {
	base := Derive("Mozilla/5.0", "en-US", "203.0.113.7")

	if Derive("curl/8.0", "en-US", "203.0.113.7") == base {
		t.Fatal("user agent change did not change fingerprint")
	}
	if Derive("Mozilla/5.0", "de-DE", "203.0.113.7") == base {
		t.Fatal("language change did not change fingerprint")
	}
	if Derive("Mozilla/5.0", "en-US", "198.51.100.1") == base {
		t.Fatal("ip change did not change fingerprint")
	}
}

func TestDeriveSeparatorPreventsBoundaryCollisions(t *testing.T) {
	// "ab"+"c" must not hash like "a"+"bc".
	if Derive("ab", "c", "") == Derive("a", "bc", "") {
		t.Fatal("attribute boundary collision")
	}
}

func TestDeriveMissingAttributes(t *testing.T) {
	got := Derive("", "", "")
	if got == "" {
		t.Fatal("empty attributes must still produce a fingerprint")
	}
	if got != Derive("", "", "") {
		t.Fatal("empty-attribute fingerprint not stable")
	}
}
