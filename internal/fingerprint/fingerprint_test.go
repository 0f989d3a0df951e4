package fingerprint

import "testing"

func TestHash(t *testing.T) {
	// Known SHA-256 vector.
	got := Hash("abc")
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Errorf("Hash(\"abc\") = %s, want %s", got, want)
	}

	if len(Hash("")) != Size {
		t.Errorf("fingerprint length = %d, want %d", len(Hash("")), Size)
	}

	if Hash("a") == Hash("b") {
		t.Error("distinct inputs must not collide")
	}
}

func TestHashTrimmed(t *testing.T) {
	addr := "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"
	if HashTrimmed("  "+addr+"\n") != Hash(addr) {
		t.Error("trimmed hash must match the hash of the trimmed content")
	}
	if HashTrimmed("a b") != Hash("a b") {
		t.Error("interior whitespace must be preserved")
	}
}

func TestEqual(t *testing.T) {
	a := Hash("x")
	b := Hash("y")

	if !Equal(a, a) {
		t.Error("identical fingerprints must compare equal")
	}
	if Equal(a, b) {
		t.Error("distinct fingerprints must not compare equal")
	}
	if Equal("", "") {
		t.Error("empty fingerprints never match, even each other")
	}
	if Equal("", a) || Equal(a, "") {
		t.Error("empty fingerprint never matches a real one")
	}
}
