package classify

import "testing"

func TestExtractPublicKeyFromScript(t *testing.T) {
	sig := make([]byte, 70)
	pubkey := make([]byte, 33)
	pubkey[0] = 0x03

	var script []byte
	script = append(script, byte(len(sig)))
	script = append(script, sig...)
	script = append(script, byte(len(pubkey)))
	script = append(script, pubkey...)

	got := ExtractPublicKeyFromScript(script)
	if len(got) != 33 {
		t.Fatalf("len(pubkey) = %d, want 33", len(got))
	}
	if got[0] != 0x03 {
		t.Fatalf("pubkey[0] = %x, want 0x03", got[0])
	}
}

func TestExtractPublicKeyFromScriptNoMatch(t *testing.T) {
	// A bare P2WPKH-spend scriptSig is empty — witness data isn't here.
	if got := ExtractPublicKeyFromScript(nil); got != nil {
		t.Fatalf("expected nil for empty scriptSig, got %x", got)
	}
}

func TestExtractPublicKeyFromScriptWrongPushCount(t *testing.T) {
	sig := make([]byte, 70)
	var script []byte
	script = append(script, byte(len(sig)))
	script = append(script, sig...)

	if got := ExtractPublicKeyFromScript(script); got != nil {
		t.Fatalf("expected nil for single-push scriptSig, got %x", got)
	}
}
