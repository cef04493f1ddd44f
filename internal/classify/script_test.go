package classify

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/txscript"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex literal %q: %v", s, err)
	}
	return b
}

func TestClassifyP2PKH(t *testing.T) {
	// scriptPubKey for the well-known genesis coinbase output address
	// 1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa.
	script := mustHex(t, "76a91462e907b15cbf27d5425399ebf6f0fb50ebb88f1888ac")

	rec := ClassifyOutputScript(script)
	if rec == nil {
		t.Fatal("expected a record, got nil")
	}
	if rec.ScriptType != "p2pkh" {
		t.Fatalf("script type = %q, want p2pkh", rec.ScriptType)
	}
	if rec.Address != "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa" {
		t.Fatalf("address = %q, want 1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", rec.Address)
	}
}

func TestClassifyP2PKUncompressed(t *testing.T) {
	pubkey := make([]byte, 65)
	pubkey[0] = 0x04
	for i := 1; i < 65; i++ {
		pubkey[i] = byte(i)
	}

	var script []byte
	script = append(script, 0x41) // push 65 bytes
	script = append(script, pubkey...)
	script = append(script, byte(txscript.OP_CHECKSIG))

	rec := ClassifyOutputScript(script)
	if rec == nil {
		t.Fatal("expected a record, got nil")
	}
	if rec.ScriptType != "p2pk" {
		t.Fatalf("script type = %q, want p2pk", rec.ScriptType)
	}
	if rec.Address != hex.EncodeToString(pubkey) {
		t.Fatalf("address = %q, want hex of pubkey", rec.Address)
	}
	if !strings.Contains(string(rec.ExtraData), "uncompressed") {
		t.Fatalf("extra_data = %s, want pubkey_format=uncompressed", rec.ExtraData)
	}
}

func TestClassifyP2WPKH(t *testing.T) {
	program := mustHex(t, "751e76e8199196d454941c45d1b3a323f1433bd6")

	var script []byte
	script = append(script, byte(txscript.OP_0))
	script = append(script, 0x14) // push 20 bytes
	script = append(script, program...)

	rec := ClassifyOutputScript(script)
	if rec == nil {
		t.Fatal("expected a record, got nil")
	}
	if rec.ScriptType != "p2wpkh" {
		t.Fatalf("script type = %q, want p2wpkh", rec.ScriptType)
	}
	if rec.Address != "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4" {
		t.Fatalf("address = %q, want bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4", rec.Address)
	}
}

func TestClassifyP2TR(t *testing.T) {
	program := mustHex(t, "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798")

	var script []byte
	script = append(script, byte(txscript.OP_1))
	script = append(script, 0x20) // push 32 bytes
	script = append(script, program...)

	rec := ClassifyOutputScript(script)
	if rec == nil {
		t.Fatal("expected a record, got nil")
	}
	if rec.ScriptType != "p2tr" {
		t.Fatalf("script type = %q, want p2tr", rec.ScriptType)
	}
	if !strings.HasPrefix(rec.Address, "bc1p") {
		t.Fatalf("address = %q, want bech32m bc1p... address", rec.Address)
	}
}

func TestClassifyP2MS2of3(t *testing.T) {
	pk1 := make([]byte, 33)
	pk1[0] = 0x02
	pk2 := make([]byte, 33)
	pk2[0] = 0x03
	pk3 := make([]byte, 33)
	pk3[0] = 0x02
	pk3[32] = 0x01

	var script []byte
	script = append(script, byte(txscript.OP_2))
	for _, pk := range [][]byte{pk1, pk2, pk3} {
		script = append(script, 0x21) // push 33 bytes
		script = append(script, pk...)
	}
	script = append(script, byte(txscript.OP_3))
	script = append(script, byte(txscript.OP_CHECKMULTISIG))

	rec := ClassifyOutputScript(script)
	if rec == nil {
		t.Fatal("expected a record, got nil")
	}
	if rec.ScriptType != "p2ms" {
		t.Fatalf("script type = %q, want p2ms", rec.ScriptType)
	}
	if !strings.Contains(string(rec.ExtraData), `"m":2`) || !strings.Contains(string(rec.ExtraData), `"n":3`) {
		t.Fatalf("extra_data = %s, want m=2 n=3", rec.ExtraData)
	}
}

func TestClassifyEmptyScriptYieldsNil(t *testing.T) {
	if rec := ClassifyOutputScript(nil); rec != nil {
		t.Fatalf("expected nil for empty script, got %+v", rec)
	}
}

func TestClassifyUnknownFallbackHashesRawScript(t *testing.T) {
	// OP_RETURN data carriers have no recognized shape and no 20-byte
	// push, so they fall through to the terminal "unknown" rule.
	script := mustHex(t, "6a0b68656c6c6f20776f726c64")

	rec := ClassifyOutputScript(script)
	if rec == nil {
		t.Fatal("expected a record, got nil")
	}
	if rec.ScriptType != "unknown" {
		t.Fatalf("script type = %q, want unknown", rec.ScriptType)
	}
}

func TestClassifyHash160FoundRecordsPosition(t *testing.T) {
	hash := mustHex(t, "89abcdefabbaabbaabbaabbaabbaabbaabbaabba")

	// OP_DROP before an otherwise-unmatched 20-byte push: not P2PKH,
	// not P2SH, not P2MS — falls to the generic hash160-found rule.
	var script []byte
	script = append(script, byte(txscript.OP_DROP))
	script = append(script, 0x14)
	script = append(script, hash...)
	script = append(script, byte(txscript.OP_DROP))

	rec := ClassifyOutputScript(script)
	if rec == nil {
		t.Fatal("expected a record, got nil")
	}
	if rec.ScriptType != "non-standard" {
		t.Fatalf("script type = %q, want non-standard", rec.ScriptType)
	}
	if !strings.Contains(string(rec.ExtraData), `"hash_position":1`) {
		t.Fatalf("extra_data = %s, want hash_position:1", rec.ExtraData)
	}
}
