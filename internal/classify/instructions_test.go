package classify

import "testing"

func TestInstructionStringifyPush(t *testing.T) {
	in := instruction{isPush: true, data: make([]byte, 20)}
	if got := in.stringify(); got != "PUSH(20 bytes)" {
		t.Fatalf("stringify = %q, want PUSH(20 bytes)", got)
	}
}

func TestInstructionStringifySingleBytePush(t *testing.T) {
	in := instruction{isPush: true, data: make([]byte, 1)}
	if got := in.stringify(); got != "PUSH(1 bytes)" {
		t.Fatalf("stringify = %q, want PUSH(1 bytes)", got)
	}
}

func TestInstructionStringifyOpcode(t *testing.T) {
	in := instruction{isPush: false, opcode: 0x76} // OP_DUP
	if got := in.stringify(); got != "OP_DUP" {
		t.Fatalf("stringify = %q, want OP_DUP", got)
	}
}

func TestParseInstructionsDropsMalformedTail(t *testing.T) {
	// A push opcode claiming more bytes than are present in the script.
	script := []byte{0x4c, 0x05, 0x01, 0x02} // OP_PUSHDATA1 len=5, only 2 bytes follow
	ins := parseInstructions(script)
	if len(ins) != 0 {
		t.Fatalf("expected no successfully parsed instructions, got %d", len(ins))
	}
}

func TestSmallIntFromOpcode(t *testing.T) {
	n, ok := smallIntFromOpcode(0x52) // OP_2
	if !ok || n != 2 {
		t.Fatalf("smallIntFromOpcode(OP_2) = (%d, %v), want (2, true)", n, ok)
	}
	if _, ok := smallIntFromOpcode(0x76); ok { // OP_DUP is not a small-int push
		t.Fatal("expected ok=false for OP_DUP")
	}
}
