package classify

import "github.com/btcsuite/btcd/txscript"

// instruction is one opcode or push-data element of a disassembled
// script, mirroring rust-bitcoin's Instruction enum closely enough to
// keep the classification rules below a direct transliteration of the
// reference implementation.
type instruction struct {
	opcode byte
	data   []byte
	isPush bool
}

// stringify renders an instruction the way extra_data expects: the
// canonical opcode name for a plain opcode, or "PUSH(n bytes)" for a
// data push, regardless of which push opcode encoded it.
func (i instruction) stringify() string {
	if i.isPush {
		return pushDesc(len(i.data))
	}
	return opcodeName(i.opcode)
}

func pushDesc(n int) string {
	return fmtPush(n)
}

func fmtPush(n int) string {
	return "PUSH(" + itoa(n) + " bytes)"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// parseInstructions walks script with the standard btcsuite script
// tokenizer, collecting the opcode/push-data sequence. A parse error
// (malformed push length, etc.) yields whatever instructions were
// successfully read before the error, matching the reference decoder's
// instructions().filter_map(Result::ok) behavior of silently dropping
// the unparsable tail.
func parseInstructions(script []byte) []instruction {
	var out []instruction
	tok := txscript.MakeScriptTokenizer(0, script)
	for tok.Next() {
		op := tok.Opcode()
		data := tok.Data()
		out = append(out, instruction{
			opcode: op,
			data:   data,
			isPush: isPushOpcode(op),
		})
	}
	return out
}

// isPushOpcode reports whether op is one of the data-push opcodes
// (OP_DATA_1 through OP_PUSHDATA4). OP_0 and the OP_1NEGATE/OP_1..OP_16
// small-integer pushes carry no Data() and behave as plain opcodes for
// classification purposes.
func isPushOpcode(op byte) bool {
	return op < txscript.OP_1NEGATE && op != txscript.OP_0
}
