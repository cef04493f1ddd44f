// Package classify is a pure, stateless, deterministic decoder from a
// Bitcoin output or input script to a canonical address record. It
// performs no I/O and holds no state between calls.
package classify

import (
	"encoding/hex"
	"encoding/json"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/btcsuite/btcd/txscript"
)

// mainnet version bytes for Base58Check addresses.
const (
	versionP2PKH = 0x00
	versionP2SH  = 0x05
)

const bech32HRP = "bc"

// AddressRecord is the result of classifying one output script: a
// canonical address string, the script-type tag and optional JSON side
// data, as described in the classifier's component contract.
type AddressRecord struct {
	Address    string
	ScriptType string
	ExtraData  json.RawMessage
}

// ClassifyOutputScript applies the classifier's nine rules, in strict
// order, to script and returns the matching AddressRecord, or nil if the
// script is empty or not even its first instruction can be parsed, in
// which case it contributes no address.
func ClassifyOutputScript(script []byte) *AddressRecord {
	ins := parseInstructions(script)

	if rec := classifyP2PKH(ins); rec != nil {
		return rec
	}
	if rec := classifyP2SH(ins); rec != nil {
		return rec
	}
	if rec := classifyP2PK(ins); rec != nil {
		return rec
	}
	if rec := classifyWitnessProgram(ins); rec != nil {
		return rec
	}
	if rec := classifyP2MS(script, ins); rec != nil {
		return rec
	}
	if rec := classifyP2PKHPlus(ins); rec != nil {
		return rec
	}
	if rec := classifyHash160Found(ins); rec != nil {
		return rec
	}
	if rec := classifyUnknown(script, ins); rec != nil {
		return rec
	}
	return nil
}

// classifyP2PKH matches OP_DUP OP_HASH160 PUSH(20) OP_EQUALVERIFY
// OP_CHECKSIG exactly (5 instructions; the non-standard "plus" variant
// with trailing opcodes is handled separately, later in rule order).
func classifyP2PKH(ins []instruction) *AddressRecord {
	if len(ins) != 5 {
		return nil
	}
	if !isP2PKHPrefix(ins) {
		return nil
	}
	hash := ins[2].data
	return &AddressRecord{
		Address:    encodeBase58Check(versionP2PKH, hash),
		ScriptType: "p2pkh",
	}
}

func isP2PKHPrefix(ins []instruction) bool {
	return len(ins) >= 5 &&
		!ins[0].isPush && ins[0].opcode == txscript.OP_DUP &&
		!ins[1].isPush && ins[1].opcode == txscript.OP_HASH160 &&
		ins[2].isPush && len(ins[2].data) == 20 &&
		!ins[3].isPush && ins[3].opcode == txscript.OP_EQUALVERIFY &&
		!ins[4].isPush && ins[4].opcode == txscript.OP_CHECKSIG
}

// classifyP2SH matches OP_HASH160 PUSH(20) OP_EQUAL exactly.
func classifyP2SH(ins []instruction) *AddressRecord {
	if len(ins) != 3 {
		return nil
	}
	if ins[0].isPush || ins[0].opcode != txscript.OP_HASH160 {
		return nil
	}
	if !ins[1].isPush || len(ins[1].data) != 20 {
		return nil
	}
	if ins[2].isPush || ins[2].opcode != txscript.OP_EQUAL {
		return nil
	}
	return &AddressRecord{
		Address:    encodeBase58Check(versionP2SH, ins[1].data),
		ScriptType: "p2sh",
	}
}

// classifyP2PK matches exactly two instructions: PUSH(33|65) OP_CHECKSIG.
func classifyP2PK(ins []instruction) *AddressRecord {
	if len(ins) != 2 {
		return nil
	}
	if !ins[0].isPush || (len(ins[0].data) != 33 && len(ins[0].data) != 65) {
		return nil
	}
	if ins[1].isPush || ins[1].opcode != txscript.OP_CHECKSIG {
		return nil
	}

	format := "compressed"
	if len(ins[0].data) == 65 {
		format = "uncompressed"
	}
	extra, _ := json.Marshal(map[string]string{"pubkey_format": format})
	return &AddressRecord{
		Address:    hex.EncodeToString(ins[0].data),
		ScriptType: "p2pk",
		ExtraData:  extra,
	}
}

// classifyWitnessProgram matches P2WPKH, P2WSH and P2TR, the three
// witness-program script shapes this core recognizes.
func classifyWitnessProgram(ins []instruction) *AddressRecord {
	if len(ins) != 2 {
		return nil
	}
	program, ok := ins[1].data, ins[1].isPush
	if !ok {
		return nil
	}

	switch {
	case !ins[0].isPush && ins[0].opcode == txscript.OP_0 && len(program) == 20:
		addr, err := encodeSegwitAddress(0, program)
		if err != nil {
			return nil
		}
		return &AddressRecord{Address: addr, ScriptType: "p2wpkh"}

	case !ins[0].isPush && ins[0].opcode == txscript.OP_0 && len(program) == 32:
		addr, err := encodeSegwitAddress(0, program)
		if err != nil {
			return nil
		}
		return &AddressRecord{Address: addr, ScriptType: "p2wsh"}

	case !ins[0].isPush && ins[0].opcode == txscript.OP_1 && len(program) == 32:
		addr, err := encodeSegwitAddress(1, program)
		if err != nil {
			return nil
		}
		return &AddressRecord{Address: addr, ScriptType: "p2tr"}
	}
	return nil
}

// classifyP2MS matches standard bare multisig: <m> <pubkey>... <n>
// OP_CHECKMULTISIG, with m <= n <= 3 and exactly n+3 instructions.
func classifyP2MS(script []byte, ins []instruction) *AddressRecord {
	if len(ins) < 4 {
		return nil
	}
	last := ins[len(ins)-1]
	if last.isPush || last.opcode != txscript.OP_CHECKMULTISIG {
		return nil
	}

	first := ins[0]
	nOp := ins[len(ins)-2]
	if first.isPush || nOp.isPush {
		return nil
	}

	m, mOk := smallIntFromOpcode(first.opcode)
	n, nOk := smallIntFromOpcode(nOp.opcode)
	if !mOk || !nOk || m < 1 || m > 3 || n < 1 || n > 3 {
		return nil
	}
	if m > n || len(ins) != n+3 {
		return nil
	}

	scriptHash := btcutil.Hash160(script)
	extra, _ := json.Marshal(map[string]int{"m": m, "n": n})
	return &AddressRecord{
		Address:    encodeBase58Check(versionP2SH, scriptHash),
		ScriptType: "p2ms",
		ExtraData:  extra,
	}
}

// classifyP2PKHPlus matches the P2PKH prefix followed by one or more
// additional opcodes — a non-standard variant still anchored on a
// recoverable pubkey hash.
func classifyP2PKHPlus(ins []instruction) *AddressRecord {
	if len(ins) <= 5 {
		return nil
	}
	if !isP2PKHPrefix(ins) {
		return nil
	}

	hash := ins[2].data
	extraOps := make([]string, 0, len(ins)-5)
	for _, in := range ins[5:] {
		extraOps = append(extraOps, in.stringify())
	}
	extra, _ := json.Marshal(map[string]any{
		"pattern":   "p2pkh-plus",
		"extra_ops": extraOps,
	})
	return &AddressRecord{
		Address:    encodeBase58Check(versionP2PKH, hash),
		ScriptType: "non-standard",
		ExtraData:  extra,
	}
}

// classifyHash160Found is the fallback for any script containing a
// 20-byte push not otherwise matched — the first such push is treated
// as a pubkey hash.
func classifyHash160Found(ins []instruction) *AddressRecord {
	for i, in := range ins {
		if !in.isPush || len(in.data) != 20 {
			continue
		}
		ops := stringifyAll(ins)
		extra, _ := json.Marshal(map[string]any{
			"pattern":       "hash160-found",
			"hash_position": i,
			"script_ops":    ops,
		})
		return &AddressRecord{
			Address:    encodeBase58Check(versionP2PKH, in.data),
			ScriptType: "non-standard",
			ExtraData:  extra,
		}
	}
	return nil
}

// classifyUnknown is the terminal fallback: any non-empty script with at
// least one parsable instruction gets a synthetic address from the hash
// of its raw bytes.
func classifyUnknown(script []byte, ins []instruction) *AddressRecord {
	if len(script) == 0 || len(ins) == 0 {
		return nil
	}
	scriptHash := btcutil.Hash160(script)
	extra, _ := json.Marshal(map[string]any{"script_pattern": stringifyAll(ins)})
	return &AddressRecord{
		Address:    encodeBase58Check(versionP2SH, scriptHash),
		ScriptType: "unknown",
		ExtraData:  extra,
	}
}

func stringifyAll(ins []instruction) []string {
	out := make([]string, len(ins))
	for i, in := range ins {
		out[i] = in.stringify()
	}
	return out
}

func encodeBase58Check(version byte, payload []byte) string {
	return base58.CheckEncode(payload, version)
}

// encodeSegwitAddress encodes a witness program as a Bech32 (version 0)
// or Bech32m (version >= 1) address with the given human-readable part.
func encodeSegwitAddress(version byte, program []byte) (string, error) {
	converted, err := bech32.ConvertBits(program, 8, 5, true)
	if err != nil {
		return "", err
	}
	data := make([]byte, 0, len(converted)+1)
	data = append(data, version)
	data = append(data, converted...)

	if version == 0 {
		return bech32.Encode(bech32HRP, data)
	}
	return bech32.EncodeM(bech32HRP, data)
}
