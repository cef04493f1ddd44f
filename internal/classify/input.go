package classify

// ExtractPublicKeyFromScript inspects an input's scriptSig for a
// revealed public key. If the scriptSig contains exactly two pushes and
// the second is 33 or 65 bytes, those bytes are returned. Witness-revealed
// pubkeys (SegWit, Taproot) are intentionally not decoded here — see the
// design notes on extending this with a witness-stack counterpart.
func ExtractPublicKeyFromScript(scriptSig []byte) []byte {
	ins := parseInstructions(scriptSig)
	if len(ins) != 2 {
		return nil
	}
	if !ins[0].isPush || !ins[1].isPush {
		return nil
	}
	if len(ins[1].data) != 33 && len(ins[1].data) != 65 {
		return nil
	}
	out := make([]byte, len(ins[1].data))
	copy(out, ins[1].data)
	return out
}
