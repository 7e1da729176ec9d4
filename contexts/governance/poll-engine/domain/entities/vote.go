package entities

// Vote is the single live ballot for (PollID, Voter). For delegated casts the
// voter is the delegator whose voting power was spent and DelegatedTo names
// the delegate that signed the instruction.
type Vote struct {
	PollID      uint64
	Voter       Identity
	OptionIndex uint8
	Timestamp   int64
	Weight      uint64
	DelegatedTo *Identity
	// Encrypted ballots carry the ciphertext and nonce verbatim; OptionIndex
	// is a decoy until reveal.
	EncryptedData []byte
	ZkProof       []byte
	Nonce         []byte
}

func (v Vote) IsEncrypted() bool {
	return len(v.EncryptedData) > 0
}
