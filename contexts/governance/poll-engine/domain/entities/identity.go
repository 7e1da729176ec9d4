package entities

import "github.com/mr-tron/base58"

// Identity is a ledger account key in base58 text form. The dispatcher
// rejects callers that do not decode; encoding helpers exist for callers
// that hold raw 32-byte keys.
type Identity string

func IdentityFromBytes(raw []byte) Identity {
	return Identity(base58.Encode(raw))
}

func (id Identity) Bytes() ([]byte, error) {
	return base58.Decode(string(id))
}

func (id Identity) IsZero() bool {
	return id == ""
}
