// Package crypto provides the ballot cipher and proof verifier used by
// private and encrypted polls.
package crypto

import (
	"context"
	"crypto/sha256"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"

	"plebiscite/contexts/governance/poll-engine/domain/entities"
	domainerrors "plebiscite/contexts/governance/poll-engine/domain/errors"
	"plebiscite/contexts/governance/poll-engine/ports"
)

// BallotCipher opens encrypted ballots with ChaCha20-Poly1305. The poll's
// key commitment is the SHA-256 digest of the reveal key, so the key never
// appears on chain before the reveal.
type BallotCipher struct{}

func (BallotCipher) Commitment(key []byte) []byte {
	digest := sha256.Sum256(key)
	return digest[:]
}

func (BallotCipher) Open(key, nonce, ciphertext []byte) ([]byte, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, errors.New("reveal key must be 32 bytes")
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, errors.New("nonce has wrong length")
	}
	return aead.Open(nil, nonce, ciphertext, nil)
}

// Seal encrypts a plaintext ballot. The engine itself never seals; tests and
// client tooling do.
func (BallotCipher) Seal(key, nonce, plaintext []byte) ([]byte, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, errors.New("reveal key must be 32 bytes")
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, errors.New("nonce has wrong length")
	}
	return aead.Seal(nil, nonce, plaintext, nil), nil
}

// ProofVerifier performs a structural check on ballot proofs. Real proof
// systems plug in behind the same port.
type ProofVerifier struct{}

func (ProofVerifier) VerifyBallotProof(_ context.Context, _ entities.Poll, _ entities.Identity, proof []byte) error {
	if len(proof) == 0 {
		return domainerrors.ErrInvalidZkProof
	}
	return nil
}

var _ ports.BallotCipher = BallotCipher{}
var _ ports.ProofVerifier = ProofVerifier{}
