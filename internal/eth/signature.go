// Package eth recovers and verifies Ethereum personal_sign (EIP-191) signatures.
// Every function here is pure and safe for concurrent use.
package eth

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/wubuku/UniAuth/core"
)

// SignatureLength is the byte length of an R || S || V signature
const SignatureLength = crypto.SignatureLength

// HashPersonalMessage applies the EIP-191 "personal message" transform
// keccak256("\x19Ethereum Signed Message:\n" + len(msg) + msg)
func HashPersonalMessage(msg []byte) []byte {
	return accounts.TextHash(msg)
}

// DecodeSignature parses a 0x-prefixed 65 byte signature and normalizes
// its recovery id to 0 or 1. Wallets emit V as 27/28, libraries as 0/1.
func DecodeSignature(signature string) ([]byte, error) {
	if !strings.HasPrefix(signature, "0x") || len(signature) != 2+2*SignatureLength {
		return nil, core.ErrMalformedSignature
	}
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return nil, fmt.Errorf("failed to decode signature: %w", core.ErrMalformedSignature)
	}

	v := sig[crypto.RecoveryIDOffset]
	switch {
	case v == 0 || v == 1:
	case v == 27 || v == 28:
		sig[crypto.RecoveryIDOffset] = v - 27
	default:
		return nil, fmt.Errorf("invalid recovery id %d: %w", v, core.ErrMalformedSignature)
	}
	return sig, nil
}

// RecoverAddress returns the lowercase address that signed message
func RecoverAddress(message, signature string) (string, error) {
	sig, err := DecodeSignature(signature)
	if err != nil {
		return "", err
	}

	pub, err := crypto.SigToPub(HashPersonalMessage([]byte(message)), sig)
	if err != nil {
		return "", fmt.Errorf("failed to recover public key: %w", core.ErrMalformedSignature)
	}

	return strings.ToLower(crypto.PubkeyToAddress(*pub).Hex()), nil
}

// Verify checks that signature over message was produced by address.
// Addresses are compared case-insensitively.
func Verify(address, message, signature string) error {
	recovered, err := RecoverAddress(message, signature)
	if err != nil {
		return err
	}
	if !core.SameAddress(recovered, address) {
		return core.ErrSignatureMismatch
	}
	return nil
}

// SignPersonalMessage signs message the way a wallet's personal_sign does,
// returning a 0x-prefixed signature with V in {27, 28}
func SignPersonalMessage(key *ecdsa.PrivateKey, message string) (string, error) {
	sig, err := crypto.Sign(HashPersonalMessage([]byte(message)), key)
	if err != nil {
		return "", fmt.Errorf("failed to sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// AddressOf returns the lowercase address of a private key
func AddressOf(key *ecdsa.PrivateKey) string {
	return strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())
}
