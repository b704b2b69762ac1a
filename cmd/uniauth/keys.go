package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"github.com/wubuku/UniAuth/internal/eth"
)

const pemBlockType = "EC PRIVATE KEY"

// loadSigningKey reads the P-256 session key, generating a fresh one when
// path is empty
func loadSigningKey(path string) (*ecdsa.PrivateKey, error) {
	if path == "" {
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session key: %w", err)
	}
	return parseSigningKey(raw)
}

func parseSigningKey(raw []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.New("session key is not PEM encoded")
	}

	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse session key: %w", err)
	}
	if key.Curve != elliptic.P256() {
		return nil, errors.New("session key must use the P-256 curve")
	}
	return key, nil
}

func encodeSigningKey(key *ecdsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemBlockType, Bytes: der}), nil
}

var keygenOut string

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a P-256 key for signing session tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return err
		}
		encoded, err := encodeSigningKey(key)
		if err != nil {
			return err
		}

		if keygenOut == "" {
			_, err = cmd.OutOrStdout().Write(encoded)
			return err
		}
		return os.WriteFile(keygenOut, encoded, 0o600)
	},
}

var signKeyHex string

// signCmd signs a challenge with a wallet key, for exercising the API by hand
var signCmd = &cobra.Command{
	Use:   "sign [message]",
	Short: "Sign a challenge message with a wallet private key",
	Long: `Sign a challenge as a wallet would with personal_sign. The message is
taken from the argument or, when absent, read from stdin.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(signKeyHex, "0x"))
		if err != nil {
			return fmt.Errorf("invalid wallet key: %w", err)
		}

		var message string
		if len(args) == 1 {
			message = args[0]
		} else {
			raw, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			message = string(raw)
		}

		signature, err := eth.SignPersonalMessage(key, message)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "address:   %s\n", eth.AddressOf(key))
		fmt.Fprintf(out, "signature: %s\n", signature)
		return nil
	},
}

func init() {
	keygenCmd.Flags().StringVarP(&keygenOut, "out", "o", "", "write the key to this file instead of stdout")

	signCmd.Flags().StringVar(&signKeyHex, "key", "", "hex encoded secp256k1 wallet key")
	_ = signCmd.MarkFlagRequired("key")
}
