// Package siwe renders and parses the sign-in challenge text a wallet owner
// signs. Messages are EIP-4361 (Sign-In with Ethereum) so wallets display
// them as a sign-in request.
package siwe

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	siwego "github.com/spruceid/siwe-go"
	"github.com/wubuku/UniAuth/core"
)

const (
	DefaultStatement = "By signing, you agree to authenticate with your wallet."
	DefaultVersion   = "1"

	// TimeLayout is RFC 3339 in UTC with fixed millisecond precision, so a
	// rendered timestamp always parses back to the same instant
	TimeLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Message holds the fields embedded in a challenge text
type Message struct {
	Domain    string
	Address   string // lowercase
	Statement string
	URI       string
	Version   string
	ChainID   int64
	Nonce     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Composer renders challenge texts for one application domain
type Composer struct {
	Domain    string
	URI       string
	Statement string // omitted from the text when empty
	Version   string
}

// NewComposer creates a composer, filling in defaults for empty values
func NewComposer(domain, uri, statement string) *Composer {
	if uri == "" {
		uri = "https://" + domain
	}
	if statement == "" {
		statement = DefaultStatement
	}
	return &Composer{
		Domain:    domain,
		URI:       uri,
		Statement: statement,
		Version:   DefaultVersion,
	}
}

// Render produces the challenge text. The output depends only on the
// arguments and the composer settings. The address is written in its
// EIP-55 checksummed form.
func (c *Composer) Render(address string, chainID int64, nonce string, issuedAt, expiresAt time.Time) (string, error) {
	if !core.IsValidAddress(address) {
		return "", core.ErrInvalidAddress
	}

	options := map[string]interface{}{
		"chainId":        int(chainID),
		"issuedAt":       issuedAt.UTC().Format(TimeLayout),
		"expirationTime": expiresAt.UTC().Format(TimeLayout),
	}
	if c.Statement != "" {
		options["statement"] = c.Statement
	}

	msg, err := siwego.InitMessage(c.Domain, common.HexToAddress(address).Hex(), c.URI, nonce, options)
	if err != nil {
		return "", fmt.Errorf("rendering challenge: %w", err)
	}
	return msg.String(), nil
}

// Check verifies a parsed message was produced for this composer's domain
// and version and embeds the expected address and nonce
func (c *Composer) Check(msg Message, address, nonce string) error {
	switch {
	case msg.Domain != c.Domain:
		return fmt.Errorf("unexpected domain %q: %w", msg.Domain, core.ErrMalformedMessage)
	case msg.Version != c.Version:
		return fmt.Errorf("unexpected version %q: %w", msg.Version, core.ErrMalformedMessage)
	case !core.SameAddress(msg.Address, address):
		return fmt.Errorf("address mismatch: %w", core.ErrMalformedMessage)
	case msg.Nonce != nonce:
		return fmt.Errorf("nonce mismatch: %w", core.ErrMalformedMessage)
	}
	return nil
}

// ValidateShape reports whether message is a well-formed sign-in message
func ValidateShape(message string) bool {
	_, err := Parse(message)
	return err == nil
}

// Parse extracts the fields of a challenge text. Challenges always carry an
// expiration time, so a message without one is malformed.
func Parse(text string) (Message, error) {
	m, err := siwego.ParseMessage(text)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", core.ErrMalformedMessage, err)
	}

	uri := m.GetURI()
	msg := Message{
		Domain:  m.GetDomain(),
		Address: strings.ToLower(m.GetAddress().Hex()),
		URI:     uri.String(),
		Version: m.GetVersion(),
		ChainID: int64(m.GetChainID()),
		Nonce:   m.GetNonce(),
	}
	if statement := m.GetStatement(); statement != nil {
		msg.Statement = *statement
	}

	if msg.IssuedAt, err = parseTime(m.GetIssuedAt()); err != nil {
		return Message{}, fmt.Errorf("issued at: %w", err)
	}

	expires := m.GetExpirationTime()
	if expires == nil {
		return Message{}, fmt.Errorf("missing expiration time: %w", core.ErrMalformedMessage)
	}
	if msg.ExpiresAt, err = parseTime(*expires); err != nil {
		return Message{}, fmt.Errorf("expiration time: %w", err)
	}

	return msg, nil
}

func parseTime(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, core.ErrMalformedMessage
	}
	return t, nil
}
