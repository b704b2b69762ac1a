package siwe

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wubuku/UniAuth/core"
)

const (
	testAddress = "0x71c7656ec7ab88b098defb751b7401b5f6d8976f"
	// EIP-55 form of testAddress
	testChecksummed = "0x71C7656EC7ab88b098defB751B7401B5f6d8976F"
	testNonce       = "0123456789abcdef0123456789abcdef"
)

func testTimes() (time.Time, time.Time) {
	issued := time.Date(2026, 10, 17, 9, 30, 0, 123_000_000, time.UTC)
	return issued, issued.Add(5 * time.Minute)
}

func render(t *testing.T, c *Composer, chainID int64, nonce string) string {
	t.Helper()
	issued, expires := testTimes()
	msg, err := c.Render(testAddress, chainID, nonce, issued, expires)
	require.NoError(t, err)
	return msg
}

func TestComposer_RenderContainsMarkers(t *testing.T) {
	msg := render(t, NewComposer("localhost", "", ""), 1, testNonce)

	assert.True(t, strings.HasPrefix(msg, "localhost wants you to sign in with your Ethereum account:\n"+testChecksummed+"\n"))
	assert.Contains(t, msg, DefaultStatement)
	assert.Contains(t, msg, "URI: https://localhost\n")
	assert.Contains(t, msg, "Version: 1\n")
	assert.Contains(t, msg, "Chain ID: 1\n")
	assert.Contains(t, msg, "Nonce: "+testNonce+"\n")
	assert.Contains(t, msg, "Issued At: 2026-10-17T09:30:00.123Z")
	assert.Contains(t, msg, "Expiration Time: 2026-10-17T09:35:00.123Z")
	assert.True(t, ValidateShape(msg))
}

func TestComposer_RenderDeterministic(t *testing.T) {
	c := NewComposer("app.example.com", "https://app.example.com/login", "Sign in to Example")
	issued, expires := testTimes()

	a, err := c.Render(testAddress, 137, testNonce, issued, expires)
	require.NoError(t, err)
	b, err := c.Render("0x"+strings.ToUpper(testAddress[2:]), 137, testNonce, issued.In(time.FixedZone("CET", 3600)), expires)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestComposer_RenderRejectsBadInput(t *testing.T) {
	c := NewComposer("localhost", "", "")
	issued, expires := testTimes()

	_, err := c.Render("0x1234", 1, testNonce, issued, expires)
	assert.ErrorIs(t, err, core.ErrInvalidAddress)

	_, err = c.Render(testAddress, 1, "", issued, expires)
	assert.Error(t, err)
}

func TestParse_RoundTrip(t *testing.T) {
	c := NewComposer("localhost", "", "")
	issued, expires := testTimes()

	parsed, err := Parse(render(t, c, 10, testNonce))
	require.NoError(t, err)

	assert.Equal(t, "localhost", parsed.Domain)
	assert.Equal(t, testAddress, parsed.Address)
	assert.Equal(t, DefaultStatement, parsed.Statement)
	assert.Equal(t, "https://localhost", parsed.URI)
	assert.Equal(t, "1", parsed.Version)
	assert.Equal(t, int64(10), parsed.ChainID)
	assert.Equal(t, testNonce, parsed.Nonce)
	assert.True(t, issued.Equal(parsed.IssuedAt))
	assert.True(t, expires.Equal(parsed.ExpiresAt))
	assert.NoError(t, c.Check(parsed, testAddress, testNonce))
}

func TestParse_WithoutStatement(t *testing.T) {
	c := &Composer{Domain: "localhost", URI: "https://localhost", Version: DefaultVersion}

	parsed, err := Parse(render(t, c, 1, testNonce))
	require.NoError(t, err)
	assert.Empty(t, parsed.Statement)
	assert.Equal(t, testNonce, parsed.Nonce)
}

func TestParse_Malformed(t *testing.T) {
	valid := render(t, NewComposer("localhost", "", ""), 1, testNonce)

	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"random text", "please sign this"},
		{"missing nonce", strings.Replace(valid, "Nonce: "+testNonce+"\n", "", 1)},
		{"missing version", strings.Replace(valid, "Version: 1\n", "", 1)},
		{"missing expiration", valid[:strings.Index(valid, "\nExpiration Time: ")]},
		{"bad address", strings.Replace(valid, testChecksummed, "0x1234", 1)},
		{"bad chain id", strings.Replace(valid, "Chain ID: 1", "Chain ID: one", 1)},
		{"bad issued at", strings.Replace(valid, "2026-10-17T09:30:00.123Z", "yesterday", 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text)
			assert.ErrorIs(t, err, core.ErrMalformedMessage)
			assert.False(t, ValidateShape(tt.text))
		})
	}
}

func TestComposer_Check(t *testing.T) {
	c := NewComposer("localhost", "", "")
	parsed, err := Parse(render(t, c, 1, testNonce))
	require.NoError(t, err)

	assert.NoError(t, c.Check(parsed, testChecksummed, testNonce))
	assert.ErrorIs(t, c.Check(parsed, testAddress, strings.Repeat("a", 32)), core.ErrMalformedMessage)
	assert.ErrorIs(t, c.Check(parsed, "0x0000000000000000000000000000000000000001", testNonce), core.ErrMalformedMessage)

	other := NewComposer("evil.example.com", "", "")
	assert.ErrorIs(t, other.Check(parsed, testAddress, testNonce), core.ErrMalformedMessage)
}
