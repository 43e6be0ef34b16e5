package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReconnectDelayFormula(t *testing.T) {
	client := New(Config{
		URL:                   "ws://localhost:0",
		ReconnectBaseInterval: 3 * time.Second,
		ReconnectMaxInterval:  30 * time.Second,
	}, WithJitter(func() time.Duration { return 500 * time.Millisecond }))

	require.Equal(t, 3*time.Second+500*time.Millisecond, client.reconnectDelay(0))
	require.Equal(t, 6*time.Second+500*time.Millisecond, client.reconnectDelay(1))
	require.Equal(t, 12*time.Second+500*time.Millisecond, client.reconnectDelay(2))
	require.Equal(t, 30*time.Second, client.reconnectDelay(4), "24.5s fits, 48.5s is capped")
	require.Equal(t, 30*time.Second, client.reconnectDelay(10))
	require.Equal(t, 30*time.Second, client.reconnectDelay(64), "huge attempts must not overflow")
}

func TestCredentialProtocolEncoding(t *testing.T) {
	// "access_token." prefix plus URL-safe unpadded base64 of the token.
	require.Equal(t, "access_token.dG9rZW4", credentialProtocol("token"))

	// Bytes that would produce +, / and = in standard base64.
	encoded := credentialProtocol(string([]byte{0xfb, 0xff, 0xfe}))
	require.Equal(t, "access_token.-__-", encoded)
}
