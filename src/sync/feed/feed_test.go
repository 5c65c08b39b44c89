package feed

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	ev, ok := parseEvent(map[string]interface{}{
		"event":  "Transfer",
		"from":   "0",
		"to":     "7",
		"amount": "1000000000000000000",
		"tx":     "0xabc",
		"block":  "12345",
	})
	require.True(t, ok)
	require.Equal(t, "Transfer", ev.Event)
	require.Equal(t, uint64(0), ev.From)
	require.Equal(t, uint64(7), ev.To)
	require.Equal(t, "1000000000000000000", ev.Amount.String())
	require.Equal(t, "0xabc", ev.TxHash)
	require.Equal(t, uint64(12345), ev.BlockNumber)
}

func TestParseEventRejectsMalformed(t *testing.T) {
	cases := []map[string]interface{}{
		{"event": "Transfer", "from": "x", "to": "7", "amount": "1", "tx": "0xabc", "block": "1"},
		{"event": "Transfer", "from": "0", "to": "7", "amount": "not-a-number", "tx": "0xabc", "block": "1"},
		{"event": "Transfer", "from": "0", "to": "7", "amount": "1", "tx": "", "block": "1"},
		{"event": "Transfer", "from": "0", "to": "7", "amount": "1", "tx": "0xabc", "block": ""},
	}
	for _, values := range cases {
		_, ok := parseEvent(values)
		require.False(t, ok, "values %v", values)
	}
}
