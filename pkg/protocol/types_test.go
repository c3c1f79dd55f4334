package protocol_test

import (
	"testing"

	"github.com/ahmadhassan44/random-walk/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	body, err := protocol.Encode(protocol.NewCompletionSignal(7))
	require.NoError(t, err)
	assert.JSONEq(t, `{"walker_id":7,"marker":1}`, string(body))

	sig, err := protocol.Decode(body)
	require.NoError(t, err)
	assert.Equal(t, 7, sig.WalkerID)
	assert.Equal(t, protocol.Marker, sig.Marker)
}

func TestDecode_Malformed(t *testing.T) {
	cases := map[string]string{
		"not json":       `done!`,
		"empty":          ``,
		"null":           `null`,
		"array":          `[1]`,
		"bare int":       `1`,
		"missing marker": `{"walker_id":3}`,
		"missing id":     `{"marker":1}`,
		"wrong marker":   `{"walker_id":3,"marker":2}`,
		"fraction":       `{"walker_id":3,"marker":1.5}`,
		"string marker":  `{"walker_id":3,"marker":"1"}`,
		"extra field":    `{"walker_id":3,"marker":1,"steps":40}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := protocol.Decode([]byte(body))
			assert.ErrorIs(t, err, protocol.ErrMalformedSignal)
		})
	}
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "WAITING", protocol.StatusWaiting.String())
	assert.Equal(t, "DONE", protocol.StatusDone.String())
	assert.Equal(t, "Status(9)", protocol.Status(9).String())
}
