package ergo_test

import (
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"
)

func decodeCheck(t *testing.T, s string) []byte {
	t.Helper()
	raw, err := base58.Decode(s)
	require.NoError(t, err)
	require.Greater(t, len(raw), 4)
	return raw[:len(raw)-4]
}
