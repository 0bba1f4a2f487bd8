package wardencrypto_test

import (
	"os"
	"testing"

	"github.com/mrz1836/warden/internal/wardencrypto"
)

func TestMain(m *testing.M) {
	wardencrypto.SetKDFIterations(16)
	wardencrypto.SetScryptWorkFactor(10)
	os.Exit(m.Run())
}
