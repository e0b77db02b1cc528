package crypto

import (
	"crypto/rsa"
	"sync"
	"testing"
)

var (
	testKeysOnce sync.Once
	testKeyA     *rsa.PrivateKey
	testKeyB     *rsa.PrivateKey
)

// testKeys returns two distinct RSA keys shared across the package tests.
func testKeys(t *testing.T) (*rsa.PrivateKey, *rsa.PrivateKey) {
	t.Helper()
	testKeysOnce.Do(func() {
		var err error
		if testKeyA, err = GenerateRSAKey(2048); err != nil {
			panic(err)
		}
		if testKeyB, err = GenerateRSAKey(2048); err != nil {
			panic(err)
		}
	})
	return testKeyA, testKeyB
}
