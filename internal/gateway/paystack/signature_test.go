package paystack

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidSignature(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"event":"charge.success","data":{"reference":"ref-1"}}`)

	t.Run("accepts a signature computed with the shared secret", func(t *testing.T) {
		sig := Sign(secret, body)
		assert.True(t, ValidSignature(secret, body, sig))
	})

	t.Run("rejects an empty signature", func(t *testing.T) {
		assert.False(t, ValidSignature(secret, body, ""))
	})

	t.Run("rejects a signature from the wrong secret", func(t *testing.T) {
		sig := Sign("whsec_other", body)
		assert.False(t, ValidSignature(secret, body, sig))
	})

	t.Run("rejects a tampered body", func(t *testing.T) {
		sig := Sign(secret, body)
		tampered := []byte(`{"event":"charge.success","data":{"reference":"ref-2"}}`)
		assert.False(t, ValidSignature(secret, tampered, sig))
	})

	t.Run("signature is hex encoded sha512", func(t *testing.T) {
		sig := Sign(secret, body)
		assert.Len(t, sig, 128)
	})
}
