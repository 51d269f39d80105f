package signing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerify(t *testing.T) {
	signer, err := NewSigner("secret")
	require.NoError(t, err)

	tuple := Tuple{Name: "Ana", Course: "Math", Date: "2024-05-01", CertID: "abc"}
	sig := signer.Sign(tuple)
	assert.Len(t, sig, 64)
	assert.True(t, signer.Verify(tuple, sig))

	tests := []struct {
		name   string
		mutate func(*Tuple)
	}{
		{"name", func(t *Tuple) { t.Name = "Ann" }},
		{"course", func(t *Tuple) { t.Course = "Bio" }},
		{"date", func(t *Tuple) { t.Date = "2024-05-02" }},
		{"cert id", func(t *Tuple) { t.CertID = "abd" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changed := tuple
			tt.mutate(&changed)
			assert.False(t, signer.Verify(changed, sig))
		})
	}
}

func TestVerifyOtherKey(t *testing.T) {
	a, _ := NewSigner("key-a")
	b, _ := NewSigner("key-b")
	tuple := Tuple{Name: "Ana", Course: "Math", Date: "2024-05-01", CertID: "abc"}
	assert.False(t, b.Verify(tuple, a.Sign(tuple)))
}

func TestNewSignerEmptyKey(t *testing.T) {
	_, err := NewSigner("")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestCanonicalAndHash(t *testing.T) {
	tuple := Tuple{Name: "Ana", Course: "Math", Date: "2024-05-01", CertID: "abc"}
	assert.Equal(t, "Ana|Math|2024-05-01|abc", tuple.Canonical())
	// sha256("Ana|Math|2024-05-01|abc") is stable across runs
	assert.Equal(t, ContentHash(tuple), ContentHash(tuple))
	assert.Len(t, ContentHash(tuple), 64)
	assert.NotEqual(t, ContentHash(tuple), ContentHash(Tuple{Name: "Ana"}))
}

func TestNewCertificateID(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id, err := NewCertificateID()
		require.NoError(t, err)
		assert.Len(t, id, 22)
		assert.NotContains(t, id, "+")
		assert.NotContains(t, id, "/")
		assert.False(t, seen[id])
		seen[id] = true
	}
}
