package walletkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildRegistry_Collisions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		table []registration
	}{
		{"duplicate id", []registration{
			{Type{ID: 1, Name: "A"}, openLocal},
			{Type{ID: 1, Name: "B"}, openLocal},
		}},
		{"duplicate name", []registration{
			{Type{ID: 1, Name: "A"}, openLocal},
			{Type{ID: 2, Name: "A"}, openLocal},
		}},
		{"lower case name", []registration{
			{Type{ID: 1, Name: "local"}, openLocal},
		}},
		{"empty name", []registration{
			{Type{ID: 1}, openLocal},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Panics(t, func() { buildRegistry(tt.table) })
		})
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	got, ok := TypeByID(0)
	assert.True(t, ok)
	assert.Equal(t, TypeLocal, got)

	got, ok = TypeByID(50)
	assert.True(t, ok)
	assert.Equal(t, TypeLedger, got)

	got, ok = TypeByName("ledger")
	assert.True(t, ok)
	assert.Equal(t, TypeLedger, got)

	_, ok = TypeByID(7)
	assert.False(t, ok)

	assert.True(t, TypeLocal.Has(SupportsReducedTx))
	assert.False(t, TypeLedger.Has(SupportsReducedTx))
	assert.Len(t, registryByID, 2)
}

func TestPayloadReader(t *testing.T) {
	t.Parallel()
	r := &payloadReader{b: []byte{1, 0, 2, 'h', 'i', 0, 5}}
	assert.Equal(t, uint8(1), r.u8())
	assert.Equal(t, []byte("hi"), r.field())
	assert.Nil(t, r.field())
	assert.Error(t, r.err)
}
