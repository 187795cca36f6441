package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequentialIDGenerator_Sequence(t *testing.T) {
	gen := NewSequentialIDGenerator("test")
	assert.Equal(t, "test-1", gen.Generate())
	assert.Equal(t, "test-2", gen.Generate())
	assert.Equal(t, "test-3", gen.Generate())
}

func TestSequentialIDGenerator_DefaultPrefix(t *testing.T) {
	gen := NewSequentialIDGenerator("")
	assert.Equal(t, "req-1", gen.Generate())
}

func TestSequentialIDGenerator_IndependentInstances(t *testing.T) {
	a := NewSequentialIDGenerator("a")
	b := NewSequentialIDGenerator("b")
	a.Generate()
	assert.Equal(t, "a-2", a.Generate())
	assert.Equal(t, "b-1", b.Generate())
}
