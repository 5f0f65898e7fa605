package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "alice@example.com", NormalizeEmail("  Alice@Example.COM "))
	assert.Equal(t, "bob@example.com", NormalizeEmail("Bob <BOB@example.com>"))
	assert.Equal(t, "", NormalizeEmail(""))
	assert.Equal(t, "", NormalizeEmail("not-an-address"))
}

func TestNewIDOrdered(t *testing.T) {
	now := time.Now()
	a := NewIDAt(now)
	b := NewIDAt(now)
	assert.Len(t, a, 26)
	assert.Less(t, a, b)
}
