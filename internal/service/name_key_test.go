package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameKey(t *testing.T) {
	assert.Equal(t, NameKey("Élodie Martin"), NameKey("  élodie   MARTIN "))
	// NFD 与 NFC 写法视为同一姓名
	assert.Equal(t, NameKey("Chloé Durand"), NameKey("Chloe\u0301 Durand"))
	assert.Equal(t, NameKey("Jean-Pierre Roux"), NameKey("jean-pierre roux"))
	assert.NotEqual(t, NameKey("Jean Pierre Roux"), NameKey("Jean-Pierre Roux"))
	assert.Equal(t, "", NameKey("   "))
}

func TestCleanName(t *testing.T) {
	assert.Equal(t, "Jean Dupont", cleanName("  Jean \t Dupont "))
}
