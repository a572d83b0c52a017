package locale

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTranslation(t *testing.T) {
	c := NewCatalog()

	assert.Equal(t, "Build started", c.Translation(KeyBuildStarted))
	assert.Equal(t, "Build queued at position 2/5", c.Translation(KeyBuildRank, 2, 5))
	assert.Equal(t, "Build cannot start, required file pom.xml is missing",
		c.Translation(KeyBuildFailMissing, "pom.xml"))
}

func TestTranslationUnknownKeyFallsBack(t *testing.T) {
	c := NewCatalog()
	assert.Equal(t, "no.such.key", c.Translation("no.such.key"))
	assert.Equal(t, "no.such.key", c.Translation("no.such.key", "ignored"))
}
