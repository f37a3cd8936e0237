package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRefreshTestModeFollowsEnvironment(t *testing.T) {
	t.Cleanup(RefreshTestMode)

	t.Setenv(testModeEnv, "0")
	RefreshTestMode()
	assert.False(t, InTestMode())

	t.Setenv(testModeEnv, "1")
	assert.False(t, InTestMode(), "cached flag is kept until refreshed")
	RefreshTestMode()
	assert.True(t, InTestMode())
}
