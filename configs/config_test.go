package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUniqueInstance(t *testing.T) {
	first := CreateUniqueInstance("match")
	require.NotEmpty(t, first)
	assert.Equal(t, first, GetInstanceId())

	second := CreateUniqueInstance("match")
	assert.NotEqual(t, first, second, "every instance gets its own id")
	assert.Equal(t, second, GetInstanceId())
}

func TestDurationEnv(t *testing.T) {
	assert.Equal(t, 5*time.Minute, DurationEnv("ROOM_TEST_UNSET", 5*time.Minute))

	t.Setenv("ROOM_TEST_SET", "90s")
	assert.Equal(t, 90*time.Second, DurationEnv("ROOM_TEST_SET", 5*time.Minute))

	t.Setenv("ROOM_TEST_BAD", "soon")
	assert.Equal(t, time.Minute, DurationEnv("ROOM_TEST_BAD", time.Minute))
}
