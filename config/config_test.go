package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubscriberConfigDefaultVisibilityTimeoutConvertsSeconds(t *testing.T) {
	cfg := SubscriberConfig{DefaultVisibilityTimeoutSeconds: 45}
	assert.Equal(t, 45*time.Second, cfg.DefaultVisibilityTimeout())
}

func TestSubscriberConfigWaitSecondsNarrowsToInt32(t *testing.T) {
	cfg := SubscriberConfig{LongPollWaitSeconds: 20}
	assert.Equal(t, int32(20), cfg.WaitSeconds())
}
