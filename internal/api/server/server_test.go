package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aliskhannn/image-storage/internal/config"
)

func TestNew_UsesConfiguredTimeouts(t *testing.T) {
	s := New(config.Server{
		HTTPPort:          ":9090",
		ReadTimeout:       time.Minute,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      3 * time.Minute,
		IdleTimeout:       time.Hour,
	}, nil)

	assert.Equal(t, ":9090", s.Addr)
	assert.Equal(t, time.Minute, s.ReadTimeout)
	assert.Equal(t, 2*time.Second, s.ReadHeaderTimeout)
	assert.Equal(t, 3*time.Minute, s.WriteTimeout)
	assert.Equal(t, time.Hour, s.IdleTimeout)
}

func TestNew_FallsBackWhenUnset(t *testing.T) {
	s := New(config.Server{HTTPPort: ":8080"}, nil)

	assert.Equal(t, defaultReadTimeout, s.ReadTimeout)
	assert.Equal(t, defaultReadHeaderTimeout, s.ReadHeaderTimeout)
	assert.Equal(t, defaultWriteTimeout, s.WriteTimeout)
	assert.Equal(t, defaultIdleTimeout, s.IdleTimeout)
}
