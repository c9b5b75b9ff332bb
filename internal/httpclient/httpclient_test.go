package httpclient

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsTimeout(t *testing.T) {
	client := New(Options{})
	assert.Equal(t, 180*time.Second, client.Timeout)

	client = New(Options{Timeout: -1 * time.Second})
	assert.Equal(t, 180*time.Second, client.Timeout)
}

func TestNewHonorsTimeout(t *testing.T) {
	client := New(Options{Timeout: 5 * time.Second})
	assert.Equal(t, 5*time.Second, client.Timeout)
}

func TestNewTransportTuning(t *testing.T) {
	client := New(Options{})

	transport, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.True(t, transport.ForceAttemptHTTP2)
	assert.Equal(t, 60*time.Second, transport.ResponseHeaderTimeout)
	assert.NotNil(t, transport.DialContext)
}
