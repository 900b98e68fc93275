package observability

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecoverPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	released := false
	func() {
		defer RecoverPanicWithCallback(logger, "resync", func() { released = true })
		panic("nil tenant")
	}()
	assert.True(t, released)
	assert.Contains(t, buf.String(), "nil tenant")
	assert.Contains(t, buf.String(), `"context":"resync"`)
}

func TestMustRecover(t *testing.T) {
	assert.NoError(t, MustRecover(nil))
	assert.EqualError(t, MustRecover("bad"), "panic: bad")
}
