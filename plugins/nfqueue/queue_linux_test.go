//go:build linux

package nfqueue

import (
	"context"
	"testing"

	"github.com/florianl/go-nfqueue/v2"
	"github.com/stretchr/testify/assert"

	"firestige.xyz/dsmark/internal/core"
	"firestige.xyz/dsmark/pkg/plugin"
)

func TestVerdictFor(t *testing.T) {
	data := []byte{0x45, 0x88}

	v, payload := verdictFor(core.Result{Data: data, Verdict: core.VerdictContinue})
	assert.Equal(t, nfqueue.NfAccept, v)
	assert.Nil(t, payload, "unmodified packets are accepted without reinjection")

	v, payload = verdictFor(core.Result{Data: data, Modified: true, Verdict: core.VerdictContinue})
	assert.Equal(t, nfqueue.NfAccept, v)
	assert.Equal(t, data, payload)

	v, payload = verdictFor(core.Result{Data: data, Modified: true, Verdict: core.VerdictDrop})
	assert.Equal(t, nfqueue.NfDrop, v)
	assert.Nil(t, payload)
}

func TestQueueNotStarted(t *testing.T) {
	q := NewQueue()
	assert.Error(t, q.Capture(context.Background(), make(chan core.RawPacket)))
	assert.Error(t, q.(plugin.Emitter).Emit(context.Background(), core.Result{}))
	assert.NoError(t, q.Stop(context.Background()))
}
