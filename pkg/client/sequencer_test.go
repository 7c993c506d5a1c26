package client

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cachemir/shardline/pkg/protocol"
)

func pushAll(t *testing.T, s *sequencer, ops ...protocol.Opcode) []*pending {
	t.Helper()
	ps := make([]*pending, len(ops))
	for i, op := range ops {
		ps[i] = newPending(op)
		require.NoError(t, s.push(ps[i]))
	}
	return ps
}

func resolved(t *testing.T, p *pending) result {
	t.Helper()
	select {
	case r := <-p.done:
		return r
	default:
		t.Fatal("pending request was not resolved")
		return result{}
	}
}

func assertUnresolved(t *testing.T, p *pending) {
	t.Helper()
	select {
	case r := <-p.done:
		t.Fatalf("unexpected resolution: %+v", r)
	default:
	}
}

func TestSequencerFIFO(t *testing.T) {
	var s sequencer
	ps := pushAll(t, &s, protocol.OpGet, protocol.OpGet, protocol.OpGet)
	assert.Equal(t, 3, s.Len())

	for i, payload := range []string{"a", "b", "c"} {
		require.NoError(t, s.deliverFrame(append([]byte{1}, payload...)))
		assert.Equal(t, 2-i, s.Len())

		r := resolved(t, ps[i])
		require.NoError(t, r.err)
		assert.Equal(t, []byte(payload), r.resp.Value)
	}
}

func TestSequencerSplitsMergedDeliveries(t *testing.T) {
	var s sequencer
	ps := pushAll(t, &s, protocol.OpPut, protocol.OpDelete, protocol.OpPut, protocol.OpGet)

	// PUT ok, DELETE RecordNotFound, PUT ok and a GET value in one read.
	require.NoError(t, s.deliver([]byte{1, 0, 5, 1, 1, 'v', 'a', 'l'}))
	assert.Equal(t, 0, s.Len())

	assert.NoError(t, resolved(t, ps[0]).resp.Err())
	assert.ErrorIs(t, resolved(t, ps[1]).resp.Err(), protocol.RecordNotFound)
	assert.NoError(t, resolved(t, ps[2]).resp.Err())
	assert.Equal(t, []byte("val"), resolved(t, ps[3]).resp.Value)
}

func TestSequencerJoinsSplitErrorFrame(t *testing.T) {
	var s sequencer
	ps := pushAll(t, &s, protocol.OpGet, protocol.OpPut)

	require.NoError(t, s.deliver([]byte{0}))
	assertUnresolved(t, ps[0])
	assert.Equal(t, 2, s.Len())

	require.NoError(t, s.deliver([]byte{5, 1}))
	assert.ErrorIs(t, resolved(t, ps[0]).resp.Err(), protocol.RecordNotFound)
	assert.True(t, resolved(t, ps[1]).resp.OK)
}

func TestSequencerDesync(t *testing.T) {
	var s sequencer
	assert.ErrorIs(t, s.deliver([]byte{1}), ErrProtocolDesync)
	assert.ErrorIs(t, s.deliverFrame([]byte{1}), ErrProtocolDesync)

	ps := pushAll(t, &s, protocol.OpPut)
	assert.ErrorIs(t, s.deliver([]byte{1, 1}), ErrProtocolDesync)
	assert.True(t, resolved(t, ps[0]).resp.OK, "frame before the surplus byte still resolves")
}

func TestSequencerFailResolvesAllOnce(t *testing.T) {
	var s sequencer
	ps := pushAll(t, &s, protocol.OpGet, protocol.OpPut, protocol.OpDelete)

	boom := errors.New("boom")
	assert.True(t, s.fail(boom))
	assert.False(t, s.fail(errors.New("second")))
	assert.Equal(t, 0, s.Len())

	for _, p := range ps {
		assert.ErrorIs(t, resolved(t, p).err, boom)
		assertUnresolved(t, p)
	}

	assert.ErrorIs(t, s.push(newPending(protocol.OpGet)), boom)
	assert.ErrorIs(t, s.deliver([]byte{1}), boom)
	assert.ErrorIs(t, s.deliverFrame([]byte{1}), boom)
}
