package server

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cachemir/shardline/pkg/cache"
	"github.com/cachemir/shardline/pkg/config"
	"github.com/cachemir/shardline/pkg/protocol"
)

func encode(t *testing.T, req *protocol.Request) []byte {
	t.Helper()
	frame, err := req.Encode()
	require.NoError(t, err)
	return frame
}

func TestHandlePutGetDelete(t *testing.T) {
	srv := New("127.0.0.1:0", Options{})
	defer srv.Stop()

	key := []byte("hello")
	assert.Equal(t, []byte{1}, srv.Handle(encode(t, protocol.NewPut(7, key, []byte("world"), 10))))
	assert.Equal(t, []byte("\x01world"), srv.Handle(encode(t, protocol.NewGet(7, key))))
	assert.Equal(t, []byte{1}, srv.Handle(encode(t, protocol.NewDelete(7, key))))
	assert.Equal(t, []byte{0, byte(protocol.RecordNotFound)}, srv.Handle(encode(t, protocol.NewGet(7, key))))
	assert.Equal(t, []byte{0, byte(protocol.RecordNotFound)}, srv.Handle(encode(t, protocol.NewDelete(7, key))))
}

func TestHandleMalformedFrames(t *testing.T) {
	srv := New("127.0.0.1:0", Options{})
	defer srv.Stop()

	assert.Equal(t, []byte{0, byte(protocol.CommandNotFound)}, srv.Handle([]byte{9, 0, 0, 0, 0, 0, 0, 0, 0}))
	assert.Equal(t, []byte{0, byte(protocol.NotEnoughBytes)}, srv.Handle([]byte{0, 1, 2}))
	assert.Equal(t, []byte{0, byte(protocol.NotEnoughBytes)}, srv.Handle([]byte{1, 0, 0, 0, 0, 0, 0, 0, 0, 1}))
}

func TestHandleLimits(t *testing.T) {
	srv := New("127.0.0.1:0", Options{Limits: cache.Limits{MaxKeyLength: 2, MaxValueLength: 2, MaxMemory: 6}})
	defer srv.Stop()

	assert.Equal(t, []byte{0, byte(protocol.KeyTooLong)}, srv.Handle(encode(t, protocol.NewPut(0, []byte("abc"), nil, 0))))
	assert.Equal(t, []byte{0, byte(protocol.ValueTooLong)}, srv.Handle(encode(t, protocol.NewPut(0, []byte("a"), []byte("abc"), 0))))
	assert.Equal(t, []byte{1}, srv.Handle(encode(t, protocol.NewPut(0, []byte("aa"), []byte("bb"), 0))))
	assert.Equal(t, []byte{0, byte(protocol.OutOfMemory)}, srv.Handle(encode(t, protocol.NewPut(0, []byte("cc"), []byte("dd"), 0))))
}

func TestServeConnDelivery(t *testing.T) {
	srv := New("127.0.0.1:0", Options{})
	defer srv.Stop()

	client, conn := net.Pipe()
	defer client.Close()
	go srv.ServeConn(conn)

	_, err := client.Write(encode(t, protocol.NewPut(1, []byte("k"), []byte("v"), 0)))
	require.NoError(t, err)

	buf := make([]byte, 16)
	n, err := client.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, buf[:n])

	_, err = client.Write(encode(t, protocol.NewGet(1, []byte("k"))))
	require.NoError(t, err)

	n, err = client.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 'v'}, buf[:n])
}

func TestServeConnLengthPrefixed(t *testing.T) {
	srv := New("127.0.0.1:0", Options{Framing: protocol.FramingLengthPrefixed})
	defer srv.Stop()

	client, conn := net.Pipe()
	defer client.Close()
	go srv.ServeConn(conn)

	put := encode(t, protocol.NewPut(1, []byte("k"), []byte("value"), 0))
	get := encode(t, protocol.NewGet(1, []byte("k")))
	go func() {
		// Two frames back to back; the server must answer both in order.
		_ = protocol.WriteFrame(client, put, protocol.FramingLengthPrefixed)
		_ = protocol.WriteFrame(client, get, protocol.FramingLengthPrefixed)
	}()

	r := bufio.NewReader(client)
	first, err := protocol.ReadFrame(r)
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, first)

	second, err := protocol.ReadFrame(r)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x01value"), second)
}

func TestServerStartStop(t *testing.T) {
	srv := New("127.0.0.1:0", Options{})
	require.NoError(t, srv.Listen())

	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(encode(t, protocol.NewGet(0, []byte("missing"))))
	require.NoError(t, err)

	buf := make([]byte, 8)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, byte(protocol.RecordNotFound)}, buf[:n])

	require.NoError(t, srv.Stop())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Stop")
	}

	assert.NoError(t, srv.Stop(), "second Stop is a no-op")
}

func TestClusterStartFailureStopsBoundShards(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	port := taken.Addr().(*net.TCPAddr).Port
	cfg := &config.ServerConfig{
		Host:     "127.0.0.1",
		LogLevel: "info",
		Framing:  protocol.FramingDelivery,
		BasePort: port - 1,
		Shards:   2,
	}

	cluster := NewCluster(cfg)
	require.Equal(t, 2, cluster.Size())

	err = cluster.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shard")
	assert.Nil(t, cluster.Shard(1).Addr())

	for i := 0; i < cluster.Size(); i++ {
		assert.True(t, cluster.Shard(i).isClosed(), "shard %d stopped", i)
	}
}

func TestClusterStartFailureStopsUnboundShards(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	cfg := &config.ServerConfig{
		Host:     "127.0.0.1",
		LogLevel: "info",
		Framing:  protocol.FramingDelivery,
		BasePort: taken.Addr().(*net.TCPAddr).Port,
		Shards:   3,
	}

	cluster := NewCluster(cfg)
	require.Error(t, cluster.Start())

	for i := 0; i < cluster.Size(); i++ {
		assert.Nil(t, cluster.Shard(i).Addr(), "shard %d never bound", i)
		assert.True(t, cluster.Shard(i).isClosed(), "shard %d stopped", i)
	}
}
