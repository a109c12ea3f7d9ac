package tlspsk_test

import (
	"context"
	"encoding/hex"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	dialx "github.com/pedramktb/go-dialx"
	_ "github.com/pedramktb/go-dialx/drivers/tlspsk"
)

func TestTLSPSKStageHandshake(t *testing.T) {
	key := hex.EncodeToString([]byte("a very shared secret"))
	driver, err := dialx.GetDriver("tlspsk")
	require.NoError(t, err)

	serverNeg, err := driver(map[string]string{"key": key}, true)
	require.NoError(t, err)
	clientNeg, err := driver(map[string]string{"key": key, "identity": "peer-1"}, false)
	require.NoError(t, err)

	clientRaw, serverRaw := net.Pipe()
	t.Cleanup(func() { _ = clientRaw.Close(); _ = serverRaw.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type result struct {
		conn net.Conn
		err  error
	}
	sres := make(chan result, 1)
	go func() {
		c, err := serverNeg.Negotiate(ctx, serverRaw)
		sres <- result{c, err}
	}()
	clientConn, err := clientNeg.Negotiate(ctx, clientRaw)
	require.NoError(t, err)
	sr := <-sres
	require.NoError(t, sr.err)

	go func() {
		_, _ = clientConn.Write([]byte("psk"))
	}()
	buf := make([]byte, 3)
	_, err = io.ReadFull(sr.conn, buf)
	require.NoError(t, err)
	require.Equal(t, "psk", string(buf))
}

func TestTLSPSKStageParams(t *testing.T) {
	key := hex.EncodeToString([]byte("secret"))
	driver, err := dialx.GetDriver("tlspsk")
	require.NoError(t, err)

	_, err = driver(map[string]string{}, true)
	require.Error(t, err, "missing key")

	_, err = driver(map[string]string{"key": key}, false)
	require.Error(t, err, "client without identity")

	_, err = driver(map[string]string{"key": "zz", "identity": "peer-1"}, false)
	require.Error(t, err, "non-hex key")

	_, err = driver(map[string]string{"key": key, "bogus": "1"}, true)
	require.Error(t, err, "unknown parameter")
}
