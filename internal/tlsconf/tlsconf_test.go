package tlsconf

import (
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func handshake(t *testing.T, server, client *Identity) error {
	t.Helper()
	ln, err := tls.Listen("tcp", "127.0.0.1:0", server.ServerConfig())
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.(*tls.Conn).Handshake()
	}()

	conn, err := tls.Dial("tcp", ln.Addr().String(), client.ClientConfig())
	if err != nil {
		return err
	}
	return conn.Close()
}

func TestSameTokenHandshakes(t *testing.T) {
	srv, err := Derive("s3cret")
	require.NoError(t, err)
	cli, err := Derive("s3cret")
	require.NoError(t, err)

	assert.Equal(t, srv.pub, cli.pub, "key derivation is deterministic")
	assert.NoError(t, handshake(t, srv, cli))
}

func TestDifferentTokenRejected(t *testing.T) {
	srv, err := Derive("s3cret")
	require.NoError(t, err)
	cli, err := Derive("guess")
	require.NoError(t, err)

	assert.NotEqual(t, srv.pub, cli.pub)
	assert.Error(t, handshake(t, srv, cli))
}

func TestServerConfigOffersBothProtocols(t *testing.T) {
	id, err := Derive(DefaultToken)
	require.NoError(t, err)
	assert.Equal(t, []string{"h2", "http/1.1"}, id.ServerConfig().NextProtos)
}
