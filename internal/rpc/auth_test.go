package rpc

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"go.klb.dev/clipdrag/internal/hub"
)

func authClient(t *testing.T, lis *bufconn.Listener, token string) *Client {
	t.Helper()
	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithPerRPCCredentials(callCreds{source: "auth-test", token: token}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close() })
	return NewClient(cc)
}

func TestTokenAuth(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(TokenAuth("s3cret")...)
	Register(srv, NewService(&fakeController{}, hub.New()))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	ctx := context.Background()

	_, err := authClient(t, lis, "s3cret").State(ctx)
	assert.NoError(t, err)

	for _, tok := range []string{"", "guess"} {
		c := authClient(t, lis, tok)
		_, err := c.State(ctx)
		assert.Equal(t, codes.Unauthenticated, status.Code(err), "unary with %q", tok)

		err = c.Watch(ctx, &WatchRequest{}, func(*WatchResponse) error { return nil })
		assert.Equal(t, codes.Unauthenticated, status.Code(err), "stream with %q", tok)
	}
}

func TestTokenAuthDisabled(t *testing.T) {
	assert.Empty(t, TokenAuth(""))
}
