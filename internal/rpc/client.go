package rpc

import (
	"cmp"
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.klb.dev/clipdrag/internal/tlsconf"
)

// Client calls the control service.
type Client struct {
	cc   grpc.ClientConnInterface
	opts []grpc.CallOption
}

// NewClient wraps cc. Calls use the JSON codec.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc, opts: []grpc.CallOption{grpc.CallContentSubtype(CodecName)}}
}

// Dial returns a connection to the daemon socket at path. No auth is
// needed; the socket is local and owner-restricted. source names the caller
// in the daemon's peer list.
func Dial(path, source string) (*grpc.ClientConn, error) {
	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if source != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(callCreds{source: source}))
	}
	return grpc.NewClient("unix://"+path, opts...)
}

// DialTCP returns a connection to the daemon's TCP listener at addr. The
// server is pinned to the key derived from token and every call carries
// token as a bearer token.
func DialTCP(addr, token, source string) (*grpc.ClientConn, error) {
	id, err := tlsconf.Derive(cmp.Or(token, tlsconf.DefaultToken))
	if err != nil {
		return nil, err
	}
	return grpc.NewClient(addr,
		grpc.WithTransportCredentials(id.Credentials()),
		grpc.WithPerRPCCredentials(callCreds{source: source, token: token, secure: true}),
	)
}

// callCreds attaches the caller's name and, over TLS, its token.
type callCreds struct {
	source string
	token  string
	secure bool
}

func (c callCreds) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	md := make(map[string]string, 2)
	if c.source != "" {
		md[SourceHeader] = c.source
	}
	if c.token != "" {
		md["authorization"] = "Bearer " + c.token
	}
	return md, nil
}

func (c callCreds) RequireTransportSecurity() bool { return c.secure }

func (c *Client) StartDrag(ctx context.Context, in *StartDragRequest) (*StartDragResponse, error) {
	out := new(StartDragResponse)
	if err := c.cc.Invoke(ctx, fullMethod("StartDrag"), in, out, c.opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) EndDrag(ctx context.Context) (*EndDragResponse, error) {
	out := new(EndDragResponse)
	if err := c.cc.Invoke(ctx, fullMethod("EndDrag"), &EndDragRequest{}, out, c.opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Drag(ctx context.Context, in *DragRequest) (*EndDragResponse, error) {
	out := new(EndDragResponse)
	if err := c.cc.Invoke(ctx, fullMethod("Drag"), in, out, c.opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Clear(ctx context.Context) (*StateResponse, error) {
	out := new(StateResponse)
	if err := c.cc.Invoke(ctx, fullMethod("Clear"), &ClearRequest{}, out, c.opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) State(ctx context.Context) (*StateResponse, error) {
	out := new(StateResponse)
	if err := c.cc.Invoke(ctx, fullMethod("State"), &StateRequest{}, out, c.opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Watch calls fn for every update until ctx is done, the stream ends or fn
// returns an error.
func (c *Client) Watch(ctx context.Context, in *WatchRequest, fn func(*WatchResponse) error) error {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], fullMethod("Watch"), c.opts...)
	if err != nil {
		return err
	}
	// io.EOF means the server already ended the stream; RecvMsg has the status.
	if err := stream.SendMsg(in); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		resp := new(WatchResponse)
		if err := stream.RecvMsg(resp); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := fn(resp); err != nil {
			return err
		}
	}
}
