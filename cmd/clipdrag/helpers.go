package main

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
	"google.golang.org/grpc"

	"go.klb.dev/clipdrag/internal/ipc"
	"go.klb.dev/clipdrag/internal/rpc"
)

func getenv(key string) string  { return os.Getenv(key) }
func hostname() (string, error) { return os.Hostname() }

func isContainerID(s string) bool {
	if len(s) < 12 || len(s) > 64 {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}

// defaultSource returns a human-readable identifier for this host.
func defaultSource() string {
	for _, env := range []string{
		"CLIPDRAG_SOURCE",
		"CONTAINER_NAME",
		"HOSTNAME_FRIENDLY",
	} {
		if v := getenv(env); v != "" {
			return v
		}
	}
	h, err := hostname()
	if err != nil {
		return "unknown"
	}
	if isContainerID(h) {
		return "container-" + h[:8]
	}
	return h
}

// dialDaemon returns a control client for the daemon on the --socket path,
// or on its TLS listener when --addr is set.
func dialDaemon(v *viper.Viper, tool string) (*rpc.Client, *grpc.ClientConn, error) {
	if addr := v.GetString("addr"); addr != "" {
		conn, err := rpc.DialTCP(addr, v.GetString("token"), defaultSource()+" "+tool)
		if err != nil {
			return nil, nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		return rpc.NewClient(conn), conn, nil
	}
	path := v.GetString("socket")
	if !ipc.IsRunning(path) {
		return nil, nil, fmt.Errorf("no clipdrag daemon at %s (run \"clipdrag serve\")", path)
	}
	conn, err := rpc.Dial(path, "clipdrag "+tool)
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}
	return rpc.NewClient(conn), conn, nil
}
