package service

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karelmartinek-a11y/kajovospend/internal/common"
)

func startControl(t *testing.T) (*App, string) {
	t.Helper()
	cfg, err := common.Load("")
	require.NoError(t, err)
	app := NewApp(cfg, nil, nil, nil, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv := NewControlServer(app, nil)
	go func() { _ = srv.Serve(ctx, addr) }()

	// wait for the listener
	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	return app, addr
}

func roundtrip(t *testing.T, addr, cmd string) map[string]any {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, json.NewEncoder(conn).Encode(ControlRequest{Cmd: cmd}))

	scanner := bufio.NewScanner(conn)
	require.True(t, scanner.Scan(), "expected one response line")

	var resp map[string]any
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
	return resp
}

func TestControlPing(t *testing.T) {
	_, addr := startControl(t)

	resp := roundtrip(t, addr, "ping")
	assert.Equal(t, true, resp["ok"])
	assert.Equal(t, true, resp["pong"])
}

func TestControlStop(t *testing.T) {
	app, addr := startControl(t)

	resp := roundtrip(t, addr, "stop")
	assert.Equal(t, true, resp["ok"])

	select {
	case <-app.stopCh:
	case <-time.After(2 * time.Second):
		t.Fatal("stop command did not reach the app")
	}
}

func TestControlInvalidJSON(t *testing.T) {
	_, addr := startControl(t)

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("not json\n"))
	require.NoError(t, err)

	scanner := bufio.NewScanner(conn)
	require.True(t, scanner.Scan())
	var resp AckResponse
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
	assert.Equal(t, "invalid request", resp.Error)
	assert.False(t, resp.OK)
}
