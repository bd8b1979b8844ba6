package service

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"
)

// ControlRequest is one newline-delimited JSON command.
type ControlRequest struct {
	Cmd string `json:"cmd"`
}

// AckResponse answers stop and ping commands.
type AckResponse struct {
	OK    bool   `json:"ok"`
	Pong  bool   `json:"pong,omitempty"`
	Error string `json:"error,omitempty"`
}

// ControlServer answers status queries and accepts the stop command. It must
// keep answering even when the pipeline is degraded, so it only depends on
// the state snapshot.
type ControlServer struct {
	app    *App
	logger *slog.Logger
}

func NewControlServer(app *App, logger *slog.Logger) *ControlServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ControlServer{app: app, logger: logger}
}

// Serve listens until the context is cancelled.
func (c *ControlServer) Serve(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	c.logger.Info("control listener started", "addr", addr)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			c.logger.Warn("control accept failed", "error", err)
			continue
		}
		go c.handle(ctx, conn)
	}
}

func (c *ControlServer) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(30 * time.Second))

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 64<<10)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		var req ControlRequest
		if line != "" {
			if err := json.Unmarshal([]byte(line), &req); err != nil {
				_ = enc.Encode(AckResponse{Error: "invalid request"})
				continue
			}
		}

		switch strings.ToLower(req.Cmd) {
		case "stop":
			_ = enc.Encode(AckResponse{OK: true})
			c.logger.Info("stop requested over control connection",
				"remote", conn.RemoteAddr().String())
			c.app.Stop()
			return
		case "ping":
			_ = enc.Encode(AckResponse{OK: true, Pong: true})
		default:
			// unknown or empty commands answer with status
			_ = enc.Encode(c.app.Snapshot())
		}
		_ = conn.SetDeadline(time.Now().Add(30 * time.Second))
	}
}
