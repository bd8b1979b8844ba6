// kajovoctl speaks the daemon's newline-delimited JSON control protocol.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
)

func main() {
	fs := ff.NewFlagSet("kajovoctl")
	var (
		addr    = fs.StringLong("addr", "127.0.0.1:8711", "control address of the daemon")
		timeout = fs.DurationLong("timeout", 5*time.Second, "connection timeout")
	)
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("KAJOVOSPEND")); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cmd := "status"
	if args := fs.GetArgs(); len(args) > 0 {
		cmd = args[0]
	}
	switch cmd {
	case "status", "stop", "ping":
	default:
		fmt.Fprintf(os.Stderr, "usage: kajovoctl [flags] status|stop|ping\n")
		os.Exit(1)
	}

	conn, err := net.DialTimeout("tcp", *addr, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: connecting to %s: %v\n", *addr, err)
		os.Exit(1)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(*timeout))

	if err := json.NewEncoder(conn).Encode(map[string]string{"cmd": cmd}); err != nil {
		fmt.Fprintf(os.Stderr, "error: sending command: %v\n", err)
		os.Exit(1)
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		fmt.Fprintf(os.Stderr, "error: no response\n")
		os.Exit(1)
	}

	// pretty-print whatever JSON came back
	var payload any
	if err := json.Unmarshal(scanner.Bytes(), &payload); err != nil {
		fmt.Println(scanner.Text())
		return
	}
	out, _ := json.MarshalIndent(payload, "", "  ")
	fmt.Println(string(out))
}
