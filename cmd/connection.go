// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"

	"github.com/Thermoquad/heliboot/pkg/hal"
)

// ErrBridgeClosed is returned once the WebSocket bridge has hung up
var ErrBridgeClosed = errors.New("websocket bridge closed")

const (
	bridgeHandshakeTimeout = 10 * time.Second
	bridgeDialTimeout      = 15 * time.Second
)

// endpoint is where the device is attached: a local UART or a UART
// bridged over WebSocket
type endpoint struct {
	port     string
	baud     int
	url      string
	user     string
	insecure bool
}

func endpointFromFlags() (endpoint, error) {
	e := endpoint{
		port:     portName,
		baud:     baudRate,
		url:      wsURL,
		user:     wsUsername,
		insecure: wsNoSSLVerify,
	}
	if e.url == "" && e.port == "" {
		return e, errors.New("either --port or --url must be specified")
	}
	return e, nil
}

func (e endpoint) String() string {
	if e.url != "" {
		return fmt.Sprintf("WebSocket: %s", e.url)
	}
	return fmt.Sprintf("Serial: %s @ %d baud", e.port, e.baud)
}

// dial opens the raw byte stream. The bridge password is only asked for
// when a username is set.
func (e endpoint) dial(ctx context.Context) (io.ReadWriteCloser, error) {
	if e.url == "" {
		return openUART(e.port, e.baud)
	}

	var password string
	if e.user != "" {
		pw, err := readPassword()
		if err != nil {
			return nil, err
		}
		password = pw
	}
	return dialBridge(ctx, e.url, e.user, password, e.insecure)
}

// OpenLink opens the link selected by the connection flags. Every
// command talks to the device through the returned serial.
func OpenLink() (*hal.StreamSerial, string, error) {
	e, err := endpointFromFlags()
	if err != nil {
		return nil, "", err
	}
	rw, err := e.dial(context.Background())
	if err != nil {
		return nil, "", err
	}
	return hal.NewStreamSerial(rw), e.String(), nil
}

// ListPorts returns the serial ports present on this host
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	return ports, nil
}

// openUART opens name as 8N1
func openUART(name string, baud int) (serial.Port, error) {
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}
	return port, nil
}

// bridgeStream carries UART bytes in binary WebSocket messages. Text
// messages are bridge status lines and are dropped.
type bridgeStream struct {
	conn    *websocket.Conn
	pending []byte
	err     error
}

func dialBridge(ctx context.Context, rawURL, user, password string, insecure bool) (*bridgeStream, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{HandshakeTimeout: bridgeHandshakeTimeout}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: insecure}
	}

	header := http.Header{}
	if user != "" && password != "" {
		header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(user+":"+password)))
	}

	ctx, cancel := context.WithTimeout(ctx, bridgeDialTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, rawURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}
	return &bridgeStream{conn: conn}, nil
}

func (b *bridgeStream) Read(p []byte) (int, error) {
	for len(b.pending) == 0 {
		if b.err != nil {
			return 0, b.err
		}
		kind, data, err := b.conn.ReadMessage()
		if err != nil {
			b.err = fmt.Errorf("%w: %v", ErrBridgeClosed, err)
			continue
		}
		if kind == websocket.BinaryMessage {
			b.pending = data
		}
	}
	n := copy(p, b.pending)
	b.pending = b.pending[n:]
	return n, nil
}

func (b *bridgeStream) Write(p []byte) (int, error) {
	if err := b.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (b *bridgeStream) Close() error {
	return b.conn.Close()
}

// readPassword takes the bridge password from HELIBOOT_PASSWORD or
// prompts for it without echo
func readPassword() (string, error) {
	if pw := os.Getenv("HELIBOOT_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	defer fmt.Fprintln(os.Stderr)

	pw, err := term.ReadPassword(int(syscall.Stdin))
	if err == nil {
		return string(pw), nil
	}

	// Not a terminal, e.g. piped input
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}
