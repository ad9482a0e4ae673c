// PicoJarvis - personal automation assistant
// License: MIT
//
// Copyright (c) 2026 PicoClaw contributors

package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sipeed/picojarvis/pkg/logger"
)

const maxLineBytes = 1 << 20

// CommandHandler answers one command with reply text.
type CommandHandler interface {
	Handle(ctx context.Context, command string) string
}

// LineServer serves the newline-delimited command protocol. Each
// connection gets its own goroutine and may send any number of commands.
type LineServer struct {
	handler     CommandHandler
	idleTimeout time.Duration

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

func NewLineServer(handler CommandHandler, idleTimeout time.Duration) *LineServer {
	return &LineServer{
		handler:     handler,
		idleTimeout: idleTimeout,
		conns:       make(map[net.Conn]struct{}),
	}
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *LineServer) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then closes the
// listener and every open connection and waits for their goroutines.
func (s *LineServer) Serve(ctx context.Context, ln net.Listener) error {
	logger.InfoCF("server", "Command server listening", map[string]any{
		"address": ln.Addr().String(),
	})

	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
		s.closeConns()
	})
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				logger.InfoC("server", "Command server stopped")
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			s.wg.Wait()
			return fmt.Errorf("accept: %w", err)
		}

		if !s.track(conn) {
			_ = conn.Close()
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *LineServer) serveConn(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("server", "Connection handler panicked", map[string]any{
				"remote": remote,
				"panic":  fmt.Sprint(r),
			})
		}
		_ = conn.Close()
	}()

	logger.DebugCF("server", "Connection opened", map[string]any{"remote": remote})

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLineBytes)
	for {
		s.deadline(conn)
		if !scanner.Scan() {
			break
		}
		command := strings.TrimSpace(strings.ToValidUTF8(scanner.Text(), ""))
		if command == "" {
			continue
		}

		reply := s.handler.Handle(ctx, command)

		s.deadline(conn)
		if _, err := conn.Write([]byte(encodeReply(reply) + "\n")); err != nil {
			logger.WarnCF("server", "Failed to write reply", map[string]any{
				"remote": remote,
				"error":  err.Error(),
			})
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		logger.DebugCF("server", "Connection read ended", map[string]any{
			"remote": remote,
			"error":  err.Error(),
		})
	}
}

func (s *LineServer) deadline(conn net.Conn) {
	if s.idleTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.idleTimeout))
	}
}

// track registers conn; it reports false once shutdown has begun.
func (s *LineServer) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *LineServer) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

func (s *LineServer) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.conns = nil
}

// Replies travel as a single line: backslashes and line breaks inside the
// reply are escaped so one reply is always exactly one line on the wire.
var (
	replyEscaper   = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`)
	replyUnescaper = strings.NewReplacer(`\\`, `\`, `\n`, "\n", `\r`, "\r")
)

func encodeReply(reply string) string {
	return replyEscaper.Replace(reply)
}

// DecodeReply restores a reply line read from the command socket.
func DecodeReply(line string) string {
	return replyUnescaper.Replace(strings.TrimRight(line, "\r\n"))
}

// Send dials addr, sends one command and returns the decoded reply.
func Send(ctx context.Context, addr, command string, timeout time.Duration) (string, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("connect %s: %w", addr, err)
	}
	defer conn.Close()
	if timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}

	if _, err := conn.Write([]byte(command + "\n")); err != nil {
		return "", fmt.Errorf("send command: %w", err)
	}

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read reply: %w", err)
	}
	return strings.TrimSpace(DecodeReply(line)), nil
}
