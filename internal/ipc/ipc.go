package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"
)

const SocketPath = "/tmp/jarvis.sock"

const (
	CmdListen = "listen"
	CmdSay    = "say"
	CmdQuit   = "quit"
)

type ControlMessage struct {
	Cmd  string `json:"cmd"`
	Text string `json:"text,omitempty"`
}

type Reply struct {
	OK    bool   `json:"ok"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

type Handler func(ctx context.Context, msg ControlMessage) Reply

// Server accepts one JSON ControlMessage per connection and answers with a
// single Reply.
type Server struct {
	ln   net.Listener
	path string
	wg   sync.WaitGroup
}

// StartServer removes a stale socket at path, listens on it and serves
// connections until ctx is done or Close is called.
func StartServer(ctx context.Context, path string, handler Handler) (*Server, error) {
	if path == "" {
		path = SocketPath
	}
	_ = os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	s := &Server{ln: ln, path: path}

	go func() {
		<-ctx.Done()
		_ = s.ln.Close()
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				slog.Debug("ipc accept", "err", err)
				continue
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				handleConn(ctx, conn, handler)
			}()
		}
	}()

	return s, nil
}

func (s *Server) Path() string { return s.path }

// Close stops accepting, waits for in-flight handlers and removes the socket.
func (s *Server) Close() error {
	err := s.ln.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	s.wg.Wait()
	_ = os.Remove(s.path)
	return err
}

func handleConn(ctx context.Context, conn net.Conn, handler Handler) {
	defer conn.Close()

	var msg ControlMessage
	dec := json.NewDecoder(conn)
	if err := dec.Decode(&msg); err != nil {
		slog.Debug("ipc decode", "err", err)
		return
	}

	rep := handler(ctx, msg)
	if err := json.NewEncoder(conn).Encode(rep); err != nil {
		slog.Debug("ipc reply", "err", err)
	}
}

// SendCommand delivers msg to the daemon at path and waits for its reply.
func SendCommand(ctx context.Context, path string, msg ControlMessage) (Reply, error) {
	if path == "" {
		path = SocketPath
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return Reply{}, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Time{})
	}

	if err := json.NewEncoder(conn).Encode(msg); err != nil {
		return Reply{}, fmt.Errorf("send: %w", err)
	}

	var rep Reply
	if err := json.NewDecoder(conn).Decode(&rep); err != nil {
		return Reply{}, fmt.Errorf("read reply: %w", err)
	}
	if !rep.OK && rep.Error != "" {
		return rep, errors.New(rep.Error)
	}

	return rep, nil
}
