package ipc

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func socketPath(t *testing.T) string {
	// unix socket paths are limited to ~104 bytes; t.TempDir can exceed that.
	dir, err := os.MkdirTemp("", "jv")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "s.sock")
}

func TestRoundTrip(t *testing.T) {
	path := socketPath(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := StartServer(ctx, path, func(_ context.Context, msg ControlMessage) Reply {
		switch msg.Cmd {
		case CmdSay:
			return Reply{OK: true, Text: "said " + msg.Text}
		default:
			return Reply{Error: "unknown command " + msg.Cmd}
		}
	})
	require.NoError(t, err)
	defer srv.Close()

	sctx, scancel := context.WithTimeout(ctx, 2*time.Second)
	defer scancel()

	rep, err := SendCommand(sctx, path, ControlMessage{Cmd: CmdSay, Text: "hello"})
	require.NoError(t, err)
	assert.True(t, rep.OK)
	assert.Equal(t, "said hello", rep.Text)

	_, err = SendCommand(sctx, path, ControlMessage{Cmd: "dance"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command dance")
}

func TestStaleSocketIsReplaced(t *testing.T) {
	path := socketPath(t)
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	srv, err := StartServer(context.Background(), path, func(context.Context, ControlMessage) Reply {
		return Reply{OK: true}
	})
	require.NoError(t, err)
	require.NoError(t, srv.Close())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestCloseWaitsForHandlers(t *testing.T) {
	path := socketPath(t)
	var done atomic.Bool
	started := make(chan struct{})

	srv, err := StartServer(context.Background(), path, func(context.Context, ControlMessage) Reply {
		close(started)
		time.Sleep(100 * time.Millisecond)
		done.Store(true)
		return Reply{OK: true}
	})
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := SendCommand(context.Background(), path, ControlMessage{Cmd: CmdListen})
		errc <- err
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never ran")
	}

	require.NoError(t, srv.Close())
	assert.True(t, done.Load())
	require.NoError(t, <-errc)
}

func TestSendWithoutDaemon(t *testing.T) {
	_, err := SendCommand(context.Background(), socketPath(t), ControlMessage{Cmd: CmdListen})
	assert.Error(t, err)
}
