package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	cli "github.com/spf13/pflag"

	"jarvis/internal/ipc"
)

func main() {
	socket := cli.StringP("socket", "s", ipc.SocketPath, "Daemon control socket")
	timeout := cli.DurationP("timeout", "t", 2*time.Minute, "How long to wait for the daemon")
	cli.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: jarvis-ctl [flags] listen | say <text> | quit\n")
		cli.PrintDefaults()
	}
	cli.Parse()

	args := cli.Args()
	if len(args) == 0 {
		cli.Usage()
		os.Exit(2)
	}

	msg := ipc.ControlMessage{Cmd: args[0]}
	switch msg.Cmd {
	case ipc.CmdListen, ipc.CmdQuit:
	case ipc.CmdSay:
		msg.Text = strings.Join(args[1:], " ")
		if msg.Text == "" {
			cli.Usage()
			os.Exit(2)
		}
	default:
		cli.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rep, err := ipc.SendCommand(ctx, *socket, msg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "jarvis daemon:", err)
		os.Exit(1)
	}
	if rep.Text != "" {
		fmt.Println(rep.Text)
	}
}
