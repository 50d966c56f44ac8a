package main

import (
	"fmt"
	"os"
	"strings"

	"lcars/internal/ipc"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: lcars-ctl stop|alert|status|say <text>")
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	cmd := os.Args[1]
	arg := strings.Join(os.Args[2:], " ")

	switch cmd {
	case "stop", "alert", "status":
	case "say":
		if arg == "" {
			usage()
		}
	default:
		usage()
	}

	rep, err := ipc.SendCommand(cmd, arg)
	if err != nil {
		fmt.Println("lcars-daemon not running:", err)
		os.Exit(1)
	}
	if !rep.OK {
		fmt.Println("error:", rep.Detail)
		os.Exit(1)
	}
	if rep.Detail != "" {
		fmt.Println(rep.Detail)
	}
}
