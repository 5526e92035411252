package cmd

import (
	"testing"
	"time"
)

func TestStartAllCommand(t *testing.T) {
	th := setupCommand(t)

	go func() {
		time.Sleep(500 * time.Millisecond)
		th.cancel()
	}()

	th.runCommand(t, CmdStartAll(), cmdTest{
		args: []string{"start-all", "--port", "0"},
		expectedOut: []string{
			"Scheduler initialization",
			"Server initialization",
			"All services stopped gracefully",
		},
	})
}
