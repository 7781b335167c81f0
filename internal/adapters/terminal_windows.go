//go:build windows

package adapters

import (
	"fmt"
	"io"
)

// startInTerminal runs t.cmd with its output piped to out; there are no
// pseudo-terminals here.
func startInTerminal(t *Terminal, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	t.cmd.Stdout = out
	t.cmd.Stderr = out
	setProcAttr(t.cmd)
	if err := t.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", t.cmd.Path, err)
	}
	go func() {
		err := t.cmd.Wait()
		t.log.Debugf("terminal process exited: %v", err)
		close(t.done)
	}()
	return nil
}
