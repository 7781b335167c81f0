//go:build !windows

package adapters

import (
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/term"
)

// startInTerminal runs t.cmd on a new pseudo-terminal. The pty inherits our
// window size when stdout is a terminal.
func startInTerminal(t *Terminal, out io.Writer) error {
	ptm, pts, err := pty.Open()
	if err != nil {
		return fmt.Errorf("pty open failed: %w", err)
	}
	if _, err := term.MakeRaw(int(ptm.Fd())); err != nil {
		t.log.Debugf("raw mode on pty failed: %v", err)
	}
	if fd := int(os.Stdout.Fd()); term.IsTerminal(fd) {
		if w, h, err := term.GetSize(fd); err == nil {
			_ = pty.Setsize(ptm, &pty.Winsize{Cols: uint16(w), Rows: uint16(h)})
		}
	}

	t.cmd.Stdin = pts
	t.cmd.Stdout = pts
	t.cmd.Stderr = pts
	t.cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true}

	if err := t.cmd.Start(); err != nil {
		_ = ptm.Close()
		_ = pts.Close()
		return fmt.Errorf("failed to start %s: %w", t.cmd.Path, err)
	}
	// the child holds its own copy
	_ = pts.Close()
	t.tty = ptm

	if out == nil {
		out = io.Discard
	}
	go func() {
		// ends with EIO once the child side closes
		_, _ = io.Copy(out, ptm)
		err := t.cmd.Wait()
		t.log.Debugf("terminal process exited: %v", err)
		close(t.done)
	}()
	return nil
}
