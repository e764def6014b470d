package main

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// defaultRawConfirm implements the "Continue Y/N?" prompt (spec.md §4.7)
// by reading a single un-echoed keystroke, case-insensitive. When stdin
// isn't a terminal (piped input, a test harness), it falls back to a
// plain line read so the tool stays scriptable.
func defaultRawConfirm() (bool, error) {
	fmt.Print("Continue Y/N? ")

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		var line string
		fmt.Scanln(&line)
		return len(line) > 0 && (line[0] == 'y' || line[0] == 'Y'), nil
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return false, fmt.Errorf("raw terminal mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	buf := make([]byte, 1)
	if _, err := os.Stdin.Read(buf); err != nil {
		return false, fmt.Errorf("read keystroke: %w", err)
	}
	fmt.Println()

	c := buf[0]
	return c == 'y' || c == 'Y', nil
}
