package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

func isInteractiveInput() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func isInteractiveOutput() bool {
	info, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// readPromptLineContext reads one line, giving up when ctx is done. The
// reading goroutine is left blocked on the reader in that case.
func readPromptLineContext(ctx context.Context, reader *bufio.Reader) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := reader.ReadString('\n')
		ch <- result{line: line, err: err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil && !(r.err == io.EOF && r.line != "") {
			return "", r.err
		}
		return strings.TrimSpace(r.line), nil
	}
}

// confirm asks a yes/no question; anything but y/yes is a no.
func confirm(ctx context.Context, out io.Writer, reader *bufio.Reader, label string) (bool, error) {
	if _, err := fmt.Fprintf(out, "%s [y/N]: ", label); err != nil {
		return false, err
	}
	answer, err := readPromptLineContext(ctx, reader)
	if err == io.EOF {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
