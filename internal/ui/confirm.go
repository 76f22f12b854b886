package ui

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/mattn/go-isatty"

	"github.com/leighmcculloch/orbit/internal/lifecycle"
)

// Confirmer asks yes/no questions. On a terminal it uses an interactive
// prompt; otherwise it reads one line from its input.
type Confirmer struct {
	in          io.Reader
	out         io.Writer
	interactive bool
}

var _ lifecycle.Confirmer = (*Confirmer)(nil)

// NewConfirmer returns a Confirmer reading answers from in.
func NewConfirmer(in io.Reader, out io.Writer) *Confirmer {
	return &Confirmer{in: in, out: out, interactive: isTerminal(in) && isTerminal(out)}
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Confirm implements lifecycle.Confirmer. Anything but an explicit yes is a
// no.
func (c *Confirmer) Confirm(prompt string) (bool, error) {
	if c.interactive {
		p := promptui.Prompt{
			Label:     prompt,
			IsConfirm: true,
			Stdin:     io.NopCloser(c.in),
			Stdout:    &bellFilterWriter{w: c.out},
		}
		if _, err := p.Run(); err != nil {
			if errors.Is(err, promptui.ErrAbort) || errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
				return false, nil
			}
			return false, fmt.Errorf("reading confirmation: %w", err)
		}
		return true, nil
	}

	fmt.Fprintf(c.out, "%s [y/N] ", prompt)
	line, err := bufio.NewReader(c.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("reading confirmation: %w", err)
	}
	fmt.Fprintln(c.out)
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// bellFilterWriter drops the terminal bell promptui rings on every key.
type bellFilterWriter struct {
	w io.Writer
}

func (b *bellFilterWriter) Write(p []byte) (int, error) {
	if bytes.IndexByte(p, '\a') == -1 {
		if _, err := b.w.Write(p); err != nil {
			return 0, err
		}
		return len(p), nil
	}
	if _, err := b.w.Write(bytes.ReplaceAll(p, []byte{'\a'}, nil)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (b *bellFilterWriter) Close() error {
	return nil
}
