package tui

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/aymanbagabas/go-osc52/v2"

	"github.com/jmylchreest/compstack/internal/config"
)

// clipboardTools are tried in order when no command is configured.
var clipboardTools = [][]string{
	{"xclip", "-selection", "clipboard"},
	{"xsel", "--clipboard", "--input"},
	{"wl-copy"},
}

// clipboard copies text with an external tool, or with an OSC 52 escape
// when none is installed. OSC 52 also works over ssh.
type clipboard struct {
	argv []string
	term io.Writer
}

func newClipboard(cfg *config.Config) clipboard {
	c := clipboard{term: os.Stderr}
	if cfg != nil && cfg.Clipboard.Command != "" {
		c.argv = strings.Fields(cfg.Clipboard.Command)
		return c
	}
	for _, tool := range clipboardTools {
		if _, err := exec.LookPath(tool[0]); err == nil {
			c.argv = tool
			break
		}
	}
	return c
}

// Copy places text on the clipboard.
func (c clipboard) Copy(text string) error {
	if len(c.argv) == 0 {
		if c.term == nil {
			return fmt.Errorf("no clipboard command available")
		}
		_, err := osc52.New(text).WriteTo(c.term)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...)
	cmd.Stdin = strings.NewReader(text)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", c.argv[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}
