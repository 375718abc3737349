package prompt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

type Confirmer struct {
	In            io.Reader
	Out           io.Writer
	IsInteractive func() bool
}

func DefaultConfirmer() Confirmer {
	return Confirmer{
		In:  os.Stdin,
		Out: os.Stderr,
		IsInteractive: func() bool {
			info, err := os.Stdin.Stat()
			if err != nil {
				return false
			}
			return (info.Mode() & os.ModeCharDevice) != 0
		},
	}
}

// Confirm asks a yes/no question. force answers yes without asking;
// a non-interactive stdin is an error naming the flag that skips the prompt.
func (c Confirmer) Confirm(question, skipFlag string, force bool) (bool, error) {
	if force {
		return true, nil
	}
	if c.IsInteractive == nil || !c.IsInteractive() {
		return false, fmt.Errorf("non-interactive stdin: use %s to proceed", skipFlag)
	}
	if c.Out != nil {
		fmt.Fprintf(c.Out, "%s (y/n): ", question)
	}
	reader := bufio.NewReader(c.In)
	response, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes", nil
}

// ConfirmOverwrite asks before replacing existing output files.
func (c Confirmer) ConfirmOverwrite(paths []string, force bool) (bool, error) {
	if len(paths) == 0 {
		return true, nil
	}
	question := fmt.Sprintf("Warning: Output file %s already exists. Overwrite?", paths[0])
	if len(paths) > 1 {
		question = fmt.Sprintf("Warning: %d output files already exist (first: %s). Overwrite?", len(paths), paths[0])
	}
	return c.Confirm(question, "-y", force)
}
