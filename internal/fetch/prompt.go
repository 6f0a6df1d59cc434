package fetch

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Prompter asks the operator a yes/no question. The read blocks without a
// timeout; it is only reached when automated recovery has run out of options.
type Prompter interface {
	Confirm(prompt string) bool
}

type stdinPrompter struct {
	in  io.Reader
	out io.Writer
}

// NewStdinPrompter returns a Prompter reading from stdin.
func NewStdinPrompter() Prompter {
	return &stdinPrompter{in: os.Stdin, out: os.Stdout}
}

// NewPrompter returns a Prompter over the given streams.
func NewPrompter(in io.Reader, out io.Writer) Prompter {
	return &stdinPrompter{in: in, out: out}
}

func (p *stdinPrompter) Confirm(prompt string) bool {
	fmt.Fprint(p.out, prompt)
	line, err := bufio.NewReader(p.in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
