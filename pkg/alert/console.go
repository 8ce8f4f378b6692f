package alert

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Console prints captions to a writer, typically stdout.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole creates a console notifier.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) Name() string { return "console" }

func (c *Console) Send(_ context.Context, n *Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "%s\n%s\n", n.Caption, strings.Repeat("-", 40))
	return err
}
