package dispatch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// TypeSeparator splits the type tag from the payload on a console line.
const TypeSeparator = "|"

// maxLineSize bounds one console line; images travel base64 encoded.
const maxLineSize = 64 << 20

// Console serves the dispatcher over line-oriented text streams, normally the
// process's stdin and stdout:
//
//	in:  typeTag|payload
//	out: typeTag|avgMillis|payload
//
// Lines are handled one at a time in the order they arrive.
type Console struct {
	d         *Dispatcher
	serviceID string
	logger    *zap.Logger

	mu sync.Mutex
	w  *bufio.Writer
}

// NewConsole creates a console transport for serviceID.
func NewConsole(d *Dispatcher, serviceID string) *Console {
	return &Console{d: d, serviceID: serviceID, logger: d.logger.Named("console")}
}

// Emit writes one outbound line.
func (c *Console) Emit(typeTag string, avgMillis int64, payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.w == nil {
		return ErrNoEmitter
	}
	if _, err := fmt.Fprintf(c.w, "%s%s%d%s%s\n", typeTag, TypeSeparator, avgMillis, TypeSeparator, payload); err != nil {
		return err
	}
	return c.w.Flush()
}

// Run reads lines from r until EOF or until ctx is done, writing results to w.
// A blocked read is only noticed once the next line arrives.
func (c *Console) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	c.mu.Lock()
	c.w = bufio.NewWriter(w)
	c.mu.Unlock()
	c.d.SetEmitter(c)
	c.d.AttachServices()
	defer c.d.SetEmitter(nil)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		typeTag, payload, ok := strings.Cut(line, TypeSeparator)
		if !ok || typeTag == "" {
			c.logger.Warn("no type name in line", zap.String("line", line))
			continue
		}
		c.d.Dispatch(ctx, c.serviceID, typeTag, payload)
	}
	return scanner.Err()
}
