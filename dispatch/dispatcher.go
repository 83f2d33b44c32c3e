// Package dispatch runs the data path of a bridged service: inbound messages
// tagged with a type are decoded, handed to the transformer bound for the
// service and type, and results are sent back with the current average
// processing latency. Messages whose tag starts with '*' drive the service
// lifecycle instead.
package dispatch

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"vab-bridge/codec"
	"vab-bridge/logging"
	"vab-bridge/metrics"
	"vab-bridge/registry"
	"vab-bridge/service"
)

var (
	ErrDeserialization = errors.New("dispatch: deserialization failed")
	ErrTransformation  = errors.New("dispatch: transformation failed")
	ErrNoEmitter       = errors.New("dispatch: no transport attached")
)

// ServerTag carries opaque base64 bytes between the host and a service.
const ServerTag = "*SERVER"

// Emitter sends one outbound message. Implementations must be safe for use
// from the goroutines of asynchronous services.
type Emitter interface {
	Emit(typeTag string, avgMillis int64, payload string) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(typeTag string, avgMillis int64, payload string) error

func (f EmitterFunc) Emit(typeTag string, avgMillis int64, payload string) error {
	return f(typeTag, avgMillis, payload)
}

// Dispatcher is shared by the console and WebSocket transports.
type Dispatcher struct {
	ctx    *registry.Context
	logger *zap.Logger

	mu      sync.Mutex
	emitter Emitter
	count   int64
	avg     float64
}

// NewDispatcher creates a dispatcher resolving against ctx.
func NewDispatcher(ctx *registry.Context, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{ctx: ctx, logger: logging.OrNop(logger)}
}

// SetEmitter replaces the outbound sink; nil detaches it.
func (d *Dispatcher) SetEmitter(e Emitter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.emitter = e
}

// Average returns the rolling average processing time in milliseconds.
func (d *Dispatcher) Average() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(d.avg)
}

// record folds one latency sample into the rolling average:
// avg' = (avg*(n-1) + sample) / n, with n counted before averaging.
func (d *Dispatcher) record(sample time.Duration) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.count++
	ms := float64(sample) / float64(time.Millisecond)
	d.avg = (d.avg*float64(d.count-1) + ms) / float64(d.count)
	return int64(d.avg)
}

// AttachServices hands every registered service the callbacks through which it
// reaches the transport: the ingestor for asynchronous results and the sender
// for raw server bytes.
func (d *Dispatcher) AttachServices() {
	for _, svc := range d.ctx.Services() {
		svc := svc
		if aware, ok := svc.(service.IngestorAware); ok {
			aware.AttachIngestor(func(data any) {
				if err := d.Ingest(data); err != nil {
					d.logger.Warn("ingest failed", zap.String("service", svc.ID()), zap.Error(err))
				}
			})
		}
		if ch, ok := svc.(service.ServerChannel); ok {
			ch.AttachServerSender(func(data []byte) {
				if err := d.emit(ServerTag, base64.StdEncoding.EncodeToString(data)); err != nil {
					d.logger.Warn("send server bytes failed", zap.String("service", svc.ID()), zap.Error(err))
				}
			})
		}
	}
}

// Ingest serializes a result under the tag registered for its type and sends
// it. Asynchronous services call it, possibly from their own goroutines.
func (d *Dispatcher) Ingest(data any) error {
	tag, err := d.ctx.TagOf(data)
	if err != nil {
		return err
	}
	s, err := d.ctx.Serializer(tag)
	if err != nil {
		return err
	}
	return d.send(tag, s, data)
}

// send serializes data with s and emits it under tag.
func (d *Dispatcher) send(tag string, s codec.Serializer, data any) error {
	text, err := s.WriteTo(data)
	if err != nil {
		return fmt.Errorf("serialize %s: %w", tag, err)
	}
	return d.emit(tag, text)
}

func (d *Dispatcher) emit(tag, payload string) error {
	d.mu.Lock()
	e := d.emitter
	avg := int64(d.avg)
	d.mu.Unlock()
	if e == nil {
		metrics.RecordDispatch(tag, metrics.OutcomeDropped)
		return ErrNoEmitter
	}
	return e.Emit(tag, avg, payload)
}

// Dispatch handles one inbound message for serviceID. Failures are logged
// here; the returned error is informational and never means the transport
// should stop.
func (d *Dispatcher) Dispatch(ctx context.Context, serviceID, typeTag, raw string) error {
	if strings.HasPrefix(typeTag, "*") {
		if err := d.control(serviceID, typeTag, raw); err != nil {
			metrics.RecordDispatch(typeTag, metrics.OutcomeDropped)
			return err
		}
		metrics.RecordDispatch(typeTag, metrics.OutcomeControl)
		return nil
	}
	return d.transform(serviceID, typeTag, raw)
}

func (d *Dispatcher) transform(serviceID, typeTag, raw string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrTransformation, r)
			d.logger.Error("transformer panicked",
				zap.String("service", serviceID),
				zap.String("type", typeTag),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			metrics.RecordDispatch(typeTag, metrics.OutcomeError)
		}
	}()

	s, err := d.ctx.Serializer(typeTag)
	if err != nil {
		d.logger.Warn("no serializer", zap.String("type", typeTag), zap.Error(err))
		metrics.RecordDispatch(typeTag, metrics.OutcomeNoHandler)
		return err
	}
	data, err := s.ReadFrom(raw)
	if err != nil {
		err = fmt.Errorf("%w: %s: %v", ErrDeserialization, typeTag, err)
		d.logger.Error("decode input", zap.String("type", typeTag), zap.Error(err))
		metrics.RecordDispatch(typeTag, metrics.OutcomeDecodeError)
		return err
	}

	t, err := d.ctx.Transformer(serviceID, typeTag)
	if err != nil {
		d.logger.Warn("no transformer", zap.String("key", registry.TransformerKey(serviceID, typeTag)))
		metrics.RecordDispatch(typeTag, metrics.OutcomeNoHandler)
		return err
	}

	start := time.Now()
	var result any
	if t.IsAsync() {
		err = t.Async(data)
	} else {
		result, err = t.Sync(data)
	}
	elapsed := time.Since(start)
	avg := d.record(elapsed)
	metrics.RecordTransform(typeTag, elapsed, avg)

	if err != nil {
		err = fmt.Errorf("%w: %s: %v", ErrTransformation, registry.TransformerKey(serviceID, typeTag), err)
		d.logger.Error("transform", zap.Error(err), zap.Stack("stack"))
		metrics.RecordDispatch(typeTag, metrics.OutcomeError)
		return err
	}
	metrics.RecordDispatch(typeTag, metrics.OutcomeOK)

	if t.IsAsync() || result == nil {
		return nil
	}
	if reflect.TypeOf(result) == s.Type() {
		err = d.send(typeTag, s, result)
	} else {
		err = d.Ingest(result)
	}
	if err != nil {
		d.logger.Error("forward result", zap.String("type", typeTag), zap.Error(err))
		return err
	}
	return nil
}
