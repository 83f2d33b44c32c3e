package service

import (
	"sync"
)

// Record is the static description of a service plus its current state.
type Record struct {
	ID          string  `yaml:"id" json:"id"`
	Name        string  `yaml:"name" json:"name"`
	Version     Version `yaml:"version" json:"version"`
	Description string  `yaml:"description" json:"description"`
	Deployable  bool    `yaml:"deployable" json:"deployable"`
	TopLevel    bool    `yaml:"topLevel" json:"topLevel"`
	Kind        Kind    `yaml:"kind" json:"kind"`
	State       State   `yaml:"-" json:"state"`
}

// Service is the capability the control plane drives.
type Service interface {
	ID() string
	Name() string
	Version() Version
	Description() string
	IsDeployable() bool
	IsTopLevel() bool
	Kind() Kind
	State() State

	// SetState forces the state without validation.
	SetState(s State) error
	// Activate moves PASSIVATED to RUNNING, otherwise does nothing.
	Activate() error
	// Passivate moves RUNNING to PASSIVATED, otherwise does nothing.
	Passivate() error
	Migrate(resourceID string) error
	Update(location string) error
	SwitchTo(targetID string) error
	Reconfigure(values map[string]string) error
}

// Ingestor receives results produced asynchronously by a service.
type Ingestor func(data any)

// IngestorAware services accept the callback through which asynchronous
// transformers deliver their results.
type IngestorAware interface {
	AttachIngestor(ingest Ingestor)
}

// ServerChannel services exchange opaque bytes with the host over the
// *SERVER channel.
type ServerChannel interface {
	ReceivedServerBytes(data []byte) error
	AttachServerSender(send func(data []byte))
}

// Base implements Service with no-op extension points. Embed it and override
// what a concrete service needs.
type Base struct {
	mu       sync.RWMutex
	rec      Record
	ingest   Ingestor
	sendRaw  func([]byte)
	reconfig map[string]string
}

// NewBase creates a service in state AVAILABLE.
func NewBase(rec Record) *Base {
	rec.State = Available
	return &Base{rec: rec}
}

func (b *Base) ID() string          { return b.rec.ID }
func (b *Base) Name() string        { return b.rec.Name }
func (b *Base) Version() Version    { return b.rec.Version }
func (b *Base) Description() string { return b.rec.Description }
func (b *Base) IsDeployable() bool  { return b.rec.Deployable }
func (b *Base) IsTopLevel() bool    { return b.rec.TopLevel }
func (b *Base) Kind() Kind          { return b.rec.Kind }

func (b *Base) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.rec.State
}

// Record returns a snapshot of the service description.
func (b *Base) Record() Record {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.rec
}

func (b *Base) SetState(s State) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rec.State = s
	return nil
}

func (b *Base) Activate() error {
	b.transition(Passivated, Running)
	return nil
}

func (b *Base) Passivate() error {
	b.transition(Running, Passivated)
	return nil
}

func (b *Base) transition(from, to State) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rec.State != from {
		return false
	}
	b.rec.State = to
	return true
}

func (b *Base) Migrate(resourceID string) error { return nil }
func (b *Base) Update(location string) error    { return nil }
func (b *Base) SwitchTo(targetID string) error  { return nil }

// Reconfigure remembers the last values; concrete services read them with
// ReconfiguredValues.
func (b *Base) Reconfigure(values map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.reconfig == nil {
		b.reconfig = make(map[string]string, len(values))
	}
	for k, v := range values {
		b.reconfig[k] = v
	}
	return nil
}

// ReconfiguredValues returns a copy of all values received via Reconfigure.
func (b *Base) ReconfiguredValues() map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]string, len(b.reconfig))
	for k, v := range b.reconfig {
		out[k] = v
	}
	return out
}

func (b *Base) AttachIngestor(ingest Ingestor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ingest = ingest
}

// Ingest hands an asynchronously produced result to the transport. Results
// produced before a transport attached its ingestor are dropped.
func (b *Base) Ingest(data any) bool {
	b.mu.RLock()
	ingest := b.ingest
	b.mu.RUnlock()
	if ingest == nil {
		return false
	}
	ingest(data)
	return true
}

func (b *Base) AttachServerSender(send func(data []byte)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sendRaw = send
}

// ReceivedServerBytes ignores the data; override to handle the raw channel.
func (b *Base) ReceivedServerBytes(data []byte) error { return nil }

// SendServerBytes sends raw bytes to the host over the *SERVER channel.
func (b *Base) SendServerBytes(data []byte) bool {
	b.mu.RLock()
	send := b.sendRaw
	b.mu.RUnlock()
	if send == nil {
		return false
	}
	send(data)
	return true
}
