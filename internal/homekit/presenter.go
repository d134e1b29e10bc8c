package homekit

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/brutella/hc"
	hcaccessory "github.com/brutella/hc/accessory"

	"github.com/nerrad567/rainbridge/internal/accessory"
	"github.com/nerrad567/rainbridge/internal/controller"
	"github.com/nerrad567/rainbridge/internal/infrastructure/config"
)

const (
	manufacturer = "Rain Bird"

	// bridgeAID is the HAP accessory ID of the bridge itself.
	bridgeAID = 1

	commandTimeout = 30 * time.Second
)

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// transport is the part of hc.Transport the presenter drives.
type transport interface {
	Start()
	Stop() <-chan struct{}
}

type transportFactory func(cfg hc.Config, bridge *hcaccessory.Accessory, accs ...*hcaccessory.Accessory) (transport, error)

func newIPTransport(cfg hc.Config, bridge *hcaccessory.Accessory, accs ...*hcaccessory.Accessory) (transport, error) {
	return hc.NewIPTransport(cfg, bridge, accs...)
}

// Presenter exposes accessory records as one HomeKit bridge.
//
// Attach and Detach may be called before and after Publish. Since a HAP
// bridge cannot change its accessory list while running, changes after
// Publish restart the transport.
type Presenter struct {
	cfg    config.HomeKitConfig
	logger Logger
	bridge *hcaccessory.Bridge

	mu        sync.Mutex
	entries   map[string]*entry
	transport transport
	published bool

	newTransport transportFactory
	spawn        func(func())
}

// NewPresenter creates a presenter for the bridge described by cfg.
func NewPresenter(cfg config.HomeKitConfig, version string, logger Logger) *Presenter {
	if logger == nil {
		logger = noopLogger{}
	}
	bridge := hcaccessory.NewBridge(hcaccessory.Info{
		Name:             cfg.BridgeName,
		Manufacturer:     manufacturer,
		Model:            "rainbridge",
		FirmwareRevision: version,
		ID:               bridgeAID,
	})
	return &Presenter{
		cfg:          cfg,
		logger:       logger,
		bridge:       bridge,
		entries:      make(map[string]*entry),
		newTransport: newIPTransport,
		spawn:        func(fn func()) { go fn() },
	}
}

// Attach exposes rec, driven by handle. Re-attaching an unchanged record
// only rebinds the handle.
func (p *Presenter) Attach(rec accessory.Record, handle controller.Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if old, ok := p.entries[rec.ID]; ok {
		if old.rec.Kind == rec.Kind && old.rec.Name == rec.Name && old.handle == handle {
			old.setRecord(rec)
			return nil
		}
		old.close()
	}

	e := &entry{rec: rec, handle: handle, presenter: p}
	if err := e.build(); err != nil {
		delete(p.entries, rec.ID)
		return fmt.Errorf("building %s accessory %s: %w", rec.Kind, rec.ID, err)
	}
	e.watch()
	e.refresh()
	p.entries[rec.ID] = e

	p.logger.Debug("accessory attached", "id", rec.ID, "kind", string(rec.Kind), "aid", e.acc.ID)
	return p.republish()
}

// Detach stops exposing the record with the given id.
func (p *Presenter) Detach(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[id]
	if !ok {
		return
	}
	e.close()
	delete(p.entries, id)

	p.logger.Debug("accessory detached", "id", id)
	if err := p.republish(); err != nil {
		p.logger.Error("failed to republish bridge", "error", err)
	}
}

// Publish starts serving the bridge with every attached accessory.
func (p *Presenter) Publish() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.published {
		return nil
	}
	if err := p.start(); err != nil {
		return err
	}
	p.published = true
	p.logger.Info("homekit bridge published",
		"name", p.cfg.BridgeName, "port", p.cfg.Port, "accessories", len(p.entries))
	return nil
}

// Published reports whether the bridge is being served.
func (p *Presenter) Published() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published
}

// Count returns the number of attached accessories.
func (p *Presenter) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Close stops the bridge and drops every accessory binding.
func (p *Presenter) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stop()
	p.published = false
	for id, e := range p.entries {
		e.close()
		delete(p.entries, id)
	}
	return nil
}

// republish restarts a published bridge so it serves the current set.
// Callers hold p.mu.
func (p *Presenter) republish() error {
	if !p.published {
		return nil
	}
	p.stop()
	if err := p.start(); err != nil {
		p.published = false
		return err
	}
	p.logger.Info("homekit bridge republished", "accessories", len(p.entries))
	return nil
}

// start creates the transport from the attached accessories, ordered by
// accessory ID so the bridge layout is stable. Callers hold p.mu.
func (p *Presenter) start() error {
	accs := make([]*hcaccessory.Accessory, 0, len(p.entries))
	for _, e := range p.entries {
		accs = append(accs, e.acc)
	}
	sort.Slice(accs, func(i, j int) bool { return accs[i].ID < accs[j].ID })

	t, err := p.newTransport(hc.Config{
		StoragePath: p.cfg.StoragePath,
		Pin:         p.cfg.Pin,
		Port:        p.cfg.Port,
	}, p.bridge.Accessory, accs...)
	if err != nil {
		return fmt.Errorf("creating homekit transport: %w", err)
	}
	p.transport = t
	go t.Start()
	return nil
}

// stop blocks until the running transport has shut down. Callers hold p.mu.
func (p *Presenter) stop() {
	if p.transport == nil {
		return
	}
	<-p.transport.Stop()
	p.transport = nil
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), commandTimeout)
}
