package dispatch

import (
	"encoding/base64"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"vab-bridge/registry"
	"vab-bridge/service"
)

// Control message tags. The payload is the plain argument, if any.
const (
	ControlSetState  = "*setstate"
	ControlMigrate   = "*migrate"
	ControlUpdate    = "*update"
	ControlSwitch    = "*switch"
	ControlRecfg     = "*recfg"
	ControlActivate  = "*activate"
	ControlPassivate = "*passivate"
)

type controlHandler func(svc service.Service, raw string) error

var controlHandlers = []struct {
	prefix string
	handle controlHandler
}{
	{ControlSetState, func(svc service.Service, raw string) error {
		st, err := service.ParseState(strings.TrimSpace(raw))
		if err != nil {
			return err
		}
		return svc.SetState(st)
	}},
	{ControlMigrate, func(svc service.Service, raw string) error { return svc.Migrate(raw) }},
	{ControlUpdate, func(svc service.Service, raw string) error { return svc.Update(raw) }},
	{ControlSwitch, func(svc service.Service, raw string) error { return svc.SwitchTo(raw) }},
	{ControlRecfg, func(svc service.Service, raw string) error {
		values, err := registry.MapArg([]any{raw}, 0)
		if err != nil {
			return err
		}
		return svc.Reconfigure(values)
	}},
	{ControlActivate, func(svc service.Service, raw string) error { return svc.Activate() }},
	{ControlPassivate, func(svc service.Service, raw string) error { return svc.Passivate() }},
	{ServerTag, func(svc service.Service, raw string) error {
		ch, ok := svc.(service.ServerChannel)
		if !ok {
			return fmt.Errorf("service %s has no server channel", svc.ID())
		}
		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("server bytes: %w", err)
		}
		return ch.ReceivedServerBytes(data)
	}},
}

// control routes a '*' message to the lifecycle of the addressed service.
func (d *Dispatcher) control(serviceID, typeTag, raw string) error {
	svc, err := d.ctx.Service(serviceID)
	if err != nil {
		d.logger.Warn("control message for unknown service dropped",
			zap.String("service", serviceID),
			zap.String("type", typeTag),
		)
		return err
	}

	for _, h := range controlHandlers {
		if !strings.HasPrefix(typeTag, h.prefix) {
			continue
		}
		if err := h.handle(svc, raw); err != nil {
			d.logger.Error("control message failed",
				zap.String("service", serviceID),
				zap.String("type", typeTag),
				zap.Error(err),
			)
			return err
		}
		d.logger.Debug("control message", zap.String("service", serviceID), zap.String("type", typeTag))
		return nil
	}

	d.logger.Warn("unknown control message dropped", zap.String("type", typeTag))
	return fmt.Errorf("%w: control %s", registry.ErrNotFound, typeTag)
}
