package ledger

import "shogunrelay/internal/errs"

// PutPulse writes the relay's self-describing heartbeat record for host.
func (l *Ledger) PutPulse(p *Pulse) error {
	raw, err := encode(p)
	if err != nil {
		return err
	}
	if err := l.store.Set(pulseKey(p.Host), raw); err != nil {
		return errs.Wrap(errs.Backend, "ledger-put-pulse", "write pulse", err)
	}
	return nil
}

// GetPulse returns the last heartbeat written for host, or (nil, nil).
func (l *Ledger) GetPulse(host string) (*Pulse, error) {
	raw, err := l.store.Get(pulseKey(host))
	if err != nil {
		return nil, errs.Wrap(errs.Backend, "ledger-get-pulse", "read pulse", err)
	}
	if raw == nil {
		return nil, nil
	}
	var p Pulse
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPulses returns every known peer's last heartbeat.
func (l *Ledger) ListPulses() ([]*Pulse, error) {
	it, err := l.store.Iterator([]byte("relay/pulse/"))
	if err != nil {
		return nil, errs.Wrap(errs.Backend, "ledger-list-pulses", "iterate pulses", err)
	}
	defer it.Close()

	var out []*Pulse
	for it.Next() {
		var p Pulse
		if err := decode(it.Value(), &p); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, it.Error()
}
