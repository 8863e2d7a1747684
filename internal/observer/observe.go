package observer

import (
	"errors"
	"fmt"

	"github.com/alanyoungcy/coinwatch/internal/domain"
)

// Source is a stream of raw feed events keyed by the same event names the
// tracker publishes. feed.BitstampStream implements it.
type Source interface {
	Listen(event string, fn any) (ListenerID, error)
	Unlisten(event string, id ListenerID) error
}

// Observe attaches the tracker to src. Subscribing activates the source's
// channels; the returned detach func removes the tracker again, which lets
// the source close channels nobody else uses.
func (t *Tracker) Observe(src Source) (detach func() error, err error) {
	type reg struct {
		event string
		id    ListenerID
	}
	var regs []reg

	undo := func() error {
		var errs []error
		for i := len(regs) - 1; i >= 0; i-- {
			if err := src.Unlisten(regs[i].event, regs[i].id); err != nil {
				errs = append(errs, err)
			}
		}
		regs = nil
		return errors.Join(errs...)
	}

	handlers := []struct {
		event string
		fn    any
	}{
		{EventOrderBook, func(b domain.OrderBook) { _ = t.OnOrderBook(b) }},
		{EventTrade, func(tr domain.Trade) { t.OnTrade(tr) }},
		{EventOrderChange, func(c domain.OrderChange) { t.OnOrderChange(c) }},
	}
	for _, h := range handlers {
		id, err := src.Listen(h.event, h.fn)
		if err != nil {
			_ = undo()
			return nil, fmt.Errorf("observer: observe %s: %w", h.event, err)
		}
		regs = append(regs, reg{event: h.event, id: id})
	}
	return undo, nil
}
