package orderbook

import (
	"go.uber.org/zap"

	"github.com/luxdex/core/pkg/types"
	"github.com/luxdex/core/pkg/x18"
)

// Listener is the book's one outbound interface (§4.3, §6). Calls happen
// synchronously inside the book's writer-lock critical section, so
// implementations must be non-blocking and allocation-light; heavy work
// belongs on a follow-on goroutine fed by a channel.
type Listener interface {
	OnTrade(t types.Trade)
	OnOrderFilled(o *types.Order)
	OnOrderPartiallyFilled(o *types.Order, fillQty x18.Num)
	OnOrderCancelled(o *types.Order)
}

// NoopListener implements Listener with no-ops; it is the default when no
// listener is attached.
type NoopListener struct{}

func (NoopListener) OnTrade(types.Trade)                              {}
func (NoopListener) OnOrderFilled(*types.Order)                       {}
func (NoopListener) OnOrderPartiallyFilled(*types.Order, x18.Num)     {}
func (NoopListener) OnOrderCancelled(*types.Order)                    {}

var defaultListener Listener = NoopListener{}

// notify invokes the listener, trapping and logging any panic so a
// misbehaving listener can never bring down the matching loop (§7:
// "Listener notifications are best-effort and must not throw").
func notify(log *zap.Logger, fn func()) {
	defer func() {
		if r := recover(); r != nil && log != nil {
			log.Error("listener panic recovered", zap.Any("panic", r))
		}
	}()
	fn()
}
