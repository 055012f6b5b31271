package subscription

import (
	"context"

	"github.com/ankurah/ankurah/internal/entity"
	"github.com/ankurah/ankurah/internal/eventdag"
	"github.com/ankurah/ankurah/internal/reactor"
)

// ReactorNotifier adapts a *reactor.Reactor into a ChangeHandler: every
// entity change the UpdateApplier produces is turned into membership
// notifications and dispatched to the subscriptions they affect, per
// spec.md §4.6 step 4 ("notify the reactor with a batch of EntityChange").
type ReactorNotifier struct {
	Reactor *reactor.Reactor
}

func (n *ReactorNotifier) Handle(ctx context.Context, collection string, old, current *entity.Entity, events []eventdag.EventID) {
	var oldMember reactor.Member
	if old != nil {
		oldMember = old
	}
	notifications := n.Reactor.ApplyChange(ctx, oldMember, current, collection, events)
	n.Reactor.Dispatch(notifications)
}
