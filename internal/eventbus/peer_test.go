package eventbus

import (
	"context"
	"testing"

	"github.com/ankurah/ankurah/internal/entity"
	"github.com/ankurah/ankurah/internal/idgen"
	"github.com/ankurah/ankurah/internal/subscription"
	"github.com/stretchr/testify/assert"
)

func TestBusPeerRegistryReportsSingleBroadcastSender(t *testing.T) {
	r := &BusPeerRegistry{Bus: New()}
	ent := entity.New(idgen.NewEntityID(), "tasks")

	peers := r.InterestedPeers("tasks", ent)
	assert.Len(t, peers, 1)
	assert.Contains(t, peers, broadcastPeerID)

	sender, ok := r.Sender(broadcastPeerID)
	assert.True(t, ok)
	assert.Equal(t, broadcastPeerID, sender.PeerID())

	_, ok = r.Sender("some-other-peer")
	assert.False(t, ok)
}

func TestBusPeerSenderSendRequiresJetStream(t *testing.T) {
	r := &BusPeerRegistry{Bus: New()}
	sender, ok := r.Sender(broadcastPeerID)
	assert.True(t, ok)

	item := subscription.UpdateItem{EntityID: idgen.NewEntityID(), Collection: "tasks"}
	err := sender.Send(context.Background(), item)
	assert.Error(t, err)
}
