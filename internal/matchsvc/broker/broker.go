package broker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/versusgg/versus-services/internal/comm"
	"github.com/versusgg/versus-services/internal/matchsvc/service"
)

// Broker bridges the coordinator and the settler over NATS. The coordinator
// publishes match.completed from the winning CompleteOnce call; one settler
// in the queue group consumes it.
type Broker struct {
	Conn    *nats.Conn
	Settler *service.SettlerService
}

func NewBroker(nc *nats.Conn, settler *service.SettlerService) *Broker {
	return &Broker{Conn: nc, Settler: settler}
}

// PublishMatchCompleted emits the settlement event. Implements
// service.Publisher.
func (b *Broker) PublishMatchCompleted(ev *comm.MatchCompleted) error {
	bytes, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.Conn.Publish(comm.SubjectMatchCompleted, bytes)
}

// SubscribeMatchCompleted starts consuming settlement events. The queue
// group keeps a single consumer per event even with several settler
// instances; duplicates beyond that are absorbed by the settler's own
// (match, user) dedup.
func (b *Broker) SubscribeMatchCompleted(queue string) (*nats.Subscription, error) {
	return b.Conn.QueueSubscribe(comm.SubjectMatchCompleted, queue, b.handleMatchCompleted)
}

func (b *Broker) handleMatchCompleted(msgNat *nats.Msg) {
	ev := &comm.MatchCompleted{}
	if err := json.Unmarshal(msgNat.Data, ev); err != nil {
		log.Errorf("Error nats message %s", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := b.Settler.Settle(ctx, ev); err != nil {
		log.Errorf("Error [Settler.Settle] match %s: %s", ev.MatchID, err)
		return
	}
	log.Infof("settled match %s (%s)", ev.MatchID, ev.Result)
}
