package eventbus

import (
	"fmt"

	"github.com/nats-io/nats.go"
)

const (
	// StreamUpdates is the JetStream stream every collection's per-entity
	// broadcasts are published to.
	StreamUpdates = "ANKURAH_UPDATES"

	// SubjectPrefix is the subject prefix for all broadcast envelopes;
	// the full subject is SubjectPrefix + "<collection>".
	SubjectPrefix = "ankurah.updates."
)

// SubjectForCollection returns the NATS subject a collection's entity
// updates are published and subscribed on.
func SubjectForCollection(collection string) string {
	return SubjectPrefix + collection
}

// EnsureStreams creates the required JetStream stream if it doesn't already
// exist. Called during ankurahd startup once NATS is up.
func EnsureStreams(js nats.JetStreamContext) error {
	if _, err := js.StreamInfo(StreamUpdates); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     StreamUpdates,
			Subjects: []string{SubjectPrefix + ">"},
			Storage:  nats.FileStorage,
			// Retain a bounded recent window; a peer that's been offline
			// longer than this falls back to state bootstrap rather than
			// replaying every missed event.
			MaxMsgs:  100000,
			MaxBytes: 256 << 20,
		})
		if err != nil {
			return fmt.Errorf("create %s stream: %w", StreamUpdates, err)
		}
	}
	return nil
}
