package jetstream

import (
	"strings"
	"time"

	nats "github.com/nats-io/nats.go"
)

const (
	StreamName = "CHATLOOM"

	// MessageSubjects carries frozen assistant messages awaiting archival.
	MessageSubjects = "chatloom.msg.>"

	subjectPrefix = "chatloom.msg."
)

func EnsureStream(js nats.JetStreamContext) error {
	_, err := js.AddStream(&nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"chatloom.>"},
		Storage:   nats.FileStorage,
		MaxAge:    24 * time.Hour,
		Retention: nats.WorkQueuePolicy,
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return err
	}
	return nil
}

func MessageSubject(conversationID string) string {
	return subjectPrefix + conversationID
}
