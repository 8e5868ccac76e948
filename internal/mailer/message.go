// Package mailer provides the notification delivery pipeline: a Kafka-driven
// outbox relay plus configurable email backends.
package mailer

// Message is the canonical schema for messages on the mail-outbox Kafka
// topic. The relay publishes JSON-encoded Messages; the mail-sender consumer
// reads them and dispatches them to the configured email backend.
//
// JSON schema:
//
//	{
//	  "id":      "550e8400-e29b-41d4-a716-446655440000",
//	  "to":      "someone@example.com",
//	  "subject": "The raffle \"Playstation 5\" has finished!",
//	  "body":    "..."
//	}
type Message struct {
	// ID is the outbox record ID, used for idempotency and correlation.
	// The mail-sender logs this value alongside the delivery outcome so
	// duplicate sends can be detected when replaying a partition.
	ID string `json:"id"`

	// To is the recipient email address.
	To string `json:"to"`

	// Subject is the email subject line.
	Subject string `json:"subject"`

	// Body is the plain-text email body.
	Body string `json:"body"`
}
