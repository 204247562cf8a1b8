package referral_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"

	"ms-speakers/internal/auth"
	"ms-speakers/internal/kafka"
	"ms-speakers/internal/logger"
	referral "ms-speakers/internal/referral/service"
)

// TicketIssuedHandler attributes referrals for tickets announced on the
// ticket-issued topic. Redelivery is harmless: attribution is once per ticket.
func TicketIssuedHandler(service ReferralService, log *logger.Logger) kafka.MessageHandler {
	return func(ctx context.Context, msg kafkago.Message) error {
		var event kafka.TicketIssuedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.Warn("REFERRAL", fmt.Sprintf("Dropping malformed ticket event at offset %d: %v", msg.Offset, err))
			return nil
		}
		if event.ReferralCode == "" {
			return nil
		}

		id := auth.NewIdentity("", event.Email)
		_, err := service.RecordAttribution(ctx, id, event.EventID)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, referral.ErrTicketNotFound),
			errors.Is(err, referral.ErrInvalidEvent),
			errors.Is(err, auth.ErrUnauthenticated):
			log.Warn("REFERRAL", fmt.Sprintf("Skipping ticket %s: %v", event.TicketID, err))
			return nil
		default:
			return err
		}
	}
}
