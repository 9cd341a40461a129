package services

import (
	"context"
	"fmt"

	"safetrails/internal/models"
	"safetrails/pkg/logger"
	"safetrails/pkg/sms"
)

// notificationService fans an SOS ticket out to its contact snapshot through
// an SMS provider. It satisfies ContactDispatcher; the caller only learns
// whether the dispatch request was accepted, never whether a message landed.
type notificationService struct {
	provider sms.SMSProvider
	logger   *logger.Logger
}

func NewNotificationService(provider sms.SMSProvider, log *logger.Logger) ContactDispatcher {
	return &notificationService{
		provider: provider,
		logger:   log,
	}
}

func (s *notificationService) Dispatch(ctx context.Context, ticket *models.SOSRequest) error {
	if s.provider == nil {
		return fmt.Errorf("no sms provider configured")
	}

	message := fmt.Sprintf(
		"EMERGENCY: an SOS (%s) was triggered near %s. Last position: %.5f, %.5f.",
		ticket.SOSType, ticket.Location, ticket.Latitude, ticket.Longitude,
	)

	requests := make([]*sms.SMSRequest, 0, len(ticket.ContactSnapshot))
	for _, contact := range ticket.ContactSnapshot {
		requests = append(requests, &sms.SMSRequest{
			To:      contact.Phone,
			Message: message,
			Type:    "emergency",
		})
	}

	responses, err := s.provider.SendBulkSMS(ctx, requests)
	if err != nil {
		return fmt.Errorf("failed to request contact dispatch: %w", err)
	}

	for i, resp := range responses {
		if resp.Status == "failed" {
			s.logger.WithEntityID(ticket.ID).
				WithField("contact", ticket.ContactSnapshot[i].Name).
				Warn("dispatch request rejected for contact")
		}
	}

	return nil
}
