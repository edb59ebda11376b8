package notify

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

var errMissingMessagingClient = errors.New("messaging client is required")

// FCMSenderConfig configures the Firebase Cloud Messaging adapter.
type FCMSenderConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FCMSender implements MulticastSender on top of Firebase Cloud Messaging.
type FCMSender struct {
	client *messaging.Client
}

// NewFCMSender initializes the Firebase app and its messaging client. When no
// credentials file is configured the SDK falls back to application default
// credentials.
func NewFCMSender(ctx context.Context, cfg FCMSenderConfig) (*FCMSender, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: firebase app init failed: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("notify: messaging client init failed: %w", err)
	}
	return &FCMSender{client: client}, nil
}

// Send submits one multicast request and maps the SDK's per-token responses
// to index-aligned outcomes.
func (s *FCMSender) Send(ctx context.Context, msg Message) ([]Outcome, error) {
	if s.client == nil {
		return nil, errMissingMessagingClient
	}

	badge := msg.Hints.Badge
	multicast := &messaging.MulticastMessage{
		Tokens: msg.Tokens,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Alert: &messaging.ApsAlert{
						Title: msg.Title,
						Body:  msg.Body,
					},
					Sound: msg.Hints.Sound,
					Badge: &badge,
				},
			},
		},
		Android: &messaging.AndroidConfig{
			Priority: msg.Hints.Priority,
		},
	}

	response, err := s.client.SendEachForMulticast(ctx, multicast)
	if err != nil {
		return nil, fmt.Errorf("notify: multicast send failed: %w", err)
	}

	outcomes := make([]Outcome, len(response.Responses))
	for i, sendResponse := range response.Responses {
		if sendResponse.Success {
			outcomes[i] = Outcome{Delivered: true}
			continue
		}
		outcomes[i] = Outcome{FailureCode: failureCode(sendResponse.Error)}
	}
	return outcomes, nil
}

// failureCode maps an SDK error to the dispatcher's classification codes.
func failureCode(err error) string {
	switch {
	case err == nil:
		return FailureCodeUnknown
	case messaging.IsUnregistered(err):
		return FailureCodeUnregistered
	case messaging.IsInvalidArgument(err):
		return FailureCodeInvalidArgument
	default:
		return FailureCodeUnknown
	}
}
