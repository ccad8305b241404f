package line

import (
	"context"
	"fmt"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// Pusher sends outbound messages to LINE users on behalf of a shop. The
// channel token is per-shop, so the SDK client is built per call.
type Pusher interface {
	PushText(ctx context.Context, channelToken, to, text string) error
}

// MessagingPusher pushes through the LINE Messaging API.
type MessagingPusher struct{}

var _ Pusher = (*MessagingPusher)(nil)

// NewMessagingPusher constructs the default Pusher.
func NewMessagingPusher() *MessagingPusher {
	return &MessagingPusher{}
}

// PushText delivers a single text message to the given LINE user.
func (p *MessagingPusher) PushText(ctx context.Context, channelToken, to, text string) error {
	api, err := messaging_api.NewMessagingApiAPI(channelToken)
	if err != nil {
		return fmt.Errorf("messaging api client: %w", err)
	}

	_, err = api.PushMessage(&messaging_api.PushMessageRequest{
		To: to,
		Messages: []messaging_api.MessageInterface{
			messaging_api.TextMessage{Text: text},
		},
	}, "")
	if err != nil {
		return fmt.Errorf("push message: %w", err)
	}
	return nil
}
