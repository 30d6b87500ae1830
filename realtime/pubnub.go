package realtime

import (
	pubnub "github.com/pubnub/go"
)

// PubNubTransport publishes updates through PubNub. Channel membership is
// client-side with PubNub (subscribers pick their own channels), so
// JoinChannel has nothing to do server-side.
type PubNubTransport struct {
	pn *pubnub.PubNub
}

func NewPubNubTransport(publishKey, subscribeKey, secretKey string) *PubNubTransport {
	config := pubnub.NewConfig()
	config.PublishKey = publishKey
	config.SubscribeKey = subscribeKey
	config.SecretKey = secretKey

	return &PubNubTransport{pn: pubnub.NewPubNub(config)}
}

func (t *PubNubTransport) JoinChannel(connectionID, channel string) error {
	return nil
}

func (t *PubNubTransport) Emit(channel, event string, payload map[string]any) error {
	message := map[string]any{"type": event}
	for key, value := range payload {
		message[key] = value
	}

	_, _, err := t.pn.Publish().
		Channel(channel).
		Message(message).
		Execute()
	return err
}
