package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
)

func decodePushMessage(raw []byte, msg *PushMessage) error {
	if err := json.Unmarshal(raw, msg); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if msg.To == "" {
		return errors.New("signaling: push message missing target")
	}
	return msg.Event.Validate()
}
