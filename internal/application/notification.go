package application

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/RaikyD/storefront-orders/internal/domain"
)

// Notification is the part of a gateway notification the reconciler trusts: which
// topic it is about and which payment to look up. Any embedded status is ignored.
type Notification struct {
	Topic     string
	PaymentID string
}

type notificationBody struct {
	Type   string     `json:"type"`
	Topic  string     `json:"topic"`
	Action string     `json:"action"`
	ID     flexString `json:"id"`
	Data   struct {
		ID flexString `json:"id"`
	} `json:"data"`
}

// DecodeNotification reads the JSON notification body. Both the newer
// {type, action, data:{id}} shape and the legacy {topic, id} shape are accepted.
func DecodeNotification(raw []byte) (Notification, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Notification{}, nil
	}
	var body notificationBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", domain.ErrMalformedNotification, err)
	}
	n := Notification{
		Topic:     firstNonEmpty(body.Type, body.Topic),
		PaymentID: firstNonEmpty(string(body.Data.ID), string(body.ID)),
	}
	if n.Topic == "" {
		if prefix, _, ok := strings.Cut(body.Action, "."); ok {
			n.Topic = prefix
		}
	}
	return n, nil
}

// Merge fills fields missing from n with the ones in other.
func (n Notification) Merge(other Notification) Notification {
	return Notification{
		Topic:     firstNonEmpty(n.Topic, other.Topic),
		PaymentID: firstNonEmpty(n.PaymentID, other.PaymentID),
	}
}

type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*f = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*f = flexString(n.String())
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
