// Package wire converts external message records into the canonical
// model.RawMessage. It is the only place that knows about alternate field
// spellings; nothing past Decode sees them.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/capitalize-ai/chatsync/internal/model"
)

// aliases maps each canonical field to the folded key spellings accepted for
// it, in order of preference. Keys are folded by lower-casing and dropping
// '_' and '-', so "sender_id", "senderId" and "SenderID" are one spelling.
var aliases = map[string][]string{
	"id":         {"id", "messageid"},
	"sender":     {"senderid", "sender", "fromid"},
	"receiver":   {"receiverid", "recipientid", "receiver", "toid"},
	"content":    {"content", "text", "body"},
	"image":      {"imageref", "imageurl", "attachmenturl", "image"},
	"created_at": {"createdat", "timestamp", "sentat"},
	"is_read":    {"isread", "read"},
}

// Decode parses one JSON record.
func Decode(data []byte) (model.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return model.RawMessage{}, fmt.Errorf("failed to decode message record: %w", err)
	}

	folded := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		fk := fold(k)
		if _, dup := folded[fk]; !dup {
			folded[fk] = v
		}
	}

	var raw model.RawMessage
	var err error

	if raw.ID, err = intField(folded, "id"); err != nil {
		return model.RawMessage{}, err
	}
	if raw.SenderID, err = stringField(folded, "sender"); err != nil {
		return model.RawMessage{}, err
	}
	if raw.ReceiverID, err = stringField(folded, "receiver"); err != nil {
		return model.RawMessage{}, err
	}
	if raw.Content, err = stringField(folded, "content"); err != nil {
		return model.RawMessage{}, err
	}
	if raw.ImageRef, err = stringField(folded, "image"); err != nil {
		return model.RawMessage{}, err
	}
	if raw.CreatedAt, err = stringField(folded, "created_at"); err != nil {
		return model.RawMessage{}, err
	}
	if raw.IsRead, err = boolField(folded, "is_read"); err != nil {
		return model.RawMessage{}, err
	}

	if raw.ID < 0 {
		raw.ID = 0
	}
	return raw, nil
}

// Encode serializes a record in the canonical spelling.
func Encode(raw model.RawMessage) ([]byte, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message record: %w", err)
	}
	return data, nil
}

func fold(key string) string {
	key = strings.ToLower(key)
	return strings.NewReplacer("_", "", "-", "").Replace(key)
}

func lookup(fields map[string]json.RawMessage, name string) (json.RawMessage, bool) {
	for _, k := range aliases[name] {
		if v, ok := fields[k]; ok && !isNull(v) {
			return v, true
		}
	}
	return nil, false
}

func isNull(v json.RawMessage) bool {
	return len(bytes.TrimSpace(v)) == 0 || string(bytes.TrimSpace(v)) == "null"
}

// stringField accepts JSON strings and numbers.
func stringField(fields map[string]json.RawMessage, name string) (string, error) {
	v, ok := lookup(fields, name)
	if !ok {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("field %s: expected string, got %s", name, v)
}

// intField accepts JSON numbers and numeric strings.
func intField(fields map[string]json.RawMessage, name string) (int64, error) {
	s, err := stringField(fields, name)
	if err != nil || s == "" {
		return 0, err
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("field %s: expected integer, got %q", name, s)
	}
	return n, nil
}

// boolField accepts JSON booleans, 0/1 and "true"/"false".
func boolField(fields map[string]json.RawMessage, name string) (bool, error) {
	v, ok := lookup(fields, name)
	if !ok {
		return false, nil
	}
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return b, nil
	}
	s, err := stringField(fields, name)
	if err != nil {
		return false, err
	}
	b, err = strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("field %s: expected boolean, got %q", name, s)
	}
	return b, nil
}
