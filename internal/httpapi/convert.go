package httpapi

import (
	"encoding/json"

	"google.golang.org/protobuf/types/known/structpb"
)

// Ledger payloads travel over protobuf as well-known Struct/Value messages
// whose fields mirror the JSON names, so both encodings share one schema.

func structToValue(msg *structpb.Struct, v any) error {
	raw, err := json.Marshal(msg.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func valueToProto(v any) (*structpb.Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return structpb.NewValue(generic)
}
