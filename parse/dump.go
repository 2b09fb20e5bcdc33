package parse

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
)

// Renders a GTFS Realtime protobuf message as indented JSON, for
// inspecting what the upstream feed actually contained.
func RealtimeJSON(feed []byte) ([]byte, error) {
	f, err := decodeMessage(feed)
	if err != nil {
		return nil, err
	}

	out, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshaling json: %w", err)
	}

	return out, nil
}
