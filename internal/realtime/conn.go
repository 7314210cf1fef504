package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/livedoc/internal/docstore"
)

// Conn is a live subscriber connection.
//
// The attachment is opaque state stored on the connection itself. The
// coordinator persists the subscription's query there so Recover can
// rebuild the registry without a client round trip.
type Conn interface {
	ID() string
	Send(ctx context.Context, frame []byte) error
	Close(reason string) error
	Attachment() []byte
	SetAttachment(data []byte)
}

// Frame types.
const (
	FrameSubscribed = "subscribed"
	FrameData       = "data"
)

// Keepalive messages.
const (
	PingMessage = "ping"
	PongMessage = "pong"
)

type subscribedFrame struct {
	Type  string         `json:"type"`
	Query map[string]any `json:"query"`
}

type dataFrame struct {
	Type  string              `json:"type"`
	Query map[string]any      `json:"query"`
	Data  []docstore.Document `json:"data"`
}

func encodeSubscribed(p QueryParams) ([]byte, error) {
	return json.Marshal(subscribedFrame{Type: FrameSubscribed, Query: p.Map()})
}

func encodeData(p QueryParams, docs []docstore.Document) ([]byte, error) {
	if docs == nil {
		docs = []docstore.Document{}
	}
	data, err := json.Marshal(dataFrame{Type: FrameData, Query: p.Map(), Data: docs})
	if err != nil {
		return nil, fmt.Errorf("encode data frame: %w", err)
	}
	return data, nil
}

func encodeAttachment(p QueryParams) ([]byte, error) {
	return json.Marshal(p)
}

func decodeAttachment(data []byte) (QueryParams, error) {
	var p QueryParams
	if len(data) == 0 {
		return p, fmt.Errorf("%w: empty attachment", ErrInvalidQuery)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("%w: decode attachment: %w", ErrInvalidQuery, err)
	}
	return p, nil
}
