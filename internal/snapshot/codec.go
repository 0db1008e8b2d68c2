package snapshot

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/hanpama/normcache/internal/store"
)

// Codec encodes snapshot documents for byte-oriented sinks.
type Codec interface {
	Name() string
	ContentType() string
	Marshal(snap store.Snapshot) ([]byte, error)
	Unmarshal(data []byte, snap *store.Snapshot) error
}

// CodecByName returns the codec registered under name. An empty name selects
// JSON.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "proto":
		return ProtoCodec{}, nil
	}
	return nil, fmt.Errorf("snapshot: unknown codec %q", name)
}

// JSONCodec stores the snapshot as a JSON document.
type JSONCodec struct{}

func (JSONCodec) Name() string        { return "json" }
func (JSONCodec) ContentType() string { return "application/json" }

func (JSONCodec) Marshal(snap store.Snapshot) ([]byte, error) {
	return json.Marshal(snap)
}

func (JSONCodec) Unmarshal(data []byte, snap *store.Snapshot) error {
	return json.Unmarshal(data, snap)
}

// ProtoCodec stores the snapshot as a binary google.protobuf.Struct of the
// JSON document.
type ProtoCodec struct{}

func (ProtoCodec) Name() string        { return "proto" }
func (ProtoCodec) ContentType() string { return "application/x-protobuf" }

func (ProtoCodec) Marshal(snap store.Snapshot) ([]byte, error) {
	doc, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, err
	}
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("snapshot: proto encode: %w", err)
	}
	return proto.Marshal(st)
}

func (ProtoCodec) Unmarshal(data []byte, snap *store.Snapshot) error {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("snapshot: proto decode: %w", err)
	}
	doc, err := json.Marshal(st.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(doc, snap)
}
