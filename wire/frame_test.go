package wire_test

import (
	"testing"

	"github.com/ostrokach/biskit/id"
	"github.com/ostrokach/biskit/wire"
)

func TestGetCodec(t *testing.T) {
	if got := wire.GetCodec("json").Name(); got != wire.CodecNameJSON {
		t.Errorf("GetCodec(json) = %q", got)
	}
	if got := wire.GetCodec("").Name(); got != wire.CodecNameMsgpack {
		t.Errorf("GetCodec(\"\") = %q, want msgpack default", got)
	}
	if got := wire.GetCodec("bogus").Name(); got != wire.CodecNameMsgpack {
		t.Errorf("GetCodec(bogus) = %q, want msgpack fallback", got)
	}
}

func TestChunkFrameRoundTrip(t *testing.T) {
	workerID := id.NewWorkerID()
	chunkID := id.NewChunkID()
	f := wire.NewChunkFrame(workerID, chunkID, map[string][]byte{
		"item-1": []byte("payload-1"),
		"item-2": []byte("payload-2"),
	})

	for _, codec := range []wire.Codec{&wire.JSONCodec{}, &wire.MsgpackCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			data, err := codec.Encode(f)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			got, err := codec.Decode(data)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Type != wire.FrameChunk {
				t.Errorf("type = %q, want chunk", got.Type)
			}
			if got.WorkerID != workerID.String() {
				t.Errorf("worker = %q, want %q", got.WorkerID, workerID)
			}
			if got.ChunkID != chunkID.String() {
				t.Errorf("chunk = %q, want %q", got.ChunkID, chunkID)
			}
			if string(got.Items["item-2"]) != "payload-2" {
				t.Errorf("items[item-2] = %q", got.Items["item-2"])
			}
		})
	}
}

func TestErrorFrame(t *testing.T) {
	f := wire.NewErrorFrame(id.NewWorkerID(), id.NewChunkID(), "boom")
	if f.Error == nil || f.Error.Message != "boom" {
		t.Errorf("error detail = %+v", f.Error)
	}

	codec := &wire.MsgpackCodec{}
	data, err := codec.Encode(f)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := codec.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Error == nil || got.Error.Message != "boom" {
		t.Errorf("decoded error = %+v", got.Error)
	}
}
