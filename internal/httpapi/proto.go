package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// maxRequestBody caps the request body size for both protobuf and JSON
// payloads.
const maxRequestBody = 64 << 10

// isProtobuf returns true if the request's Content-Type indicates a
// protobuf payload.
func isProtobuf(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return ct == "application/x-protobuf" ||
		ct == "application/protobuf" ||
		ct == "application/octet-stream"
}

// readProto reads the request body and unmarshals it into msg.
func readProto(r *http.Request, msg proto.Message) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return err
	}
	return proto.Unmarshal(body, msg)
}

// writeProto marshals msg and writes it with the given HTTP status.
func writeProto(w http.ResponseWriter, status int, msg proto.Message) {
	data, err := proto.Marshal(msg)
	if err != nil {
		http.Error(w, "proto marshal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-protobuf")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// decodeBody fills v from either a JSON body or a google.protobuf.Struct
// carrying the same fields.
func decodeBody(r *http.Request, v any) error {
	if !isProtobuf(r) {
		return decodeJSON(r, v)
	}
	var st structpb.Struct
	if err := readProto(r, &st); err != nil {
		return err
	}
	return structToValue(&st, v)
}

// respond writes v in the encoding the request arrived in.
func respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	if !isProtobuf(r) {
		writeJSON(w, status, v)
		return
	}
	st, err := valueToStruct(v)
	if err != nil {
		http.Error(w, "proto marshal error", http.StatusInternalServerError)
		return
	}
	writeProto(w, status, st)
}

func structToValue(st *structpb.Struct, v any) error {
	b, err := json.Marshal(st.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func valueToStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func readBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
}
