package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// maxRequestBody caps the request body size for both protobuf and JSON
// payloads.
const maxRequestBody = 16 << 10

const protobufContentType = "application/x-protobuf"

// isProtobuf reports whether the request body is a protobuf payload.
func isProtobuf(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	ct = strings.TrimSpace(ct)
	return ct == protobufContentType || ct == "application/protobuf"
}

// wantsProtobuf reports whether the caller asked for a protobuf response.
func wantsProtobuf(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, protobufContentType) || strings.Contains(accept, "application/protobuf")
}

// decodeBody fills v from a JSON body, or from a google.protobuf.Struct
// when the request is protobuf-encoded. Unknown JSON fields are rejected.
func decodeBody(c *gin.Context, v any) error {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRequestBody))
	if err != nil {
		return err
	}

	if isProtobuf(c.Request) {
		var msg structpb.Struct
		if err := proto.Unmarshal(body, &msg); err != nil {
			return err
		}
		return structToValue(&msg, v)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// respond writes v as JSON, or as a google.protobuf.Value when the caller
// accepts protobuf.
func respond(c *gin.Context, status int, v any) {
	if !wantsProtobuf(c.Request) {
		c.JSON(status, v)
		return
	}

	msg, err := valueToProto(v)
	if err == nil {
		var data []byte
		if data, err = proto.Marshal(msg); err == nil {
			c.Data(status, protobufContentType, data)
			return
		}
	}
	c.String(http.StatusInternalServerError, "proto marshal error")
}
