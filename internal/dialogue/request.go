package dialogue

import (
	"encoding/json"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// requestSchema describes the demo chat request body.
const requestSchema = `{
  "type": "object",
  "required": ["messages"],
  "properties": {
    "messages": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["role", "content"],
        "properties": {
          "role": {"type": "string", "enum": ["user", "assistant"]},
          "content": {"type": "string"}
        }
      }
    }
  }
}`

var compiledRequestSchema = mustCompileSchema(requestSchema)

func mustCompileSchema(src string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic("dialogue: invalid request schema: " + err.Error())
	}
	return schema
}

// Request is the demo chat request body.
type Request struct {
	Messages Transcript `json:"messages"`
}

// ParseRequest validates a raw request body against the request schema and
// the transcript invariants. Every failure is a *ValidationError.
func ParseRequest(body []byte) (Transcript, error) {
	result, err := compiledRequestSchema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, &ValidationError{Message: "body is not valid JSON"}
	}
	if !result.Valid() {
		var details []string
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return nil, &ValidationError{Message: strings.Join(details, "; ")}
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}
	if err := req.Messages.Validate(); err != nil {
		return nil, err
	}
	return req.Messages, nil
}
