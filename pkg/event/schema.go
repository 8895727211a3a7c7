package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/chainbridge-labs/spine/pkg/contracts"
)

// rawInputSchema is the JSON Schema enforced at the ingress boundary, before
// Construct sees the input. Keeping it as a schema (rather than ad-hoc code)
// lets external submitters validate against the same contract.
const rawInputSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["event_type", "timestamp", "payload"],
  "properties": {
    "event_id":   {"type": "string", "minLength": 1, "maxLength": 128},
    "event_type": {"type": "string", "minLength": 1, "maxLength": 128},
    "timestamp":  {"type": "string", "minLength": 1},
    "payload":    {"type": "object", "minProperties": 1}
  },
  "additionalProperties": false
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const url = "https://chainbridge.schemas.local/spine/raw-event.schema.json"
	if err := c.AddResource(url, strings.NewReader(rawInputSchema)); err != nil {
		panic(fmt.Sprintf("event schema load failed: %v", err))
	}
	return c.MustCompile(url)
}

// ParseAndValidate decodes a raw JSON submission, checks it against the
// ingress schema and returns the typed RawInput. Failures are
// ValidationErrors; nothing downstream sees an unvalidated body.
func ParseAndValidate(body []byte) (RawInput, error) {
	var generic any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return RawInput{}, &contracts.ValidationError{Reason: "body is not valid JSON"}
	}

	if err := compiledSchema.Validate(generic); err != nil {
		return RawInput{}, &contracts.ValidationError{Reason: schemaFailureDetail(err)}
	}

	var raw RawInput
	if err := json.Unmarshal(body, &raw); err != nil {
		return RawInput{}, &contracts.ValidationError{Reason: "body does not match event shape"}
	}
	return raw, nil
}

func schemaFailureDetail(err error) string {
	var ve *jsonschema.ValidationError
	if errors.As(err, &ve) {
		leaf := ve
		for len(leaf.Causes) > 0 {
			leaf = leaf.Causes[0]
		}
		loc := leaf.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return fmt.Sprintf("schema violation at %s: %s", loc, leaf.Message)
	}
	return err.Error()
}
