package hub

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaRegistry validates inbound envelopes and their per-type payloads,
// mirroring the gateway's ws_schema.go request/method schema split.
type schemaRegistry struct {
	once     sync.Once
	initErr  error
	envelope *jsonschema.Schema
	payloads map[string]*jsonschema.Schema
}

var schemas schemaRegistry

func initSchemas() error {
	schemas.once.Do(func() {
		env, err := jsonschema.CompileString("envelope", envelopeSchema)
		if err != nil {
			schemas.initErr = err
			return
		}
		schemas.envelope = env

		defs := map[string]string{
			TypeCreateAgentRequest: createAgentSchema,
			TypeSendMessageRequest: sendMessageSchema,
			TypeCancelAgentRequest: cancelAgentSchema,
			TypeResumeAgentRequest: resumeAgentSchema,
			TypeHeartbeat:          heartbeatSchema,
		}
		schemas.payloads = make(map[string]*jsonschema.Schema, len(defs))
		for name, src := range defs {
			compiled, err := jsonschema.CompileString("payload_"+name, src)
			if err != nil {
				schemas.initErr = err
				return
			}
			schemas.payloads[name] = compiled
		}
	})
	return schemas.initErr
}

// validateEnvelope checks the raw frame against the envelope schema, then
// against the per-type payload schema when one is registered for env.Type.
// Unknown types pass through here; dispatch rejects them as unknown_type.
func validateEnvelope(raw []byte, env *Envelope) error {
	if err := initSchemas(); err != nil {
		return err
	}

	var asAny any
	if err := json.Unmarshal(raw, &asAny); err != nil {
		return err
	}
	if err := schemas.envelope.Validate(asAny); err != nil {
		return err
	}

	schema, ok := schemas.payloads[env.Type]
	if !ok {
		return nil
	}
	var payload any
	if len(env.Payload) == 0 {
		payload = map[string]any{}
	} else if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return err
	}
	if err := schema.Validate(payload); err != nil {
		return fmt.Errorf("payload: %w", err)
	}
	return nil
}

const envelopeSchema = `{
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": { "type": "string", "minLength": 1 },
    "requestId": { "type": "string" },
    "payload": {}
  },
  "additionalProperties": true
}`

const createAgentSchema = `{
  "type": "object",
  "required": ["provider", "cwd"],
  "properties": {
    "provider": { "type": "string", "enum": ["claude", "codex", "opencode"] },
    "cwd": { "type": "string", "minLength": 1 },
    "modeId": { "type": "string" },
    "model": { "type": "string" },
    "title": { "type": "string" },
    "worktreeName": { "type": "string" }
  },
  "additionalProperties": true
}`

const sendMessageSchema = `{
  "type": "object",
  "required": ["agentId", "text"],
  "properties": {
    "agentId": { "type": "string", "minLength": 1 },
    "text": { "type": "string" },
    "images": { "type": "array", "items": { "type": "string" } },
    "clientMessageId": { "type": "string" }
  },
  "additionalProperties": true
}`

const cancelAgentSchema = `{
  "type": "object",
  "required": ["agentId"],
  "properties": {
    "agentId": { "type": "string", "minLength": 1 }
  },
  "additionalProperties": true
}`

const resumeAgentSchema = `{
  "type": "object",
  "required": ["handle"],
  "properties": {
    "handle": {
      "type": "object",
      "required": ["provider", "sessionId"],
      "properties": {
        "provider": { "type": "string", "enum": ["claude", "codex", "opencode"] },
        "sessionId": { "type": "string", "minLength": 1 }
      },
      "additionalProperties": true
    },
    "preferredId": { "type": "string" }
  },
  "additionalProperties": true
}`

const heartbeatSchema = `{
  "type": "object",
  "required": ["deviceType", "lastActivityAt", "appVisible"],
  "properties": {
    "deviceType": { "type": "string", "enum": ["web", "mobile", "cli", "unknown"] },
    "focusedAgentId": { "type": "string" },
    "lastActivityAt": { "type": "string" },
    "appVisible": { "type": "boolean" }
  },
  "additionalProperties": true
}`
