// Package schema declares one payload type per bus topic, plus a
// Registry that validates payloads against hand-written JSON schemas
// before the bus ever delivers them to a handler.
package schema
