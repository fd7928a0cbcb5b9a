// Package codec converts session state to and from its persisted document
// form. Documents are versioned JSON; the version is checked before anything
// else is decoded.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/tidwall/gjson"
	"github.com/wricardo/gamecore/game/engine"
)

// CurrentVersion is the newest document version this codec reads and the one
// it writes
const CurrentVersion = engine.SchemaVersion

var (
	// ErrUnsupportedVersion means the document's schemaVersion is missing,
	// malformed, or outside the range this build understands
	ErrUnsupportedVersion = errors.New("unsupported schema version")
	// ErrCorruptState means the document is malformed or violates state invariants
	ErrCorruptState = errors.New("corrupt state")
)

// document is the persisted shape of a State. Field order is the order
// written to disk.
type document struct {
	SchemaVersion int                        `json:"schemaVersion"`
	Game          string                     `json:"game"`
	Turn          int                        `json:"turn"`
	Status        engine.Status              `json:"status"`
	Winner        engine.EntityID            `json:"winner,omitempty"`
	Order         []engine.EntityID          `json:"order,omitempty"`
	Entities      map[engine.EntityID]entity `json:"entities"`
	Meta          map[string]string          `json:"meta,omitempty"`
}

type entity struct {
	Type  engine.EntityType       `json:"type"`
	Attrs map[string]engine.Value `json:"attrs,omitempty"`
}

// Codec encodes and decodes states. The zero value is usable.
type Codec struct {
	schema engine.Schema
}

// Option configures a Codec
type Option func(*Codec)

// WithSchema makes Decode also check every entity against schema
func WithSchema(schema engine.Schema) Option {
	return func(c *Codec) {
		c.schema = schema
	}
}

// New creates a codec
func New(opts ...Option) *Codec {
	c := &Codec{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var defaultCodec = New()

// Encode serializes s with the default codec
func Encode(s *engine.State) ([]byte, error) { return defaultCodec.Encode(s) }

// Decode parses data with the default codec
func Decode(data []byte) (*engine.State, error) { return defaultCodec.Decode(data) }

// Fingerprint hashes s with the default codec
func Fingerprint(s *engine.State) (uint64, error) { return defaultCodec.Fingerprint(s) }

// Encode serializes s deterministically: identical states produce identical
// bytes. Only states that pass validation are encoded.
func (c *Codec) Encode(s *engine.State) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("encode: state is nil")
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("encode: invalid state: %w", err)
	}

	doc := document{
		SchemaVersion: CurrentVersion,
		Game:          s.Game,
		Turn:          s.Turn,
		Status:        s.Status,
		Winner:        s.Winner,
		Order:         s.Order,
		Entities:      make(map[engine.EntityID]entity, len(s.Entities)),
		Meta:          s.Meta,
	}
	for id, e := range s.Entities {
		doc.Entities[id] = entity{Type: e.Type, Attrs: e.Attrs}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return data, nil
}

// Decode parses a document produced by Encode. It fails with
// ErrUnsupportedVersion or ErrCorruptState and never returns a partial state.
func (c *Codec) Decode(data []byte) (*engine.State, error) {
	// A readable version wins over any damage further into the document.
	version := gjson.GetBytes(data, "schemaVersion")
	if version.Exists() {
		if version.Type != gjson.Number || version.Num != float64(version.Int()) {
			return nil, fmt.Errorf("%w: schemaVersion %s is not an integer", ErrUnsupportedVersion, version.Raw)
		}
		if v := version.Int(); v < 1 || v > CurrentVersion {
			return nil, fmt.Errorf("%w: got %d, supported 1..%d", ErrUnsupportedVersion, v, CurrentVersion)
		}
	}

	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: malformed JSON", ErrCorruptState)
	}
	if !gjson.ParseBytes(data).IsObject() {
		return nil, fmt.Errorf("%w: document must be an object", ErrCorruptState)
	}
	if !version.Exists() {
		return nil, fmt.Errorf("%w: schemaVersion is missing", ErrUnsupportedVersion)
	}

	var doc document
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	if doc.Entities == nil {
		return nil, fmt.Errorf("%w: entities are missing", ErrCorruptState)
	}

	s := engine.NewState(doc.Game)
	s.Turn = doc.Turn
	s.Status = doc.Status
	s.Winner = doc.Winner
	s.Order = doc.Order
	for k, v := range doc.Meta {
		s.Meta[k] = v
	}
	for id, e := range doc.Entities {
		attrs := make(map[string]engine.Value, len(e.Attrs))
		for k, v := range e.Attrs {
			attrs[k] = v
		}
		s.Entities[id] = &engine.Entity{ID: id, Type: e.Type, Attrs: attrs}
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	if c.schema != nil {
		if err := c.schema.Validate(s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
		}
	}
	return s, nil
}

// Fingerprint returns a content hash of the encoded state. Structurally equal
// states share a fingerprint.
func (c *Codec) Fingerprint(s *engine.State) (uint64, error) {
	data, err := c.Encode(s)
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(data), nil
}
