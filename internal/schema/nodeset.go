package schema

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// NodeSet is an insertion-ordered collection of named node configurations.
//
// A plain map would lose the payload's declaration order, and start-node
// inference is defined over that order, so the set remembers the sequence in
// which nodes were added or decoded.
type NodeSet struct {
	order   []string
	configs map[string]*NodeConfig
}

// Add appends a node to the set. Re-adding an existing name replaces its
// config but keeps the original position.
func (s *NodeSet) Add(name string, cfg *NodeConfig) {
	if s.configs == nil {
		s.configs = make(map[string]*NodeConfig)
	}
	if _, exists := s.configs[name]; !exists {
		s.order = append(s.order, name)
	}
	s.configs[name] = cfg
}

// Get returns the config for a node name.
func (s *NodeSet) Get(name string) (*NodeConfig, bool) {
	cfg, ok := s.configs[name]
	return cfg, ok
}

// Len returns the number of nodes in the set.
func (s *NodeSet) Len() int {
	return len(s.order)
}

// Names returns the node names in declaration order.
func (s *NodeSet) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// UnmarshalJSON decodes a JSON object token-by-token so that key order
// survives the round trip.
func (s *NodeSet) UnmarshalJSON(data []byte) error {
	s.order = nil
	s.configs = make(map[string]*NodeConfig)

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("nodes: expected JSON object, got %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("nodes: expected string key, got %v", keyTok)
		}
		var cfg NodeConfig
		if err := dec.Decode(&cfg); err != nil {
			return fmt.Errorf("nodes: decoding node %q: %w", name, err)
		}
		s.Add(name, &cfg)
	}

	// Consume the closing brace.
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// MarshalJSON writes the nodes back out in declaration order.
func (s NodeSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range s.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(s.configs[name])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
