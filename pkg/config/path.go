package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

type pathValue struct {
	path  string
	value string
}

// SetPath returns a copy of cfg with the value at the dotted key path
// replaced. Path segments match yaml keys ignoring case and underscores,
// so "queue.maxQueueSize" and "queue.max_queue_size" are equivalent.
// Values are parsed as YAML scalars; sequences accept a YAML flow list or
// a comma separated string.
func SetPath(cfg *Config, path, value string) (*Config, error) {
	return applyPaths(cfg, []pathValue{{path: path, value: value}})
}

func applyPaths(cfg *Config, updates []pathValue) (*Config, error) {
	var root yaml.Node
	if err := root.Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to encode configuration: %w", err)
	}
	doc := &root
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = doc.Content[0]
	}

	for _, u := range updates {
		if err := setNode(doc, u.path, u.value); err != nil {
			return nil, err
		}
	}

	out := &Config{}
	if err := doc.Decode(out); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	return out, nil
}

func setNode(node *yaml.Node, path, value string) error {
	segments := strings.Split(path, ".")
	for i, seg := range segments {
		if node.Kind != yaml.MappingNode {
			return fmt.Errorf("configuration key %q: %q is not a section", path, strings.Join(segments[:i], "."))
		}
		child := lookupKey(node, seg)
		if child == nil {
			return fmt.Errorf("unknown configuration key %q", path)
		}
		if i == len(segments)-1 {
			repl, err := parseValue(child, value)
			if err != nil {
				return fmt.Errorf("configuration key %q: %w", path, err)
			}
			*child = *repl
			return nil
		}
		node = child
	}
	return fmt.Errorf("empty configuration key")
}

func lookupKey(mapping *yaml.Node, key string) *yaml.Node {
	want := normalizeKey(key)
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if normalizeKey(mapping.Content[i].Value) == want {
			return mapping.Content[i+1]
		}
	}
	return nil
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.ReplaceAll(key, "_", ""))
}

func parseValue(target *yaml.Node, value string) (*yaml.Node, error) {
	switch target.Kind {
	case yaml.ScalarNode:
		n := &yaml.Node{Kind: yaml.ScalarNode, Value: value}
		if target.Tag == "!!str" {
			n.Tag = "!!str"
		}
		return n, nil

	case yaml.SequenceNode:
		var parsed yaml.Node
		if err := yaml.Unmarshal([]byte(value), &parsed); err == nil &&
			len(parsed.Content) > 0 && parsed.Content[0].Kind == yaml.SequenceNode {
			return parsed.Content[0], nil
		}
		seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range strings.Split(value, ",") {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: item})
		}
		return seq, nil

	default:
		return nil, fmt.Errorf("cannot assign a scalar to a section")
	}
}
