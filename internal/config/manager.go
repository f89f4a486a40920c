package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

var ErrUnknownKey = errors.New("unknown config key")

// Sections whose keys are free-form map entries rather than struct fields.
var openSections = map[string]struct{}{
	"roles":               {},
	"command_permissions": {},
}

// Manager owns the live configuration. Readers take snapshots; writers go through Set/Reload.
type Manager struct {
	mu          sync.RWMutex
	path        string
	cfg         Config
	subscribers []func(Config)
}

// NewManager wraps an already loaded config. An empty path disables persistence.
func NewManager(path string, cfg Config) *Manager {
	return &Manager{path: path, cfg: cfg.clone()}
}

func (m *Manager) Path() string {
	return m.path
}

// Current returns a copy that callers may keep for the rest of a request.
func (m *Manager) Current() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.clone()
}

// OnChange registers fn to receive every committed config.
func (m *Manager) OnChange(fn func(Config)) {
	m.mu.Lock()
	m.subscribers = append(m.subscribers, fn)
	m.mu.Unlock()
}

// Reload re-reads the file and environment.
func (m *Manager) Reload() error {
	if m.path == "" {
		return errors.New("config has no backing file")
	}
	next, err := LoadFile(m.path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	if next.DiscordToken == "" {
		next.DiscordToken = m.cfg.DiscordToken
	}
	if next.Dashboard.Password == "" {
		next.Dashboard.Password = m.cfg.Dashboard.Password
	}
	if next.Dashboard.Secret == "" {
		next.Dashboard.Secret = m.cfg.Dashboard.Secret
	}
	m.cfg = next
	subs := append([]func(Config){}, m.subscribers...)
	m.mu.Unlock()

	notify(subs, next)
	return nil
}

// Set updates one dotted key path, e.g. "voice_promotion.hours_required", and persists the result.
// value is read as a YAML scalar or flow sequence.
func (m *Manager) Set(keyPath, value string) error {
	return m.update(func(cfg Config) (Config, error) {
		return applyKeyPath(cfg, keyPath, value)
	})
}

// SetMany applies several key paths atomically; nothing is committed if any fails.
func (m *Manager) SetMany(values map[string]string) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return m.update(func(cfg Config) (Config, error) {
		next := cfg
		for _, key := range keys {
			var err error
			next, err = applyKeyPath(next, key, values[key])
			if err != nil {
				return Config{}, err
			}
		}
		return next, nil
	})
}

func (m *Manager) SetCommandRoles(command string, roles []string) error {
	command = strings.TrimSpace(command)
	if command == "" {
		return errors.New("command is required")
	}
	return m.update(func(cfg Config) (Config, error) {
		cleaned := make([]string, 0, len(roles))
		for _, role := range roles {
			if role = strings.TrimSpace(role); role != "" {
				cleaned = append(cleaned, role)
			}
		}
		if len(cleaned) == 0 {
			delete(cfg.CommandPermissions, command)
		} else {
			cfg.CommandPermissions[command] = cleaned
		}
		return cfg, nil
	})
}

func (m *Manager) ResetCommandRoles() error {
	return m.update(func(cfg Config) (Config, error) {
		cfg.CommandPermissions = map[string][]string{}
		return cfg, nil
	})
}

func (m *Manager) update(mutate func(Config) (Config, error)) error {
	m.mu.Lock()
	next, err := mutate(m.cfg.clone())
	if err != nil {
		m.mu.Unlock()
		return err
	}
	normalize(&next)
	if err := next.Validate(); err != nil {
		m.mu.Unlock()
		return err
	}
	if err := m.saveLocked(next); err != nil {
		m.mu.Unlock()
		return err
	}
	m.cfg = next
	subs := append([]func(Config){}, m.subscribers...)
	m.mu.Unlock()

	notify(subs, next.clone())
	return nil
}

func (m *Manager) saveLocked(cfg Config) error {
	if m.path == "" {
		return nil
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	dir := filepath.Dir(m.path)
	tmp, err := os.CreateTemp(dir, ".config-*.yaml")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), m.path)
}

func notify(subs []func(Config), cfg Config) {
	for _, fn := range subs {
		fn(cfg)
	}
}

func applyKeyPath(cfg Config, keyPath, value string) (Config, error) {
	parts := strings.Split(strings.TrimSpace(keyPath), ".")
	for _, part := range parts {
		if part == "" {
			return Config{}, fmt.Errorf("%w: %q", ErrUnknownKey, keyPath)
		}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return Config{}, err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Config{}, err
	}
	if len(doc.Content) == 0 {
		return Config{}, errors.New("empty config document")
	}

	node := doc.Content[0]
	for i, part := range parts {
		if node.Kind != yaml.MappingNode {
			return Config{}, fmt.Errorf("%w: %q", ErrUnknownKey, keyPath)
		}
		child := mappingValue(node, part)
		if child == nil {
			_, open := openSections[parts[0]]
			if !open || i != 1 || len(parts) != 2 {
				return Config{}, fmt.Errorf("%w: %q", ErrUnknownKey, keyPath)
			}
			if node.Style == yaml.FlowStyle {
				node.Style = 0
			}
			child = &yaml.Node{Kind: yaml.ScalarNode}
			node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: part}, child)
		}
		node = child
	}
	if node.Kind == yaml.MappingNode {
		return Config{}, fmt.Errorf("%q is a section, not a value", keyPath)
	}
	*node = *parseValue(value)

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return Config{}, err
	}
	next := DefaultConfig()
	next.Roles = map[string]string{}
	if err := yaml.Unmarshal(out, &next); err != nil {
		return Config{}, fmt.Errorf("invalid value for %s: %w", keyPath, err)
	}
	next.DiscordToken = cfg.DiscordToken
	next.Dashboard.Password = cfg.Dashboard.Password
	next.Dashboard.Secret = cfg.Dashboard.Secret
	return next, nil
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func parseValue(value string) *yaml.Node {
	trimmed := strings.TrimSpace(value)
	literal := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: trimmed}
	if trimmed == "" {
		return literal
	}
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(trimmed), &doc); err != nil || len(doc.Content) == 0 {
		return literal
	}
	parsed := doc.Content[0]
	switch parsed.Kind {
	case yaml.SequenceNode:
		return parsed
	case yaml.ScalarNode:
		if parsed.Style&(yaml.DoubleQuotedStyle|yaml.SingleQuotedStyle) != 0 || parsed.Value == trimmed {
			return parsed
		}
	}
	return literal
}

func (c Config) clone() Config {
	out := c
	out.Roles = make(map[string]string, len(c.Roles))
	for k, v := range c.Roles {
		out.Roles[k] = v
	}
	out.CommandPermissions = make(map[string][]string, len(c.CommandPermissions))
	for k, v := range c.CommandPermissions {
		out.CommandPermissions[k] = append([]string(nil), v...)
	}
	return out
}
