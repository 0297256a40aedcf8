package commands

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Registry holds registered commands by primary name; aliases resolve to
// a primary name.
type Registry struct {
	mu      sync.RWMutex
	cmds    map[string]Command
	aliases map[string]string
}

// NewRegistry creates a new command registry.
func NewRegistry() *Registry {
	return &Registry{
		cmds:    make(map[string]Command),
		aliases: make(map[string]string),
	}
}

// Register adds a command to the registry.
// Returns an error if the name or any alias is empty or already taken.
func (r *Registry) Register(c Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Name()
	if name == "" {
		return fmt.Errorf("command without a name: %T", c)
	}
	if r.taken(name) {
		return fmt.Errorf("command already registered: %s", name)
	}
	for _, alias := range c.Aliases() {
		if alias == "" || alias == name || r.taken(alias) {
			return fmt.Errorf("command alias already registered: %s", alias)
		}
	}

	r.cmds[name] = c
	for _, alias := range c.Aliases() {
		r.aliases[alias] = name
	}
	return nil
}

func (r *Registry) taken(name string) bool {
	_, isCmd := r.cmds[name]
	_, isAlias := r.aliases[name]
	return isCmd || isAlias
}

// Find looks up a command by name or alias.
func (r *Registry) Find(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if primary, ok := r.aliases[name]; ok {
		name = primary
	}
	cmd, ok := r.cmds[name]
	return cmd, ok
}

// All returns all commands sorted by name.
func (r *Registry) All() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Command, 0, len(r.cmds))
	for _, cmd := range r.cmds {
		result = append(result, cmd)
	}
	slices.SortFunc(result, func(a, b Command) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return result
}

// Suggest returns the primary names that extend or are extended by name,
// sorted. Used to hint at a mistyped command.
func (r *Registry) Suggest(name string) []string {
	if name == "" {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for primary := range r.cmds {
		if strings.HasPrefix(primary, name) || strings.HasPrefix(name, primary) {
			out = append(out, primary)
		}
	}
	for alias, primary := range r.aliases {
		if strings.HasPrefix(alias, name) && !slices.Contains(out, primary) {
			out = append(out, primary)
		}
	}
	slices.Sort(out)
	return out
}

// DefaultRegistry is the global command registry.
var DefaultRegistry = NewRegistry()

// Register adds a command to the default registry.
func Register(c Command) {
	if err := DefaultRegistry.Register(c); err != nil {
		panic(err)
	}
}
