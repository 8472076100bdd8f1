// Package catalog holds the closed set of service tiers that stock can be
// imported for and dispensed from.
package catalog

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// ServiceType identifies a service tier
type ServiceType string

const (
	ServiceNFA    ServiceType = "nfa"
	ServiceFA     ServiceType = "fa"
	ServiceXboxGP ServiceType = "xboxgp"
)

// Service contains display information about a tier
type Service struct {
	Type  ServiceType
	Name  string
	Emoji string
	// GuideURL, when set, is attached to the delivery message.
	GuideURL string
}

// Label is the name prefixed with the emoji
func (s Service) Label() string {
	if s.Emoji == "" {
		return s.Name
	}
	return s.Emoji + " " + s.Name
}

// Registry manages the known service tiers
type Registry struct {
	order    []ServiceType
	services map[ServiceType]Service
}

// NewRegistry creates a registry from services, keeping their order.
func NewRegistry(services ...Service) (*Registry, error) {
	r := &Registry{services: make(map[ServiceType]Service, len(services))}
	for _, s := range services {
		if s.Type == "" {
			return nil, fmt.Errorf("service %q has no type", s.Name)
		}
		if _, dup := r.services[s.Type]; dup {
			return nil, fmt.Errorf("duplicate service type: %s", s.Type)
		}
		r.services[s.Type] = s
		r.order = append(r.order, s.Type)
	}
	return r, nil
}

// Default returns the built-in tiers
func Default(guideURL string) *Registry {
	r, err := NewRegistry(
		Service{Type: ServiceNFA, Name: "Non Full Access (NFA)", Emoji: "⛏️"},
		Service{Type: ServiceFA, Name: "Full Access (FA)", Emoji: "💎", GuideURL: guideURL},
		Service{Type: ServiceXboxGP, Name: "Xbox Game Pass", Emoji: "🎮", GuideURL: guideURL},
	)
	if err != nil {
		panic(err)
	}
	return r
}

// Get retrieves a service by type
func (r *Registry) Get(t ServiceType) (Service, error) {
	s, ok := r.services[t]
	if !ok {
		return Service{}, fmt.Errorf("unknown service type: %s", t)
	}
	return s, nil
}

// Lookup is Get for raw strings coming from the ledger or Discord.
func (r *Registry) Lookup(id string) (Service, bool) {
	s, ok := r.services[ServiceType(id)]
	return s, ok
}

// List returns all services in declaration order
func (r *Registry) List() []Service {
	out := make([]Service, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, r.services[t])
	}
	return out
}

// Choices builds the option choices for slash commands
func (r *Registry) Choices() []*discordgo.ApplicationCommandOptionChoice {
	services := r.List()
	choices := make([]*discordgo.ApplicationCommandOptionChoice, len(services))
	for i, s := range services {
		choices[i] = &discordgo.ApplicationCommandOptionChoice{
			Name:  s.Name,
			Value: string(s.Type),
		}
	}
	return choices
}
