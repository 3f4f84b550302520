package planner

import (
	"github.com/lockplane/ksmigrate/internal/migration"
	"github.com/lockplane/ksmigrate/internal/version"
)

// Reason explains why a migration is part of a plan.
type Reason string

const (
	// ReasonInOrder marks a migration above the highest applied version.
	ReasonInOrder Reason = "in-order"
	// ReasonOutOfOrder marks a migration below the highest applied version
	// that was admitted because out-of-order execution is enabled.
	ReasonOutOfOrder Reason = "out-of-order"
)

// Options controls which candidates a plan admits.
type Options struct {
	// Target is the highest version to apply. The zero value means Latest.
	Target          version.Version
	AllowOutOfOrder bool
}

// Plan is the ordered list of migrations to execute
type Plan struct {
	Items []Item `json:"items"`
}

// Item is a single migration to execute
type Item struct {
	Descriptor *migration.Descriptor `json:"descriptor"`
	Reason     Reason                `json:"reason"`
}

// Len returns the number of planned migrations.
func (p *Plan) Len() int { return len(p.Items) }

// Empty reports whether there is nothing to execute.
func (p *Plan) Empty() bool { return len(p.Items) == 0 }

// Versions lists the planned versions in execution order.
func (p *Plan) Versions() []version.Version {
	out := make([]version.Version, len(p.Items))
	for i, item := range p.Items {
		out[i] = item.Descriptor.Version
	}
	return out
}
