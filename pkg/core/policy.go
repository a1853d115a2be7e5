package core

// RedactionRule registers a redaction for one table column. Origin names the
// policy fragment or hook that contributed it, for diagnostics.
type RedactionRule struct {
	Table     string
	Column    string
	Redaction Redaction
	Origin    string
}

// ExportPolicy binds together everything an export run is allowed to do. It is
// read once at run start and never mutated during the run.
type ExportPolicy struct {
	// RootTable and RootKey identify the primary entity whose allow-set seeds
	// the cascade (e.g. users.id).
	RootTable string
	RootKey   string
	// Criteria selects the retained root rows. Nil means every root row.
	Criteria Predicate

	// Combine is the default multi-parent combination; CombineTables
	// overrides it per table.
	Combine       Combine
	CombineTables map[string]Combine

	// Overrides are explicit per-table rules (highest precedence).
	Overrides map[string]FilterRule

	// Redactions are always applied; Secrets only when RedactSecrets is set.
	Redactions    []RedactionRule
	Secrets       []RedactionRule
	RedactSecrets bool

	// HashSalt is mixed into hashed values.
	HashSalt string
}

// CombineFor returns the combination mode for a table.
func (p *ExportPolicy) CombineFor(table string) Combine {
	if c, ok := p.CombineTables[table]; ok && c != "" {
		return c
	}
	if p.Combine == "" {
		return CombineOr
	}
	return p.Combine
}

// EffectiveRedactions returns the redaction registrations in the order they
// apply: policy redactions, then secrets when enabled.
func (p *ExportPolicy) EffectiveRedactions() []RedactionRule {
	out := make([]RedactionRule, 0, len(p.Redactions)+len(p.Secrets))
	out = append(out, p.Redactions...)
	if p.RedactSecrets {
		out = append(out, p.Secrets...)
	}
	return out
}
