// Package law holds the fixed catalogue of governance laws and the
// stateless compliance checks evaluated against proposed actions.
// The catalogue is loaded once and never mutated at runtime.
package law

import "fmt"

// Strength is how hard a law is enforced.
type Strength string

const (
	Strict   Strength = "strict"
	Standard Strength = "standard"
	Advisory Strength = "advisory"
)

// Code identifies one of the ten fixed governance laws.
type Code string

const (
	ConsentPrimacy    Code = "L1"
	IdentityOwnership Code = "L2"
	ScopeFidelity     Code = "L3"
	Reversibility     Code = "L4"
	AuditCompleteness Code = "L5"
	BudgetDiscipline  Code = "L6"
	AgentNonAutonomy  Code = "L7"
	DataMinimization  Code = "L8"
	SphereSeparation  Code = "L9"
	Transparency      Code = "L10"
)

// Law is one immutable governance policy.
type Law struct {
	Code        Code     `json:"code"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Strength    Strength `json:"strength"`
}

var registry = map[Code]Law{
	ConsentPrimacy: {
		Code:        ConsentPrimacy,
		Name:        "Consent Primacy",
		Description: "No operation on user data or on the user's behalf without explicit consent.",
		Strength:    Strict,
	},
	IdentityOwnership: {
		Code:        IdentityOwnership,
		Name:        "Identity Ownership",
		Description: "The user owns their identity and data; the system holds it in trust only.",
		Strength:    Strict,
	},
	ScopeFidelity: {
		Code:        ScopeFidelity,
		Name:        "Scope Fidelity",
		Description: "Operations stay within the currently locked operating scope.",
		Strength:    Standard,
	},
	Reversibility: {
		Code:        Reversibility,
		Name:        "Reversibility",
		Description: "Prefer reversible operations; irreversible ones demand a checkpoint.",
		Strength:    Standard,
	},
	AuditCompleteness: {
		Code:        AuditCompleteness,
		Name:        "Audit Completeness",
		Description: "Every governance-relevant event is recorded; the record is never refused.",
		Strength:    Strict,
	},
	BudgetDiscipline: {
		Code:        BudgetDiscipline,
		Name:        "Budget Discipline",
		Description: "Estimated cost is declared up front and reserved before execution.",
		Strength:    Standard,
	},
	AgentNonAutonomy: {
		Code:        AgentNonAutonomy,
		Name:        "Agent Non-Autonomy",
		Description: "Agents act only under user approval; no self-directed sensitive actions.",
		Strength:    Strict,
	},
	DataMinimization: {
		Code:        DataMinimization,
		Name:        "Data Minimization",
		Description: "Touch only the data the declared purpose needs.",
		Strength:    Standard,
	},
	SphereSeparation: {
		Code:        SphereSeparation,
		Name:        "Sphere Separation",
		Description: "No data or action crosses sphere boundaries without explicit permission.",
		Strength:    Strict,
	},
	Transparency: {
		Code:        Transparency,
		Name:        "Transparency",
		Description: "Every denial carries a reason a human can read.",
		Strength:    Advisory,
	},
}

// All returns the ten laws keyed by code. The returned map is shared;
// callers must not mutate it.
func All() map[Code]Law {
	return registry
}

// Codes returns all law codes in canonical L1..L10 order.
func Codes() []Code {
	return []Code{
		ConsentPrimacy, IdentityOwnership, ScopeFidelity, Reversibility,
		AuditCompleteness, BudgetDiscipline, AgentNonAutonomy,
		DataMinimization, SphereSeparation, Transparency,
	}
}

// Lookup returns the law for a code, with ok=false for codes outside
// the registry. Use this for untrusted input.
func Lookup(code Code) (Law, bool) {
	l, ok := registry[code]
	return l, ok
}

// Get returns the law for a code. Unknown codes are a broken closed-enum
// invariant and panic.
func Get(code Code) Law {
	l, ok := registry[code]
	if !ok {
		panic(fmt.Sprintf("law: unknown code %q", code))
	}
	return l
}
