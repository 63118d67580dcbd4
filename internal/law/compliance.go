package law

// ActionContext carries the facts the compliance rules reason about.
// All ids are opaque references owned by external systems.
type ActionContext struct {
	IdentityID           string `json:"identity_id"`
	SphereID             string `json:"sphere_id,omitempty"`
	TargetSphereID       string `json:"target_sphere_id,omitempty"`
	AgentID              string `json:"agent_id,omitempty"`
	ConsentRequired      bool   `json:"consent_required"`
	ConsentGiven         bool   `json:"consent_given"`
	UserApproved         bool   `json:"user_approved"`
	CrossSpherePermitted bool   `json:"cross_sphere_permitted"`
}

// ComplianceResult reports which laws an action breaches.
type ComplianceResult struct {
	Compliant  bool   `json:"compliant"`
	Violations []Code `json:"violations,omitempty"`
}

// CheckCompliance evaluates the concrete rule set against an action.
// It is pure: detected breaches are returned, not recorded, and the caller
// decides whether to report them to the violation tracker.
//
// Rules:
//
//	L1: consent required but not given
//	L7: agent-initiated action without user approval
//	L9: cross-sphere action without permission
func CheckCompliance(ctx ActionContext) ComplianceResult {
	var violated []Code

	if ctx.ConsentRequired && !ctx.ConsentGiven {
		violated = append(violated, ConsentPrimacy)
	}

	if ctx.AgentID != "" && !ctx.UserApproved {
		violated = append(violated, AgentNonAutonomy)
	}

	if ctx.TargetSphereID != "" && ctx.TargetSphereID != ctx.SphereID && !ctx.CrossSpherePermitted {
		violated = append(violated, SphereSeparation)
	}

	return ComplianceResult{
		Compliant:  len(violated) == 0,
		Violations: violated,
	}
}

// CheckedCodes returns the codes CheckCompliance evaluates, for audit
// entries that record which laws were consulted.
func CheckedCodes() []Code {
	return []Code{ConsentPrimacy, AgentNonAutonomy, SphereSeparation}
}
