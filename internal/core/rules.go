package core

import "pharmacore/pkg/domain"

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
// The service enforces the same constraints up front; the rules catch writes
// that reach the store through other paths.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(PhysicianReferenceRule())
	engine.Register(DoctorRetainsPatientRule())
	engine.Register(ContractWindowRule())
	engine.Register(AssociationValuesRule())
	engine.Register(StockDepletedRule())
	return engine
}

func blockViolation(rule string, entity domain.EntityType, id, message string) domain.Violation {
	return domain.Violation{
		Rule:     rule,
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   entity,
		EntityID: id,
	}
}

// written reports the post-image of create and update changes.
func written[T any](change domain.Change) (T, bool) {
	var zero T
	if change.Action == domain.ActionDelete || change.After == nil {
		return zero, false
	}
	v, ok := change.After.(T)
	return v, ok
}

// removed reports the pre-image of delete changes.
func removed[T any](change domain.Change) (T, bool) {
	var zero T
	if change.Action != domain.ActionDelete || change.Before == nil {
		return zero, false
	}
	v, ok := change.Before.(T)
	return v, ok
}
