package core

import (
	"context"
	"fmt"

	"pharmacore/pkg/domain"
)

const associationValuesRuleName = "association_values"

// AssociationValuesRule blocks inventory rows with a non-positive price or a
// negative stock, and prescription lines with a non-positive quantity.
func AssociationValuesRule() domain.Rule {
	return associationValuesRule{}
}

type associationValuesRule struct{}

func (associationValuesRule) Name() string { return associationValuesRuleName }

func (associationValuesRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, change := range changes {
		switch change.Entity {
		case domain.EntityInventory:
			item, ok := written[domain.InventoryItem](change)
			if !ok {
				continue
			}
			if err := validateInventory(item); err != nil {
				res.Violations = append(res.Violations, blockViolation(associationValuesRuleName, domain.EntityInventory, item.Key().String(),
					fmt.Sprintf("inventory %s: price %.2f, stock %d", item.Key(), item.Price, item.Stock)))
			}
		case domain.EntityPrescriptionLine:
			line, ok := written[domain.PrescriptionLine](change)
			if !ok {
				continue
			}
			if line.Quantity <= 0 {
				res.Violations = append(res.Violations, blockViolation(associationValuesRuleName, domain.EntityPrescriptionLine, line.Key().String(),
					fmt.Sprintf("prescription line %s has quantity %d", line.Key(), line.Quantity)))
			}
		}
	}
	return res, nil
}
