package core

import (
	"context"
	"fmt"

	"pharmacore/pkg/domain"
)

const stockDepletedRuleName = "stock_depleted"

// StockDepletedRule warns when an inventory write leaves a drug out of stock.
func StockDepletedRule() domain.Rule {
	return stockDepletedRule{}
}

type stockDepletedRule struct{}

func (stockDepletedRule) Name() string { return stockDepletedRuleName }

func (stockDepletedRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, change := range changes {
		if change.Entity != domain.EntityInventory {
			continue
		}
		item, ok := written[domain.InventoryItem](change)
		if !ok || item.Stock != 0 {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     stockDepletedRuleName,
			Severity: domain.SeverityWarn,
			Message:  fmt.Sprintf("pharmacy %d has no stock of drug %d", item.PharmacyID, item.DrugID),
			Entity:   domain.EntityInventory,
			EntityID: item.Key().String(),
		})
	}
	return res, nil
}
