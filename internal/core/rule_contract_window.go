package core

import (
	"context"
	"fmt"

	"pharmacore/pkg/domain"
)

const contractWindowRuleName = "contract_window"

// ContractWindowRule blocks contracts whose end date does not follow the
// start date.
func ContractWindowRule() domain.Rule {
	return contractWindowRule{}
}

type contractWindowRule struct{}

func (contractWindowRule) Name() string { return contractWindowRuleName }

func (contractWindowRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, change := range changes {
		if change.Entity != domain.EntityContract {
			continue
		}
		contract, ok := written[domain.Contract](change)
		if !ok {
			continue
		}
		if !contract.EndDate.After(contract.StartDate) {
			res.Violations = append(res.Violations, blockViolation(contractWindowRuleName, domain.EntityContract, domain.IDKey(contract.ID),
				fmt.Sprintf("contract %d ends %s, not after its start %s", contract.ID,
					domain.FormatDate(contract.EndDate), domain.FormatDate(contract.StartDate))))
		}
	}
	return res, nil
}
