package core

import (
	"context"

	"pharmacore/pkg/domain"
)

// AddContract links a pharmacy and a manufacturer; the end date must follow
// the start date.
func (s *Service) AddContract(ctx context.Context, contract domain.Contract) (domain.Contract, Result, error) {
	contract.ID = 0
	contract.StartDate = domain.CalendarDate(contract.StartDate)
	contract.EndDate = domain.CalendarDate(contract.EndDate)
	if err := validateContract(contract); err != nil {
		return domain.Contract{}, Result{}, err
	}
	var created domain.Contract
	res, err := s.run(ctx, "create_contract", func(tx Transaction) (string, error) {
		if err := checkContractRefs(tx.Snapshot(), contract); err != nil {
			return contract.Manufacturer, err
		}
		var err error
		created, err = tx.InsertContract(contract)
		return domain.IDKey(created.ID), err
	})
	return created, res, err
}

// UpdateContract mutates a contract, re-validating references and dates.
func (s *Service) UpdateContract(ctx context.Context, id int64, mutator func(*domain.Contract) error) (domain.Contract, Result, error) {
	key := domain.IDKey(id)
	var updated domain.Contract
	res, err := s.run(ctx, "update_contract", func(tx Transaction) (string, error) {
		view := tx.Snapshot()
		current, ok := view.FindContract(id)
		if !ok {
			return key, domain.NotFound(domain.EntityContract, key)
		}
		if err := mutator(&current); err != nil {
			return key, err
		}
		current.ID = id
		current.StartDate = domain.CalendarDate(current.StartDate)
		current.EndDate = domain.CalendarDate(current.EndDate)
		if err := validateContract(current); err != nil {
			return key, err
		}
		if err := checkContractRefs(view, current); err != nil {
			return key, err
		}
		var err error
		updated, err = tx.UpdateContract(id, func(c *domain.Contract) error {
			*c = current
			return nil
		})
		return key, err
	})
	return updated, res, err
}

// DeleteContract removes a contract.
func (s *Service) DeleteContract(ctx context.Context, id int64) (Result, error) {
	key := domain.IDKey(id)
	return s.run(ctx, "delete_contract", func(tx Transaction) (string, error) {
		if _, ok := tx.Snapshot().FindContract(id); !ok {
			return key, domain.NotFound(domain.EntityContract, key)
		}
		return key, tx.DeleteContract(id)
	})
}

func checkContractRefs(view TransactionView, c domain.Contract) error {
	if _, ok := view.FindPharmacy(c.PharmacyID); !ok {
		return domain.NotFound(domain.EntityPharmacy, domain.IDKey(c.PharmacyID))
	}
	if _, ok := view.FindManufacturer(c.Manufacturer); !ok {
		return domain.NotFound(domain.EntityManufacturer, c.Manufacturer)
	}
	return nil
}
