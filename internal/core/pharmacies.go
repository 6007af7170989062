package core

import (
	"context"

	"pharmacore/pkg/domain"
)

// AddPharmacy registers an outlet; the store assigns its ID.
func (s *Service) AddPharmacy(ctx context.Context, pharmacy domain.Pharmacy) (domain.Pharmacy, Result, error) {
	pharmacy.ID = 0
	if err := validatePharmacy(pharmacy); err != nil {
		return domain.Pharmacy{}, Result{}, err
	}
	var created domain.Pharmacy
	res, err := s.run(ctx, "create_pharmacy", func(tx Transaction) (string, error) {
		var err error
		created, err = tx.InsertPharmacy(pharmacy)
		return domain.IDKey(created.ID), err
	})
	return created, res, err
}

// UpdatePharmacy mutates an outlet's attributes.
func (s *Service) UpdatePharmacy(ctx context.Context, id int64, mutator func(*domain.Pharmacy) error) (domain.Pharmacy, Result, error) {
	key := domain.IDKey(id)
	var updated domain.Pharmacy
	res, err := s.run(ctx, "update_pharmacy", func(tx Transaction) (string, error) {
		current, ok := tx.Snapshot().FindPharmacy(id)
		if !ok {
			return key, domain.NotFound(domain.EntityPharmacy, key)
		}
		if err := mutator(&current); err != nil {
			return key, err
		}
		current.ID = id
		if err := validatePharmacy(current); err != nil {
			return key, err
		}
		var err error
		updated, err = tx.UpdatePharmacy(id, func(p *domain.Pharmacy) error {
			*p = current
			return nil
		})
		return key, err
	})
	return updated, res, err
}

// DeletePharmacy removes the outlet's inventory rows, then its contracts,
// then the outlet itself.
func (s *Service) DeletePharmacy(ctx context.Context, id int64) (Result, error) {
	key := domain.IDKey(id)
	return s.run(ctx, "delete_pharmacy", func(tx Transaction) (string, error) {
		view := tx.Snapshot()
		if _, ok := view.FindPharmacy(id); !ok {
			return key, domain.NotFound(domain.EntityPharmacy, key)
		}
		for _, item := range view.ListInventoryOfPharmacy(id) {
			if err := tx.DeleteInventory(item.PharmacyID, item.DrugID); err != nil {
				return key, err
			}
		}
		for _, contract := range view.ListContractsOfPharmacy(id) {
			if err := tx.DeleteContract(contract.ID); err != nil {
				return key, err
			}
		}
		return key, tx.DeletePharmacy(id)
	})
}
