package core

import (
	"context"

	"pharmacore/pkg/domain"
)

// AddDrug registers a drug; (trade name, manufacturer) is unique.
func (s *Service) AddDrug(ctx context.Context, drug domain.Drug) (domain.Drug, Result, error) {
	if err := validateDrug(drug); err != nil {
		return domain.Drug{}, Result{}, err
	}
	drug.ID = 0
	var created domain.Drug
	res, err := s.run(ctx, "create_drug", func(tx Transaction) (string, error) {
		if err := checkDrugKeys(tx.Snapshot(), drug); err != nil {
			return domain.DrugNaturalKey(drug.TradeName, drug.Manufacturer), err
		}
		var err error
		created, err = tx.InsertDrug(drug)
		return domain.IDKey(created.ID), err
	})
	return created, res, err
}

// UpdateDrug mutates a drug, re-checking the manufacturer and the unique key.
func (s *Service) UpdateDrug(ctx context.Context, id int64, mutator func(*domain.Drug) error) (domain.Drug, Result, error) {
	key := domain.IDKey(id)
	var updated domain.Drug
	res, err := s.run(ctx, "update_drug", func(tx Transaction) (string, error) {
		view := tx.Snapshot()
		current, ok := view.FindDrug(id)
		if !ok {
			return key, domain.NotFound(domain.EntityDrug, key)
		}
		if err := mutator(&current); err != nil {
			return key, err
		}
		current.ID = id
		if err := validateDrug(current); err != nil {
			return key, err
		}
		if err := checkDrugKeys(view, current); err != nil {
			return key, err
		}
		var err error
		updated, err = tx.UpdateDrug(id, func(d *domain.Drug) error {
			*d = current
			return nil
		})
		return key, err
	})
	return updated, res, err
}

// DeleteDrug removes an unprescribed drug together with its inventory rows.
func (s *Service) DeleteDrug(ctx context.Context, id int64) (Result, error) {
	key := domain.IDKey(id)
	return s.run(ctx, "delete_drug", func(tx Transaction) (string, error) {
		view := tx.Snapshot()
		if _, ok := view.FindDrug(id); !ok {
			return key, domain.NotFound(domain.EntityDrug, key)
		}
		if view.CountLinesOfDrug(id) > 0 {
			return key, domain.DependencyExists(domain.EntityDrug, key, domain.EntityPrescriptionLine)
		}
		for _, item := range view.ListInventoryOfDrug(id) {
			if err := tx.DeleteInventory(item.PharmacyID, item.DrugID); err != nil {
				return key, err
			}
		}
		return key, tx.DeleteDrug(id)
	})
}

func checkDrugKeys(view TransactionView, drug domain.Drug) error {
	if _, ok := view.FindManufacturer(drug.Manufacturer); !ok {
		return domain.NotFound(domain.EntityManufacturer, drug.Manufacturer)
	}
	if existing, ok := view.FindDrugByTradeName(drug.TradeName, drug.Manufacturer); ok && existing.ID != drug.ID {
		return domain.DuplicateKey(domain.EntityDrug, domain.DrugNaturalKey(drug.TradeName, drug.Manufacturer))
	}
	return nil
}
