package core

import (
	"context"

	"pharmacore/pkg/domain"
)

// AssignInventory records that a pharmacy sells a drug at a price with a
// stock level. An existing row for the pair is overwritten.
func (s *Service) AssignInventory(ctx context.Context, item domain.InventoryItem) (domain.InventoryItem, Result, error) {
	if err := validateInventory(item); err != nil {
		return domain.InventoryItem{}, Result{}, err
	}
	key := item.Key().String()
	var stored domain.InventoryItem
	res, err := s.run(ctx, "assign_inventory", func(tx Transaction) (string, error) {
		view := tx.Snapshot()
		if _, ok := view.FindPharmacy(item.PharmacyID); !ok {
			return key, domain.NotFound(domain.EntityPharmacy, domain.IDKey(item.PharmacyID))
		}
		if _, ok := view.FindDrug(item.DrugID); !ok {
			return key, domain.NotFound(domain.EntityDrug, domain.IDKey(item.DrugID))
		}
		var err error
		stored, _, err = tx.UpsertInventory(item)
		return key, err
	})
	return stored, res, err
}

// RemoveInventory deletes the row for a (pharmacy, drug) pair.
func (s *Service) RemoveInventory(ctx context.Context, pharmacyID, drugID int64) (Result, error) {
	key := domain.InventoryKey{PharmacyID: pharmacyID, DrugID: drugID}.String()
	return s.run(ctx, "remove_inventory", func(tx Transaction) (string, error) {
		if _, ok := tx.Snapshot().FindInventory(pharmacyID, drugID); !ok {
			return key, domain.NotFound(domain.EntityInventory, key)
		}
		return key, tx.DeleteInventory(pharmacyID, drugID)
	})
}
