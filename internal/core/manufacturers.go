package core

import (
	"context"

	"pharmacore/pkg/domain"
)

// AddManufacturer registers a manufacturer under its unique name.
func (s *Service) AddManufacturer(ctx context.Context, m domain.Manufacturer) (domain.Manufacturer, Result, error) {
	if err := validateManufacturer(m); err != nil {
		return domain.Manufacturer{}, Result{}, err
	}
	var created domain.Manufacturer
	res, err := s.run(ctx, "create_manufacturer", func(tx Transaction) (string, error) {
		if _, exists := tx.Snapshot().FindManufacturer(m.Name); exists {
			return m.Name, domain.DuplicateKey(domain.EntityManufacturer, m.Name)
		}
		var err error
		created, err = tx.InsertManufacturer(m)
		return m.Name, err
	})
	return created, res, err
}

// UpdateManufacturer mutates non-key attributes. Use RenameManufacturer to
// change the name.
func (s *Service) UpdateManufacturer(ctx context.Context, name string, mutator func(*domain.Manufacturer) error) (domain.Manufacturer, Result, error) {
	var updated domain.Manufacturer
	res, err := s.run(ctx, "update_manufacturer", func(tx Transaction) (string, error) {
		current, ok := tx.Snapshot().FindManufacturer(name)
		if !ok {
			return name, domain.NotFound(domain.EntityManufacturer, name)
		}
		if err := mutator(&current); err != nil {
			return name, err
		}
		if current.Name != name {
			return name, domain.InvalidArgument(domain.EntityManufacturer, name, "name is immutable; rename instead")
		}
		var err error
		updated, err = tx.UpdateManufacturer(name, func(m *domain.Manufacturer) error {
			*m = current
			return nil
		})
		return name, err
	})
	return updated, res, err
}

// RenameManufacturer moves a manufacturer to a new name and re-points every
// drug and contract referencing the old one. The new row is written first so
// that references never dangle within the transaction.
func (s *Service) RenameManufacturer(ctx context.Context, oldName, newName string) (domain.Manufacturer, Result, error) {
	if err := validateManufacturer(domain.Manufacturer{Name: newName}); err != nil {
		return domain.Manufacturer{}, Result{}, err
	}
	var renamed domain.Manufacturer
	res, err := s.run(ctx, "rename_manufacturer", func(tx Transaction) (string, error) {
		view := tx.Snapshot()
		current, ok := view.FindManufacturer(oldName)
		if !ok {
			return oldName, domain.NotFound(domain.EntityManufacturer, oldName)
		}
		if oldName == newName {
			renamed = current
			return oldName, nil
		}
		if _, taken := view.FindManufacturer(newName); taken {
			return oldName, domain.DuplicateKey(domain.EntityManufacturer, newName)
		}
		var err error
		renamed, err = tx.InsertManufacturer(domain.Manufacturer{Name: newName, Phone: current.Phone})
		if err != nil {
			return oldName, err
		}
		for _, drug := range view.ListDrugsOfManufacturer(oldName) {
			if _, err := tx.UpdateDrug(drug.ID, func(d *domain.Drug) error {
				d.Manufacturer = newName
				return nil
			}); err != nil {
				return oldName, err
			}
		}
		for _, contract := range view.ListContractsOfManufacturer(oldName) {
			if _, err := tx.UpdateContract(contract.ID, func(c *domain.Contract) error {
				c.Manufacturer = newName
				return nil
			}); err != nil {
				return oldName, err
			}
		}
		return newName, tx.DeleteManufacturer(oldName)
	})
	return renamed, res, err
}

// DeleteManufacturer removes a manufacturer with its contracts, drugs and
// their inventory rows. A manufacturer whose drug is prescribed stays.
func (s *Service) DeleteManufacturer(ctx context.Context, name string) (Result, error) {
	return s.run(ctx, "delete_manufacturer", func(tx Transaction) (string, error) {
		view := tx.Snapshot()
		if _, ok := view.FindManufacturer(name); !ok {
			return name, domain.NotFound(domain.EntityManufacturer, name)
		}
		for _, drug := range view.ListDrugsOfManufacturer(name) {
			if view.CountLinesOfDrug(drug.ID) > 0 {
				return name, domain.DependencyExists(domain.EntityManufacturer, name, domain.EntityPrescriptionLine)
			}
		}
		for _, contract := range view.ListContractsOfManufacturer(name) {
			if err := tx.DeleteContract(contract.ID); err != nil {
				return name, err
			}
		}
		return name, tx.DeleteManufacturer(name)
	})
}
