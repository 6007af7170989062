package core

import (
	"context"

	"pharmacore/pkg/domain"
)

// AddDoctor registers a doctor under its national ID.
func (s *Service) AddDoctor(ctx context.Context, doctor domain.Doctor) (domain.Doctor, Result, error) {
	if err := validateDoctor(doctor); err != nil {
		return domain.Doctor{}, Result{}, err
	}
	var created domain.Doctor
	res, err := s.run(ctx, "create_doctor", func(tx Transaction) (string, error) {
		if _, exists := tx.Snapshot().FindDoctor(doctor.NationalID); exists {
			return doctor.NationalID, domain.DuplicateKey(domain.EntityDoctor, doctor.NationalID)
		}
		var err error
		created, err = tx.InsertDoctor(doctor)
		return doctor.NationalID, err
	})
	return created, res, err
}

// UpdateDoctor mutates a doctor's attributes; the national ID is immutable.
func (s *Service) UpdateDoctor(ctx context.Context, id string, mutator func(*domain.Doctor) error) (domain.Doctor, Result, error) {
	var updated domain.Doctor
	res, err := s.run(ctx, "update_doctor", func(tx Transaction) (string, error) {
		current, ok := tx.Snapshot().FindDoctor(id)
		if !ok {
			return id, domain.NotFound(domain.EntityDoctor, id)
		}
		if err := mutator(&current); err != nil {
			return id, err
		}
		current.NationalID = id
		if err := validateDoctor(current); err != nil {
			return id, err
		}
		var err error
		updated, err = tx.UpdateDoctor(id, func(d *domain.Doctor) error {
			*d = current
			return nil
		})
		return id, err
	})
	return updated, res, err
}

// DeleteDoctor removes a doctor that no patient or prescription references.
func (s *Service) DeleteDoctor(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_doctor", func(tx Transaction) (string, error) {
		view := tx.Snapshot()
		if _, ok := view.FindDoctor(id); !ok {
			return id, domain.NotFound(domain.EntityDoctor, id)
		}
		if view.CountPatientsOfDoctor(id, "") > 0 {
			return id, domain.DependencyExists(domain.EntityDoctor, id, domain.EntityPatient)
		}
		if view.CountPrescriptionsOfDoctor(id) > 0 {
			return id, domain.DependencyExists(domain.EntityDoctor, id, domain.EntityPrescription)
		}
		return id, tx.DeleteDoctor(id)
	})
}
