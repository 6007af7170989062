package core

import (
	"context"

	"pharmacore/pkg/domain"
)

// AddPatient registers a patient under an existing primary physician.
func (s *Service) AddPatient(ctx context.Context, patient domain.Patient) (domain.Patient, Result, error) {
	if err := validatePatient(patient); err != nil {
		return domain.Patient{}, Result{}, err
	}
	var created domain.Patient
	res, err := s.run(ctx, "create_patient", func(tx Transaction) (string, error) {
		view := tx.Snapshot()
		if _, ok := view.FindDoctor(patient.DoctorID); !ok {
			return patient.NationalID, domain.NotFound(domain.EntityDoctor, patient.DoctorID)
		}
		if _, exists := view.FindPatient(patient.NationalID); exists {
			return patient.NationalID, domain.DuplicateKey(domain.EntityPatient, patient.NationalID)
		}
		var err error
		created, err = tx.InsertPatient(patient)
		return patient.NationalID, err
	})
	return created, res, err
}

// UpdatePatient mutates a patient. Moving a patient to another doctor is
// refused when the patient is the former doctor's last one.
func (s *Service) UpdatePatient(ctx context.Context, id string, mutator func(*domain.Patient) error) (domain.Patient, Result, error) {
	var updated domain.Patient
	res, err := s.run(ctx, "update_patient", func(tx Transaction) (string, error) {
		view := tx.Snapshot()
		current, ok := view.FindPatient(id)
		if !ok {
			return id, domain.NotFound(domain.EntityPatient, id)
		}
		next := current
		if err := mutator(&next); err != nil {
			return id, err
		}
		next.NationalID = id
		if err := validatePatient(next); err != nil {
			return id, err
		}
		if next.DoctorID != current.DoctorID {
			if _, ok := view.FindDoctor(next.DoctorID); !ok {
				return id, domain.NotFound(domain.EntityDoctor, next.DoctorID)
			}
			if err := lastPatientGuard(view, current); err != nil {
				return id, err
			}
		}
		var err error
		updated, err = tx.UpdatePatient(id, func(p *domain.Patient) error {
			*p = next
			return nil
		})
		return id, err
	})
	return updated, res, err
}

// DeletePatient removes a patient. A doctor's last patient cannot be removed,
// nor can a patient with prescriptions.
func (s *Service) DeletePatient(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_patient", func(tx Transaction) (string, error) {
		view := tx.Snapshot()
		patient, ok := view.FindPatient(id)
		if !ok {
			return id, domain.NotFound(domain.EntityPatient, id)
		}
		if err := lastPatientGuard(view, patient); err != nil {
			return id, err
		}
		if view.CountPrescriptionsOfPatient(id) > 0 {
			return id, domain.DependencyExists(domain.EntityPatient, id, domain.EntityPrescription)
		}
		return id, tx.DeletePatient(id)
	})
}

// lastPatientGuard rejects detaching patient from its doctor when no other
// patient of that doctor remains.
func lastPatientGuard(view TransactionView, patient domain.Patient) error {
	if view.CountPatientsOfDoctor(patient.DoctorID, patient.NationalID) == 0 {
		return domain.IntegrityViolation(domain.EntityPatient, patient.NationalID,
			"last patient of doctor %q", patient.DoctorID)
	}
	return nil
}
