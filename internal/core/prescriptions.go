package core

import (
	"context"
	"time"

	"pharmacore/pkg/domain"
)

// prescriptionDecision is the outcome of AddPrescription for a
// (patient, doctor) pair.
type prescriptionDecision int

const (
	// decisionCreate inserts a new prescription.
	decisionCreate prescriptionDecision = iota
	// decisionReissue moves the existing prescription to the later date and
	// drops its lines.
	decisionReissue
	// decisionKeep leaves the existing prescription and its lines untouched.
	decisionKeep
)

func (d prescriptionDecision) String() string {
	switch d {
	case decisionCreate:
		return "create"
	case decisionReissue:
		return "reissue"
	case decisionKeep:
		return "keep"
	default:
		return "unknown"
	}
}

type prescriptionCase struct {
	exists bool
	later  bool
}

var prescriptionDecisions = map[prescriptionCase]prescriptionDecision{
	{exists: false, later: false}: decisionCreate,
	{exists: false, later: true}:  decisionCreate,
	{exists: true, later: true}:   decisionReissue,
	{exists: true, later: false}:  decisionKeep,
}

// decidePrescription looks up the branch for a request dated date against the
// pair's live prescription, if any.
func decidePrescription(existing *domain.Prescription, date time.Time) prescriptionDecision {
	c := prescriptionCase{exists: existing != nil}
	if existing != nil {
		c.later = domain.CalendarDate(date).After(domain.CalendarDate(existing.Date))
	}
	return prescriptionDecisions[c]
}

// livePrescription returns the latest prescription of the pair by date, then
// id, or nil.
func livePrescription(view TransactionView, patientID, doctorID string) *domain.Prescription {
	pair := view.ListPrescriptionsOfPair(patientID, doctorID)
	if len(pair) == 0 {
		return nil
	}
	latest := pair[len(pair)-1]
	return &latest
}

// AddPrescription records that doctor prescribes for patient on date. A pair
// keeps one live prescription: a later date re-issues it with its lines
// cleared, an earlier or equal date leaves it as is. The returned
// prescription is the live one in every branch.
func (s *Service) AddPrescription(ctx context.Context, patientID, doctorID string, date time.Time) (domain.Prescription, Result, error) {
	request := domain.Prescription{PatientID: patientID, DoctorID: doctorID, Date: domain.CalendarDate(date)}
	if err := validatePrescription(request); err != nil {
		return domain.Prescription{}, Result{}, err
	}
	var live domain.Prescription
	res, err := s.run(ctx, "add_prescription", func(tx Transaction) (string, error) {
		view := tx.Snapshot()
		naturalKey := domain.PrescriptionNaturalKey(patientID, doctorID, request.Date)
		if _, ok := view.FindPatient(patientID); !ok {
			return naturalKey, domain.NotFound(domain.EntityPatient, patientID)
		}
		if _, ok := view.FindDoctor(doctorID); !ok {
			return naturalKey, domain.NotFound(domain.EntityDoctor, doctorID)
		}
		existing := livePrescription(view, patientID, doctorID)
		decision := decidePrescription(existing, request.Date)
		s.logger.Debug("prescription decision", "patient", patientID, "doctor", doctorID, "date", domain.FormatDate(request.Date), "decision", decision.String())

		switch decision {
		case decisionCreate:
			created, err := tx.InsertPrescription(request)
			if err != nil {
				return naturalKey, err
			}
			live = created
		case decisionReissue:
			for _, line := range view.ListLinesOfPrescription(existing.ID) {
				if err := tx.DeletePrescriptionLine(line.PrescriptionID, line.DrugID); err != nil {
					return domain.IDKey(existing.ID), err
				}
			}
			updated, err := tx.UpdatePrescription(existing.ID, func(p *domain.Prescription) error {
				p.Date = request.Date
				return nil
			})
			if err != nil {
				return domain.IDKey(existing.ID), err
			}
			live = updated
		case decisionKeep:
			live = *existing
		}
		return domain.IDKey(live.ID), nil
	})
	return live, res, err
}

// UpdatePrescription mutates a prescription directly. Patient, doctor and the
// (patient, doctor, date) key are re-checked against the other rows.
func (s *Service) UpdatePrescription(ctx context.Context, id int64, mutator func(*domain.Prescription) error) (domain.Prescription, Result, error) {
	key := domain.IDKey(id)
	var updated domain.Prescription
	res, err := s.run(ctx, "update_prescription", func(tx Transaction) (string, error) {
		view := tx.Snapshot()
		current, ok := view.FindPrescription(id)
		if !ok {
			return key, domain.NotFound(domain.EntityPrescription, key)
		}
		if err := mutator(&current); err != nil {
			return key, err
		}
		current.ID = id
		current.Date = domain.CalendarDate(current.Date)
		if err := validatePrescription(current); err != nil {
			return key, err
		}
		if _, ok := view.FindPatient(current.PatientID); !ok {
			return key, domain.NotFound(domain.EntityPatient, current.PatientID)
		}
		if _, ok := view.FindDoctor(current.DoctorID); !ok {
			return key, domain.NotFound(domain.EntityDoctor, current.DoctorID)
		}
		if other, ok := view.FindPrescriptionByKey(current.PatientID, current.DoctorID, current.Date); ok && other.ID != id {
			return key, domain.DuplicateKey(domain.EntityPrescription, domain.PrescriptionNaturalKey(current.PatientID, current.DoctorID, current.Date))
		}
		var err error
		updated, err = tx.UpdatePrescription(id, func(p *domain.Prescription) error {
			*p = current
			return nil
		})
		return key, err
	})
	return updated, res, err
}

// DeletePrescription removes a prescription and its lines.
func (s *Service) DeletePrescription(ctx context.Context, id int64) (Result, error) {
	key := domain.IDKey(id)
	return s.run(ctx, "delete_prescription", func(tx Transaction) (string, error) {
		view := tx.Snapshot()
		if _, ok := view.FindPrescription(id); !ok {
			return key, domain.NotFound(domain.EntityPrescription, key)
		}
		for _, line := range view.ListLinesOfPrescription(id) {
			if err := tx.DeletePrescriptionLine(line.PrescriptionID, line.DrugID); err != nil {
				return key, err
			}
		}
		return key, tx.DeletePrescription(id)
	})
}

// AddPrescriptionLine adds a drug to a prescription; resubmitting the pair
// overwrites the quantity.
func (s *Service) AddPrescriptionLine(ctx context.Context, line domain.PrescriptionLine) (domain.PrescriptionLine, Result, error) {
	if err := validateLine(line); err != nil {
		return domain.PrescriptionLine{}, Result{}, err
	}
	key := line.Key().String()
	var stored domain.PrescriptionLine
	res, err := s.run(ctx, "add_prescription_line", func(tx Transaction) (string, error) {
		view := tx.Snapshot()
		if _, ok := view.FindPrescription(line.PrescriptionID); !ok {
			return key, domain.NotFound(domain.EntityPrescription, domain.IDKey(line.PrescriptionID))
		}
		if _, ok := view.FindDrug(line.DrugID); !ok {
			return key, domain.NotFound(domain.EntityDrug, domain.IDKey(line.DrugID))
		}
		var err error
		stored, _, err = tx.UpsertPrescriptionLine(line)
		return key, err
	})
	return stored, res, err
}

// RemovePrescriptionLine deletes a line. Removing the last line of a
// prescription deletes the prescription too; the boolean reports whether that
// happened.
func (s *Service) RemovePrescriptionLine(ctx context.Context, prescriptionID, drugID int64) (bool, Result, error) {
	key := domain.LineKey{PrescriptionID: prescriptionID, DrugID: drugID}.String()
	var prescriptionRemoved bool
	res, err := s.run(ctx, "remove_prescription_line", func(tx Transaction) (string, error) {
		view := tx.Snapshot()
		if _, ok := view.FindPrescriptionLine(prescriptionID, drugID); !ok {
			return key, domain.NotFound(domain.EntityPrescriptionLine, key)
		}
		if err := tx.DeletePrescriptionLine(prescriptionID, drugID); err != nil {
			return key, err
		}
		if view.CountLinesOfPrescription(prescriptionID) == 0 {
			prescriptionRemoved = true
			return key, tx.DeletePrescription(prescriptionID)
		}
		return key, nil
	})
	if err != nil {
		prescriptionRemoved = false
	}
	return prescriptionRemoved, res, err
}
