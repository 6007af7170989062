package core

import (
	"context"
	"fmt"

	"pharmacore/pkg/domain"
)

const doctorRetainsPatientRuleName = "doctor_retains_patient"

// DoctorRetainsPatientRule blocks a transaction that leaves a surviving doctor
// without patients after a patient was deleted or moved away from it.
func DoctorRetainsPatientRule() domain.Rule {
	return doctorRetainsPatientRule{}
}

type doctorRetainsPatientRule struct{}

func (doctorRetainsPatientRule) Name() string { return doctorRetainsPatientRuleName }

func (doctorRetainsPatientRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	checked := make(map[string]struct{})
	for _, change := range changes {
		if change.Entity != domain.EntityPatient {
			continue
		}
		var doctorID, patientID string
		switch change.Action {
		case domain.ActionDelete:
			before, ok := change.Before.(domain.Patient)
			if !ok {
				continue
			}
			doctorID, patientID = before.DoctorID, before.NationalID
		case domain.ActionUpdate:
			before, okBefore := change.Before.(domain.Patient)
			after, okAfter := change.After.(domain.Patient)
			if !okBefore || !okAfter || before.DoctorID == after.DoctorID {
				continue
			}
			doctorID, patientID = before.DoctorID, before.NationalID
		default:
			continue
		}
		if _, done := checked[doctorID]; done {
			continue
		}
		checked[doctorID] = struct{}{}
		if _, exists := view.FindDoctor(doctorID); !exists {
			continue
		}
		if view.CountPatientsOfDoctor(doctorID, "") == 0 {
			res.Violations = append(res.Violations, blockViolation(doctorRetainsPatientRuleName, domain.EntityPatient, patientID,
				fmt.Sprintf("doctor %s would be left without patients", doctorID)))
		}
	}
	return res, nil
}
