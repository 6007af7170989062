package core

import (
	"context"
	"fmt"

	"pharmacore/pkg/domain"
)

const physicianReferenceRuleName = "physician_reference"

// PhysicianReferenceRule blocks patients whose doctor does not exist and
// doctor deletes that would orphan patients.
func PhysicianReferenceRule() domain.Rule {
	return physicianReferenceRule{}
}

type physicianReferenceRule struct{}

func (physicianReferenceRule) Name() string { return physicianReferenceRuleName }

func (physicianReferenceRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, change := range changes {
		switch change.Entity {
		case domain.EntityPatient:
			patient, ok := written[domain.Patient](change)
			if !ok {
				continue
			}
			if _, found := view.FindDoctor(patient.DoctorID); !found {
				res.Violations = append(res.Violations, blockViolation(physicianReferenceRuleName, domain.EntityPatient, patient.NationalID,
					fmt.Sprintf("patient %s references missing doctor %s", patient.NationalID, patient.DoctorID)))
			}
		case domain.EntityDoctor:
			doctor, ok := removed[domain.Doctor](change)
			if !ok {
				continue
			}
			if n := view.CountPatientsOfDoctor(doctor.NationalID, ""); n > 0 {
				res.Violations = append(res.Violations, blockViolation(physicianReferenceRuleName, domain.EntityDoctor, doctor.NationalID,
					fmt.Sprintf("doctor %s deleted while %d patients reference it", doctor.NationalID, n)))
			}
		}
	}
	return res, nil
}
