package core

import (
	"context"
	"fmt"

	"pharmacore/pkg/domain"
)

const referenceRuleName = "reference_integrity"

// Snapshot returns the whole entity graph.
func (s *Service) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	var snap domain.Snapshot
	err := s.view(ctx, "snapshot", func(view TransactionView) error {
		snap = domain.SnapshotOf(view)
		return nil
	})
	return snap, err
}

// Verify evaluates the stored graph against the state invariants: every row
// as if freshly written is run through engine, and every reference is
// resolved. A nil engine selects NewDefaultRulesEngine. Warnings are
// included.
func (s *Service) Verify(ctx context.Context, engine *RulesEngine) ([]domain.Violation, error) {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	var out []domain.Violation
	err := s.view(ctx, "verify", func(view TransactionView) error {
		snap := domain.SnapshotOf(view)
		res, err := engine.Evaluate(ctx, view, snapshotChanges(snap))
		if err != nil {
			return err
		}
		out = append(out, res.Violations...)
		out = append(out, referenceViolations(view, snap)...)
		return nil
	})
	return out, err
}

func snapshotChanges(snap domain.Snapshot) []domain.Change {
	var changes []domain.Change
	add := func(entity domain.EntityType, after any) {
		changes = append(changes, domain.Change{Entity: entity, Action: domain.ActionCreate, After: after})
	}
	for _, p := range snap.Patients {
		add(domain.EntityPatient, p)
	}
	for _, c := range snap.Contracts {
		add(domain.EntityContract, c)
	}
	for _, item := range snap.Inventory {
		add(domain.EntityInventory, item)
	}
	for _, l := range snap.PrescriptionLines {
		add(domain.EntityPrescriptionLine, l)
	}
	return changes
}

func referenceViolations(view TransactionView, snap domain.Snapshot) []domain.Violation {
	var out []domain.Violation
	missing := func(entity domain.EntityType, id, format string, args ...any) {
		out = append(out, blockViolation(referenceRuleName, entity, id, fmt.Sprintf(format, args...)))
	}
	for _, d := range snap.Drugs {
		if _, ok := view.FindManufacturer(d.Manufacturer); !ok {
			missing(domain.EntityDrug, domain.IDKey(d.ID), "drug %d references missing manufacturer %s", d.ID, d.Manufacturer)
		}
	}
	for _, c := range snap.Contracts {
		if _, ok := view.FindPharmacy(c.PharmacyID); !ok {
			missing(domain.EntityContract, domain.IDKey(c.ID), "contract %d references missing pharmacy %d", c.ID, c.PharmacyID)
		}
		if _, ok := view.FindManufacturer(c.Manufacturer); !ok {
			missing(domain.EntityContract, domain.IDKey(c.ID), "contract %d references missing manufacturer %s", c.ID, c.Manufacturer)
		}
	}
	for _, item := range snap.Inventory {
		if _, ok := view.FindPharmacy(item.PharmacyID); !ok {
			missing(domain.EntityInventory, item.Key().String(), "inventory %s references missing pharmacy", item.Key())
		}
		if _, ok := view.FindDrug(item.DrugID); !ok {
			missing(domain.EntityInventory, item.Key().String(), "inventory %s references missing drug", item.Key())
		}
	}
	for _, p := range snap.Prescriptions {
		if _, ok := view.FindPatient(p.PatientID); !ok {
			missing(domain.EntityPrescription, domain.IDKey(p.ID), "prescription %d references missing patient %s", p.ID, p.PatientID)
		}
		if _, ok := view.FindDoctor(p.DoctorID); !ok {
			missing(domain.EntityPrescription, domain.IDKey(p.ID), "prescription %d references missing doctor %s", p.ID, p.DoctorID)
		}
	}
	for _, l := range snap.PrescriptionLines {
		if _, ok := view.FindPrescription(l.PrescriptionID); !ok {
			missing(domain.EntityPrescriptionLine, l.Key().String(), "line %s references missing prescription", l.Key())
		}
		if _, ok := view.FindDrug(l.DrugID); !ok {
			missing(domain.EntityPrescriptionLine, l.Key().String(), "line %s references missing drug", l.Key())
		}
	}
	return out
}
