package core

import (
	"context"
	"errors"
	"testing"

	"pharmacore/pkg/domain"
)

func expectRuleViolation(t *testing.T, err error, rule string) {
	t.Helper()
	var rerr domain.RuleViolationError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected rule violation from %s, got %v", rule, err)
	}
	for _, v := range rerr.Result.Blocking() {
		if v.Rule == rule {
			return
		}
	}
	t.Fatalf("expected blocking %s violation, got %+v", rule, rerr.Result.Violations)
}

func TestDefaultRulesEngineRegistersPolicySet(t *testing.T) {
	want := []string{
		physicianReferenceRuleName,
		doctorRetainsPatientRuleName,
		contractWindowRuleName,
		associationValuesRuleName,
		stockDepletedRuleName,
	}
	rules := NewDefaultRulesEngine().Rules()
	if len(rules) != len(want) {
		t.Fatalf("expected %d rules, got %d", len(want), len(rules))
	}
	for i, rule := range rules {
		if rule.Name() != want[i] {
			t.Fatalf("rule %d: expected %s, got %s", i, want[i], rule.Name())
		}
	}
}

func TestDoctorRetainsPatientBackstop(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	mustAddDoctor(t, svc, doctorA, "Dr. Adams")
	mustAddPatient(t, svc, patient1, "Ann", doctorA)

	_, err := svc.Store().RunInTransaction(ctx, func(tx Transaction) error {
		return tx.DeletePatient(patient1)
	})
	expectRuleViolation(t, err, doctorRetainsPatientRuleName)
	expectKind(t, err, domain.KindIntegrityViolation)

	mustAddDoctor(t, svc, doctorB, "Dr. Brown")
	_, err = svc.Store().RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.UpdatePatient(patient1, func(p *domain.Patient) error {
			p.DoctorID = doctorB
			return nil
		})
		return err
	})
	expectRuleViolation(t, err, doctorRetainsPatientRuleName)

	// Removing the doctor together with its last patient leaves nobody behind.
	if _, err := svc.Store().RunInTransaction(ctx, func(tx Transaction) error {
		if err := tx.DeletePatient(patient1); err != nil {
			return err
		}
		return tx.DeleteDoctor(doctorA)
	}); err != nil {
		t.Fatalf("delete doctor with its last patient: %v", err)
	}
}

func TestContractWindowBackstop(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	mustAddManufacturer(t, svc, "M")
	pharmacy := mustAddPharmacy(t, svc, "Central")

	_, err := svc.Store().RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.InsertContract(domain.Contract{PharmacyID: pharmacy.ID, Manufacturer: "M", StartDate: day(2024, 5, 1), EndDate: day(2024, 5, 1)})
		return err
	})
	expectRuleViolation(t, err, contractWindowRuleName)

	contracts, _ := svc.ListContracts(ctx)
	if len(contracts) != 0 {
		t.Fatalf("blocked contract must not be committed, got %+v", contracts)
	}
}

func TestAssociationValuesBackstop(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	clinic(t, svc)
	mustAddManufacturer(t, svc, "M")
	x := mustAddDrug(t, svc, "X", "M")
	pharmacy := mustAddPharmacy(t, svc, "Central")
	rx := mustAddPrescription(t, svc, patient1, doctorA, day(2024, 1, 1))

	_, err := svc.Store().RunInTransaction(ctx, func(tx Transaction) error {
		_, _, err := tx.UpsertInventory(domain.InventoryItem{PharmacyID: pharmacy.ID, DrugID: x.ID, Price: 0, Stock: 1})
		return err
	})
	expectRuleViolation(t, err, associationValuesRuleName)

	_, err = svc.Store().RunInTransaction(ctx, func(tx Transaction) error {
		_, _, err := tx.UpsertPrescriptionLine(domain.PrescriptionLine{PrescriptionID: rx.ID, DrugID: x.ID, Quantity: -2})
		return err
	})
	expectRuleViolation(t, err, associationValuesRuleName)
}

func TestPhysicianReferenceRule(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	clinic(t, svc)
	rule := PhysicianReferenceRule()

	err := svc.Store().View(ctx, func(view TransactionView) error {
		res, err := rule.Evaluate(ctx, view, []domain.Change{
			{Entity: domain.EntityPatient, Action: domain.ActionCreate, After: domain.Patient{NationalID: patient3, DoctorID: doctorB}},
			{Entity: domain.EntityPatient, Action: domain.ActionCreate, After: domain.Patient{NationalID: patient1, DoctorID: doctorA}},
			{Entity: domain.EntityDoctor, Action: domain.ActionDelete, Before: domain.Doctor{NationalID: doctorA}},
		})
		if err != nil {
			return err
		}
		if len(res.Violations) != 2 {
			t.Fatalf("expected missing doctor and orphaned patients, got %+v", res.Violations)
		}
		if res.Violations[0].EntityID != patient3 || res.Violations[1].Entity != domain.EntityDoctor {
			t.Fatalf("unexpected violations: %+v", res.Violations)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestRulesIgnoreUnrelatedChanges(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	changes := []domain.Change{
		{Entity: domain.EntityPharmacy, Action: domain.ActionCreate, After: domain.Pharmacy{ID: 1, Name: "Central"}},
		{Entity: domain.EntityInventory, Action: domain.ActionDelete, Before: domain.InventoryItem{PharmacyID: 1, DrugID: 1}},
		{Entity: domain.EntityContract, Action: domain.ActionDelete, Before: domain.Contract{ID: 1}},
		{Entity: domain.EntityPatient, Action: domain.ActionCreate, After: "not a patient"},
	}
	err := svc.Store().View(ctx, func(view TransactionView) error {
		res, err := NewDefaultRulesEngine().Evaluate(ctx, view, changes)
		if err != nil {
			return err
		}
		if len(res.Violations) != 0 {
			t.Fatalf("expected no violations, got %+v", res.Violations)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}
