// Package storetest holds the behavioural contract every domain.PersistentStore
// backend must satisfy. Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"pharmacore/pkg/domain"
)

// Opener constructs a fresh, empty store wired to engine.
type Opener func(t *testing.T, engine *domain.RulesEngine) domain.PersistentStore

// Run executes the contract suite against stores produced by open.
func Run(t *testing.T, open Opener) {
	t.Helper()
	cases := []struct {
		name string
		fn   func(*testing.T, Opener)
	}{
		{"DoctorsAndPatients", testDoctorsAndPatients},
		{"SurrogateKeys", testSurrogateKeys},
		{"DrugsAndManufacturerCascade", testDrugsAndManufacturerCascade},
		{"ManufacturerRestrictedByContract", testManufacturerRestrictedByContract},
		{"InventoryUpsert", testInventoryUpsert},
		{"Prescriptions", testPrescriptions},
		{"RollbackOnError", testRollbackOnError},
		{"RulesGateCommit", testRulesGateCommit},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) { tc.fn(t, open) })
	}
}

// RuleFunc adapts a function into a domain.Rule.
type RuleFunc struct {
	RuleName string
	Fn       func(ctx context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error)
}

// Name implements domain.Rule.
func (r RuleFunc) Name() string { return r.RuleName }

// Evaluate implements domain.Rule.
func (r RuleFunc) Evaluate(ctx context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	return r.Fn(ctx, view, changes)
}

func day(t *testing.T, value string) time.Time {
	t.Helper()
	d, err := domain.ParseDate(value)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return d
}

func mustRun(t *testing.T, store domain.PersistentStore, fn func(domain.Transaction) error) domain.Result {
	t.Helper()
	res, err := store.RunInTransaction(context.Background(), fn)
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}
	return res
}

func expectKind(t *testing.T, err error, want domain.ErrorKind) {
	t.Helper()
	if got := domain.KindOf(err); got != want {
		t.Fatalf("expected %s, got %s (%v)", want, got, err)
	}
}

func view(t *testing.T, store domain.PersistentStore, fn func(domain.TransactionView)) {
	t.Helper()
	if err := store.View(context.Background(), func(v domain.TransactionView) error {
		fn(v)
		return nil
	}); err != nil {
		t.Fatalf("View: %v", err)
	}
}

func testDoctorsAndPatients(t *testing.T, open Opener) {
	store := open(t, domain.NewRulesEngine())
	ctx := context.Background()
	mustRun(t, store, func(tx domain.Transaction) error {
		for _, d := range []domain.Doctor{
			{NationalID: "D00000000002", Name: "Zed", Specialty: "GP", YearsOfExperience: 3},
			{NationalID: "D00000000001", Name: "Ada", Specialty: "Cardiology", YearsOfExperience: 12},
		} {
			if _, err := tx.InsertDoctor(d); err != nil {
				return err
			}
		}
		_, err := tx.InsertPatient(domain.Patient{NationalID: "P00000000001", Name: "Pat", Age: 40, DoctorID: "D00000000001"})
		return err
	})

	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.InsertDoctor(domain.Doctor{NationalID: "D00000000001", Name: "Dup"})
		return err
	})
	if !errors.Is(err, domain.ErrDuplicateKey) {
		t.Fatalf("expected duplicate doctor, got %v", err)
	}

	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.InsertPatient(domain.Patient{NationalID: "P00000000009", Name: "Orphan", DoctorID: "D00000000404"})
		return err
	})
	if !errors.Is(err, &domain.Error{Kind: domain.KindNotFound, Entity: domain.EntityDoctor}) {
		t.Fatalf("expected missing doctor, got %v", err)
	}

	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.DeleteDoctor("D00000000001")
	})
	expectKind(t, err, domain.KindDependencyExists)

	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateDoctor("D00000000404", func(*domain.Doctor) error { return nil })
		return err
	})
	expectKind(t, err, domain.KindNotFound)

	mustRun(t, store, func(tx domain.Transaction) error {
		_, err := tx.UpdatePatient("P00000000001", func(p *domain.Patient) error {
			p.DoctorID = "D00000000002"
			p.NationalID = "ignored"
			return nil
		})
		return err
	})

	view(t, store, func(v domain.TransactionView) {
		doctors := v.ListDoctors()
		if len(doctors) != 2 || doctors[0].Name != "Ada" || doctors[1].Name != "Zed" {
			t.Fatalf("expected doctors ordered by name, got %+v", doctors)
		}
		p, ok := v.FindPatient("P00000000001")
		if !ok || p.DoctorID != "D00000000002" {
			t.Fatalf("expected patient reassigned, got %+v (found=%v)", p, ok)
		}
		if n := v.CountPatientsOfDoctor("D00000000002", ""); n != 1 {
			t.Fatalf("expected one patient of D2, got %d", n)
		}
		if n := v.CountPatientsOfDoctor("D00000000002", "P00000000001"); n != 0 {
			t.Fatalf("expected exclusion to apply, got %d", n)
		}
	})

	mustRun(t, store, func(tx domain.Transaction) error { return tx.DeleteDoctor("D00000000001") })
	view(t, store, func(v domain.TransactionView) {
		if _, ok := v.FindDoctor("D00000000001"); ok {
			t.Fatalf("expected doctor deleted")
		}
	})
}

func testSurrogateKeys(t *testing.T, open Opener) {
	store := open(t, nil)
	var first, second domain.Pharmacy
	mustRun(t, store, func(tx domain.Transaction) error {
		var err error
		if first, err = tx.InsertPharmacy(domain.Pharmacy{ID: 99, Name: "North", Address: "1 North St", Phone: "555"}); err != nil {
			return err
		}
		second, err = tx.InsertPharmacy(domain.Pharmacy{ID: 99, Name: "Central", Address: "2 Main St", Phone: "556"})
		return err
	})
	if first.ID <= 0 || second.ID <= first.ID {
		t.Fatalf("expected increasing generated ids, got %d and %d", first.ID, second.ID)
	}
	mustRun(t, store, func(tx domain.Transaction) error {
		_, err := tx.UpdatePharmacy(first.ID, func(p *domain.Pharmacy) error {
			p.Phone = "999"
			return nil
		})
		return err
	})
	view(t, store, func(v domain.TransactionView) {
		list := v.ListPharmacies()
		if len(list) != 2 || list[0].Name != "Central" || list[1].Phone != "999" {
			t.Fatalf("unexpected pharmacies %+v", list)
		}
	})
	mustRun(t, store, func(tx domain.Transaction) error { return tx.DeletePharmacy(second.ID) })
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		return tx.DeletePharmacy(second.ID)
	})
	expectKind(t, err, domain.KindNotFound)
}

type catalog struct {
	pharmacy domain.Pharmacy
	aspirin  domain.Drug
	ibuprof  domain.Drug
}

func seedCatalog(t *testing.T, store domain.PersistentStore) catalog {
	t.Helper()
	var c catalog
	mustRun(t, store, func(tx domain.Transaction) error {
		var err error
		if _, err = tx.InsertManufacturer(domain.Manufacturer{Name: "Acme", Phone: "555-0100"}); err != nil {
			return err
		}
		if c.pharmacy, err = tx.InsertPharmacy(domain.Pharmacy{Name: "Central", Address: "1 Main", Phone: "555-0101"}); err != nil {
			return err
		}
		if c.aspirin, err = tx.InsertDrug(domain.Drug{TradeName: "Aspirin", Formula: "C9H8O4", Manufacturer: "Acme"}); err != nil {
			return err
		}
		if c.ibuprof, err = tx.InsertDrug(domain.Drug{TradeName: "Ibuprofen", Formula: "C13H18O2", Manufacturer: "Acme"}); err != nil {
			return err
		}
		if _, _, err = tx.UpsertInventory(domain.InventoryItem{PharmacyID: c.pharmacy.ID, DrugID: c.aspirin.ID, Price: 12.5, Stock: 4}); err != nil {
			return err
		}
		_, _, err = tx.UpsertInventory(domain.InventoryItem{PharmacyID: c.pharmacy.ID, DrugID: c.ibuprof.ID, Price: 8, Stock: 0})
		return err
	})
	return c
}

func testDrugsAndManufacturerCascade(t *testing.T, open Opener) {
	store := open(t, domain.NewRulesEngine())
	ctx := context.Background()
	c := seedCatalog(t, store)

	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.InsertDrug(domain.Drug{TradeName: "Aspirin", Formula: "other", Manufacturer: "Acme"})
		return err
	})
	if !errors.Is(err, &domain.Error{Kind: domain.KindDuplicateKey, Entity: domain.EntityDrug}) {
		t.Fatalf("expected duplicate drug, got %v", err)
	}
	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.InsertDrug(domain.Drug{TradeName: "Aspirin", Manufacturer: "Nobody"})
		return err
	})
	expectKind(t, err, domain.KindNotFound)

	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateDrug(c.ibuprof.ID, func(d *domain.Drug) error {
			d.TradeName = "Aspirin"
			return nil
		})
		return err
	})
	expectKind(t, err, domain.KindDuplicateKey)

	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		return tx.DeletePharmacy(c.pharmacy.ID)
	})
	if !errors.Is(err, domain.ErrDependencyExists) {
		t.Fatalf("expected pharmacy delete blocked by inventory, got %v", err)
	}

	view(t, store, func(v domain.TransactionView) {
		drugs := v.ListDrugsOfManufacturer("Acme")
		if len(drugs) != 2 || drugs[0].TradeName != "Aspirin" {
			t.Fatalf("unexpected drugs %+v", drugs)
		}
		item, ok := v.FindInventory(c.pharmacy.ID, c.aspirin.ID)
		if !ok || item.Price != 12.5 || item.Stock != 4 {
			t.Fatalf("unexpected inventory %+v (found=%v)", item, ok)
		}
	})

	mustRun(t, store, func(tx domain.Transaction) error { return tx.DeleteManufacturer("Acme") })
	view(t, store, func(v domain.TransactionView) {
		if len(v.ListDrugs()) != 0 {
			t.Fatalf("expected drugs cascaded, got %+v", v.ListDrugs())
		}
		if len(v.ListInventory()) != 0 {
			t.Fatalf("expected inventory cascaded, got %+v", v.ListInventory())
		}
		if _, ok := v.FindPharmacy(c.pharmacy.ID); !ok {
			t.Fatalf("expected pharmacy to survive cascade")
		}
	})
}

func testManufacturerRestrictedByContract(t *testing.T, open Opener) {
	store := open(t, nil)
	ctx := context.Background()
	c := seedCatalog(t, store)
	var contract domain.Contract
	mustRun(t, store, func(tx domain.Transaction) error {
		var err error
		contract, err = tx.InsertContract(domain.Contract{
			PharmacyID:   c.pharmacy.ID,
			Manufacturer: "Acme",
			StartDate:    day(t, "2024-01-01"),
			EndDate:      day(t, "2024-12-31"),
			Content:      "supply",
			Supervisor:   "Sam",
		})
		return err
	})
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error { return tx.DeleteManufacturer("Acme") })
	if !errors.Is(err, domain.ErrDependencyExists) {
		t.Fatalf("expected contract to restrict manufacturer delete, got %v", err)
	}
	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.InsertContract(domain.Contract{PharmacyID: c.pharmacy.ID + 100, Manufacturer: "Acme"})
		return err
	})
	expectKind(t, err, domain.KindNotFound)

	view(t, store, func(v domain.TransactionView) {
		got, ok := v.FindContract(contract.ID)
		if !ok || !got.StartDate.Equal(day(t, "2024-01-01")) || !got.EndDate.Equal(day(t, "2024-12-31")) {
			t.Fatalf("unexpected contract %+v (found=%v)", got, ok)
		}
		if len(v.ListContractsOfPharmacy(c.pharmacy.ID)) != 1 || len(v.ListContractsOfManufacturer("Acme")) != 1 {
			t.Fatalf("expected contract in filtered lists")
		}
	})
	mustRun(t, store, func(tx domain.Transaction) error {
		if err := tx.DeleteContract(contract.ID); err != nil {
			return err
		}
		return tx.DeleteManufacturer("Acme")
	})
}

func testInventoryUpsert(t *testing.T, open Opener) {
	store := open(t, nil)
	c := seedCatalog(t, store)
	mustRun(t, store, func(tx domain.Transaction) error {
		item, inserted, err := tx.UpsertInventory(domain.InventoryItem{PharmacyID: c.pharmacy.ID, DrugID: c.aspirin.ID, Price: 15, Stock: 9})
		if err != nil {
			return err
		}
		if inserted || item.Price != 15 {
			t.Fatalf("expected overwrite of existing row, got inserted=%v item=%+v", inserted, item)
		}
		if _, _, err := tx.UpsertInventory(domain.InventoryItem{PharmacyID: c.pharmacy.ID, DrugID: c.aspirin.ID + c.ibuprof.ID + 100, Price: 1, Stock: 1}); err == nil {
			t.Fatalf("expected unknown drug to be rejected")
		}
		return nil
	})
	mustRun(t, store, func(tx domain.Transaction) error { return tx.DeleteInventory(c.pharmacy.ID, c.ibuprof.ID) })
	view(t, store, func(v domain.TransactionView) {
		items := v.ListInventoryOfPharmacy(c.pharmacy.ID)
		if len(items) != 1 || items[0].Stock != 9 {
			t.Fatalf("unexpected inventory %+v", items)
		}
		if len(v.ListInventoryOfDrug(c.ibuprof.ID)) != 0 {
			t.Fatalf("expected ibuprofen row removed")
		}
	})
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		return tx.DeleteInventory(c.pharmacy.ID, c.ibuprof.ID)
	})
	expectKind(t, err, domain.KindNotFound)
}

func testPrescriptions(t *testing.T, open Opener) {
	store := open(t, nil)
	ctx := context.Background()
	c := seedCatalog(t, store)
	var early, late domain.Prescription
	mustRun(t, store, func(tx domain.Transaction) error {
		if _, err := tx.InsertDoctor(domain.Doctor{NationalID: "D00000000001", Name: "Ada"}); err != nil {
			return err
		}
		if _, err := tx.InsertPatient(domain.Patient{NationalID: "P00000000001", Name: "Pat", DoctorID: "D00000000001"}); err != nil {
			return err
		}
		var err error
		if late, err = tx.InsertPrescription(domain.Prescription{PatientID: "P00000000001", DoctorID: "D00000000001", Date: day(t, "2024-03-02")}); err != nil {
			return err
		}
		if early, err = tx.InsertPrescription(domain.Prescription{PatientID: "P00000000001", DoctorID: "D00000000001", Date: day(t, "2024-03-01")}); err != nil {
			return err
		}
		_, inserted, err := tx.UpsertPrescriptionLine(domain.PrescriptionLine{PrescriptionID: late.ID, DrugID: c.aspirin.ID, Quantity: 2})
		if err == nil && !inserted {
			t.Fatalf("expected first line upsert to insert")
		}
		return err
	})

	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.InsertPrescription(domain.Prescription{PatientID: "P00000000001", DoctorID: "D00000000001", Date: day(t, "2024-03-01")})
		return err
	})
	expectKind(t, err, domain.KindDuplicateKey)

	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdatePrescription(early.ID, func(p *domain.Prescription) error {
			p.Date = day(t, "2024-03-02")
			return nil
		})
		return err
	})
	expectKind(t, err, domain.KindDuplicateKey)

	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error { return tx.DeletePrescription(late.ID) })
	if !errors.Is(err, domain.ErrDependencyExists) {
		t.Fatalf("expected lines to restrict prescription delete, got %v", err)
	}
	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error { return tx.DeleteDrug(c.aspirin.ID) })
	if !errors.Is(err, domain.ErrDependencyExists) {
		t.Fatalf("expected lines to restrict drug delete, got %v", err)
	}
	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error { return tx.DeletePatient("P00000000001") })
	expectKind(t, err, domain.KindDependencyExists)

	view(t, store, func(v domain.TransactionView) {
		pair := v.ListPrescriptionsOfPair("P00000000001", "D00000000001")
		if len(pair) != 2 || pair[0].ID != early.ID || pair[1].ID != late.ID {
			t.Fatalf("expected pair ordered by date, got %+v", pair)
		}
		found, ok := v.FindPrescriptionByKey("P00000000001", "D00000000001", day(t, "2024-03-02"))
		if !ok || found.ID != late.ID {
			t.Fatalf("expected lookup by natural key, got %+v (found=%v)", found, ok)
		}
		if v.CountLinesOfDrug(c.aspirin.ID) != 1 || v.CountLinesOfPrescription(late.ID) != 1 {
			t.Fatalf("unexpected line counts")
		}
		if v.CountPrescriptionsOfPatient("P00000000001") != 2 || v.CountPrescriptionsOfDoctor("D00000000001") != 2 {
			t.Fatalf("unexpected prescription counts")
		}
	})

	mustRun(t, store, func(tx domain.Transaction) error {
		line, inserted, err := tx.UpsertPrescriptionLine(domain.PrescriptionLine{PrescriptionID: late.ID, DrugID: c.aspirin.ID, Quantity: 5})
		if err != nil {
			return err
		}
		if inserted || line.Quantity != 5 {
			t.Fatalf("expected quantity overwrite, got inserted=%v line=%+v", inserted, line)
		}
		if err := tx.DeletePrescriptionLine(late.ID, c.aspirin.ID); err != nil {
			return err
		}
		return tx.DeletePrescription(late.ID)
	})
	view(t, store, func(v domain.TransactionView) {
		if len(v.ListPrescriptionLines()) != 0 || len(v.ListPrescriptions()) != 1 {
			t.Fatalf("expected only the early prescription to remain")
		}
	})
}

func testRollbackOnError(t *testing.T, open Opener) {
	store := open(t, nil)
	boom := errors.New("boom")
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.InsertManufacturer(domain.Manufacturer{Name: "Acme"}); err != nil {
			return err
		}
		if _, ok := tx.Snapshot().FindManufacturer("Acme"); !ok {
			t.Fatalf("expected transaction to observe its own write")
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	view(t, store, func(v domain.TransactionView) {
		if len(v.ListManufacturers()) != 0 {
			t.Fatalf("expected rollback, got %+v", v.ListManufacturers())
		}
	})
}

func testRulesGateCommit(t *testing.T, open Opener) {
	engine := domain.NewRulesEngine()
	engine.Register(RuleFunc{RuleName: "no_blocked", Fn: func(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
		var res domain.Result
		for _, ch := range changes {
			m, ok := ch.After.(domain.Manufacturer)
			if !ok {
				continue
			}
			severity := domain.SeverityWarn
			if m.Name == "Blocked" {
				severity = domain.SeverityBlock
			}
			if _, found := view.FindManufacturer(m.Name); !found {
				t.Fatalf("rule must observe uncommitted rows")
			}
			res.Violations = append(res.Violations, domain.Violation{Rule: "no_blocked", Severity: severity, Message: m.Name, Entity: domain.EntityManufacturer, EntityID: m.Name})
		}
		return res, nil
	}})
	store := open(t, engine)

	res := mustRun(t, store, func(tx domain.Transaction) error {
		_, err := tx.InsertManufacturer(domain.Manufacturer{Name: "Allowed"})
		return err
	})
	if len(res.Violations) != 1 || res.HasBlocking() {
		t.Fatalf("expected a single warning, got %+v", res)
	}

	res, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.InsertManufacturer(domain.Manufacturer{Name: "Blocked"})
		return err
	})
	var rve domain.RuleViolationError
	if !errors.As(err, &rve) || !res.HasBlocking() {
		t.Fatalf("expected rule violation, got res=%+v err=%v", res, err)
	}
	view(t, store, func(v domain.TransactionView) {
		if _, ok := v.FindManufacturer("Blocked"); ok {
			t.Fatalf("blocked manufacturer must not be committed")
		}
		if _, ok := v.FindManufacturer("Allowed"); !ok {
			t.Fatalf("allowed manufacturer must be committed")
		}
	})
}
