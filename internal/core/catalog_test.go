package core

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"pharmacore/pkg/domain"
)

func TestContractWindowScenario(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	mustAddManufacturer(t, svc, "M")
	mustAddDrug(t, svc, "X", "M")
	pharmacy := mustAddPharmacy(t, svc, "Central")

	start := day(2024, time.June, 1)
	for _, end := range []time.Time{start, start.AddDate(0, 0, -1)} {
		_, _, err := svc.AddContract(ctx, domain.Contract{PharmacyID: pharmacy.ID, Manufacturer: "M", StartDate: start, EndDate: end})
		expectKind(t, err, domain.KindInvalidArgument)
	}

	created, _, err := svc.AddContract(ctx, domain.Contract{PharmacyID: pharmacy.ID, Manufacturer: "M", StartDate: start, EndDate: start.AddDate(1, 0, 0)})
	if err != nil {
		t.Fatalf("add contract: %v", err)
	}
	if created.ID == 0 {
		t.Fatalf("expected assigned contract id")
	}
	contracts, _ := svc.ContractsFor(ctx, pharmacy.ID, "M")
	if len(contracts) != 1 {
		t.Fatalf("expected one contract, got %d", len(contracts))
	}
}

func TestContractDatesMustFitFourDigitYears(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	mustAddManufacturer(t, svc, "M")
	pharmacy := mustAddPharmacy(t, svc, "Central")

	_, _, err := svc.AddContract(ctx, domain.Contract{PharmacyID: pharmacy.ID, Manufacturer: "M", StartDate: day(2024, 1, 1), EndDate: day(10000, 1, 1)})
	expectKind(t, err, domain.KindInvalidArgument)

	contract := mustAddContract(t, svc, pharmacy.ID, "M")
	_, _, err = svc.UpdateContract(ctx, contract.ID, func(c *domain.Contract) error {
		c.EndDate = day(10000, 1, 1)
		return nil
	})
	expectKind(t, err, domain.KindInvalidArgument)

	contracts, err := svc.ContractsFor(ctx, pharmacy.ID, "M")
	if err != nil || len(contracts) != 1 || !contracts[0].EndDate.Equal(day(2024, time.December, 31)) {
		t.Fatalf("unexpected contracts %+v (%v)", contracts, err)
	}
}

func TestAddContractReferences(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	mustAddManufacturer(t, svc, "M")
	pharmacy := mustAddPharmacy(t, svc, "Central")
	window := domain.Contract{StartDate: day(2024, 1, 1), EndDate: day(2024, 2, 1)}

	c := window
	c.PharmacyID, c.Manufacturer = pharmacy.ID+10, "M"
	_, _, err := svc.AddContract(ctx, c)
	expectKind(t, err, domain.KindNotFound)

	c.PharmacyID, c.Manufacturer = pharmacy.ID, "Nobody"
	_, _, err = svc.AddContract(ctx, c)
	expectKind(t, err, domain.KindNotFound)
}

func TestUpdateContractRevalidates(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	mustAddManufacturer(t, svc, "M")
	pharmacy := mustAddPharmacy(t, svc, "Central")
	contract := mustAddContract(t, svc, pharmacy.ID, "M")

	_, _, err := svc.UpdateContract(ctx, contract.ID, func(c *domain.Contract) error {
		c.EndDate = c.StartDate
		return nil
	})
	expectKind(t, err, domain.KindInvalidArgument)

	_, _, err = svc.UpdateContract(ctx, contract.ID, func(c *domain.Contract) error {
		c.Manufacturer = "Nobody"
		return nil
	})
	expectKind(t, err, domain.KindNotFound)

	updated, _, err := svc.UpdateContract(ctx, contract.ID, func(c *domain.Contract) error {
		c.Supervisor = "Lee"
		c.EndDate = time.Date(2025, 3, 1, 17, 30, 0, 0, time.UTC)
		return nil
	})
	if err != nil {
		t.Fatalf("update contract: %v", err)
	}
	if updated.Supervisor != "Lee" || !updated.EndDate.Equal(day(2025, 3, 1)) {
		t.Fatalf("unexpected contract: %+v", updated)
	}

	if _, err := svc.DeleteContract(ctx, contract.ID); err != nil {
		t.Fatalf("delete contract: %v", err)
	}
	_, err = svc.DeleteContract(ctx, contract.ID)
	expectKind(t, err, domain.KindNotFound)
}

func TestAddDrugRequiresManufacturerAndUniqueName(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, _, err := svc.AddDrug(ctx, domain.Drug{TradeName: "X", Manufacturer: "M"})
	expectKind(t, err, domain.KindNotFound)

	mustAddManufacturer(t, svc, "M")
	mustAddManufacturer(t, svc, "N")
	first := mustAddDrug(t, svc, "X", "M")
	_, _, err = svc.AddDrug(ctx, domain.Drug{ID: 99, TradeName: "X", Manufacturer: "M"})
	expectKind(t, err, domain.KindDuplicateKey)

	other, _, err := svc.AddDrug(ctx, domain.Drug{ID: first.ID, TradeName: "X", Manufacturer: "N"})
	if err != nil {
		t.Fatalf("same trade name under another manufacturer: %v", err)
	}
	if other.ID == first.ID {
		t.Fatalf("expected a fresh drug id, got %d", other.ID)
	}

	_, _, err = svc.UpdateDrug(ctx, other.ID, func(d *domain.Drug) error {
		d.Manufacturer = "M"
		return nil
	})
	expectKind(t, err, domain.KindDuplicateKey)

	_, _, err = svc.AddDrug(ctx, domain.Drug{TradeName: " ", Manufacturer: "M"})
	expectKind(t, err, domain.KindInvalidArgument)
}

func TestDeleteManufacturerCascades(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	mustAddManufacturer(t, svc, "M")
	mustAddManufacturer(t, svc, "N")
	x := mustAddDrug(t, svc, "X", "M")
	y := mustAddDrug(t, svc, "Y", "M")
	z := mustAddDrug(t, svc, "Z", "N")
	pharmacy := mustAddPharmacy(t, svc, "Central")
	mustAddContract(t, svc, pharmacy.ID, "M")
	kept := mustAddContract(t, svc, pharmacy.ID, "N")
	if _, _, err := svc.AssignInventory(ctx, domain.InventoryItem{PharmacyID: pharmacy.ID, DrugID: x.ID, Price: 2, Stock: 3}); err != nil {
		t.Fatalf("assign inventory: %v", err)
	}

	if _, err := svc.DeleteManufacturer(ctx, "M"); err != nil {
		t.Fatalf("delete manufacturer: %v", err)
	}

	for _, id := range []int64{x.ID, y.ID} {
		_, _, err := svc.UpdateDrug(ctx, id, func(*domain.Drug) error { return nil })
		expectKind(t, err, domain.KindNotFound)
	}
	contracts, _ := svc.ListContracts(ctx)
	if len(contracts) != 1 || contracts[0].ID != kept.ID {
		t.Fatalf("expected only N's contract, got %+v", contracts)
	}
	inventory, _ := svc.ListInventory(ctx)
	if len(inventory) != 0 {
		t.Fatalf("expected inventory to cascade, got %+v", inventory)
	}
	drugs, _ := svc.ListDrugs(ctx)
	if len(drugs) != 1 || drugs[0].ID != z.ID {
		t.Fatalf("expected only Z to remain, got %+v", drugs)
	}
	_, err := svc.DeleteManufacturer(ctx, "M")
	expectKind(t, err, domain.KindNotFound)
}

func TestDeleteManufacturerWithPrescribedDrug(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	clinic(t, svc)
	mustAddManufacturer(t, svc, "M")
	x := mustAddDrug(t, svc, "X", "M")
	rx := mustAddPrescription(t, svc, patient1, doctorA, day(2024, 4, 4))
	mustAddLine(t, svc, rx.ID, x.ID, 1)

	_, err := svc.DeleteManufacturer(ctx, "M")
	expectKind(t, err, domain.KindDependencyExists)
	if _, _, err := svc.UpdateDrug(ctx, x.ID, func(*domain.Drug) error { return nil }); err != nil {
		t.Fatalf("drug should survive a refused delete: %v", err)
	}
}

func TestRenameManufacturerFansOut(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	mustAddManufacturer(t, svc, "Acme")
	mustAddManufacturer(t, svc, "Other")
	x := mustAddDrug(t, svc, "X", "Acme")
	y := mustAddDrug(t, svc, "Y", "Acme")
	pharmacy := mustAddPharmacy(t, svc, "Central")
	contract := mustAddContract(t, svc, pharmacy.ID, "Acme")

	_, _, err := svc.RenameManufacturer(ctx, "Acme", "Other")
	expectKind(t, err, domain.KindDuplicateKey)
	_, _, err = svc.RenameManufacturer(ctx, "Missing", "Fresh")
	expectKind(t, err, domain.KindNotFound)
	_, _, err = svc.RenameManufacturer(ctx, "Acme", "")
	expectKind(t, err, domain.KindInvalidArgument)

	renamed, _, err := svc.RenameManufacturer(ctx, "Acme", "Acme Labs")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if renamed.Name != "Acme Labs" || renamed.Phone != "555-0100" {
		t.Fatalf("unexpected renamed manufacturer: %+v", renamed)
	}

	drugs, _ := svc.ListDrugs(ctx)
	for _, d := range drugs {
		if (d.ID == x.ID || d.ID == y.ID) && d.Manufacturer != "Acme Labs" {
			t.Fatalf("drug %d still references %s", d.ID, d.Manufacturer)
		}
	}
	contracts, _ := svc.ContractsFor(ctx, pharmacy.ID, "Acme Labs")
	if len(contracts) != 1 || contracts[0].ID != contract.ID {
		t.Fatalf("expected contract to follow the rename, got %+v", contracts)
	}
	_, err = svc.CompanyDrugCatalog(ctx, "Acme")
	expectKind(t, err, domain.KindNotFound)

	same, _, err := svc.RenameManufacturer(ctx, "Acme Labs", "Acme Labs")
	if err != nil || same.Name != "Acme Labs" {
		t.Fatalf("rename to same name: %+v %v", same, err)
	}
}

func TestUpdateManufacturerNameImmutable(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	mustAddManufacturer(t, svc, "M")

	_, _, err := svc.UpdateManufacturer(ctx, "M", func(m *domain.Manufacturer) error {
		m.Name = "N"
		return nil
	})
	expectKind(t, err, domain.KindInvalidArgument)

	updated, _, err := svc.UpdateManufacturer(ctx, "M", func(m *domain.Manufacturer) error {
		m.Phone = "555-9999"
		return nil
	})
	if err != nil || updated.Phone != "555-9999" {
		t.Fatalf("update phone: %+v %v", updated, err)
	}
	_, _, err = svc.AddManufacturer(ctx, domain.Manufacturer{Name: "M"})
	expectKind(t, err, domain.KindDuplicateKey)
}

func TestDeleteDrugBlockedByLine(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	clinic(t, svc)
	mustAddManufacturer(t, svc, "M")
	x := mustAddDrug(t, svc, "X", "M")
	y := mustAddDrug(t, svc, "Y", "M")
	pharmacy := mustAddPharmacy(t, svc, "Central")
	if _, _, err := svc.AssignInventory(ctx, domain.InventoryItem{PharmacyID: pharmacy.ID, DrugID: x.ID, Price: 1.5, Stock: 2}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	rx := mustAddPrescription(t, svc, patient1, doctorA, day(2024, 4, 4))
	mustAddLine(t, svc, rx.ID, x.ID, 2)
	mustAddLine(t, svc, rx.ID, y.ID, 1)

	_, err := svc.DeleteDrug(ctx, x.ID)
	expectKind(t, err, domain.KindDependencyExists)

	if _, _, err := svc.RemovePrescriptionLine(ctx, rx.ID, x.ID); err != nil {
		t.Fatalf("remove line: %v", err)
	}
	if _, err := svc.DeleteDrug(ctx, x.ID); err != nil {
		t.Fatalf("delete drug after removing line: %v", err)
	}
	stock, _ := svc.PharmacyStockPosition(ctx, pharmacy.ID)
	if len(stock) != 0 {
		t.Fatalf("expected inventory of deleted drug to be removed, got %+v", stock)
	}
}

func TestAssignInventoryIsIdempotentUpsert(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	mustAddManufacturer(t, svc, "M")
	x := mustAddDrug(t, svc, "X", "M")
	pharmacy := mustAddPharmacy(t, svc, "Central")

	if _, _, err := svc.AssignInventory(ctx, domain.InventoryItem{PharmacyID: pharmacy.ID, DrugID: x.ID, Price: 3, Stock: 10}); err != nil {
		t.Fatalf("first assign: %v", err)
	}
	stored, res, err := svc.AssignInventory(ctx, domain.InventoryItem{PharmacyID: pharmacy.ID, DrugID: x.ID, Price: 4.25, Stock: 0})
	if err != nil {
		t.Fatalf("second assign: %v", err)
	}
	if stored.Price != 4.25 || stored.Stock != 0 {
		t.Fatalf("unexpected stored row: %+v", stored)
	}
	if len(res.Violations) != 1 || res.Violations[0].Rule != stockDepletedRuleName || res.Violations[0].Severity != domain.SeverityWarn {
		t.Fatalf("expected stock warning, got %+v", res.Violations)
	}
	inventory, _ := svc.ListInventory(ctx)
	if len(inventory) != 1 || inventory[0].Price != 4.25 || inventory[0].Stock != 0 {
		t.Fatalf("expected exactly one row with the latest values, got %+v", inventory)
	}
}

func TestAssignInventoryValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	mustAddManufacturer(t, svc, "M")
	x := mustAddDrug(t, svc, "X", "M")
	pharmacy := mustAddPharmacy(t, svc, "Central")

	for _, item := range []domain.InventoryItem{
		{PharmacyID: pharmacy.ID, DrugID: x.ID, Price: 0, Stock: 1},
		{PharmacyID: pharmacy.ID, DrugID: x.ID, Price: -1, Stock: 1},
		{PharmacyID: pharmacy.ID, DrugID: x.ID, Price: math.NaN(), Stock: 1},
		{PharmacyID: pharmacy.ID, DrugID: x.ID, Price: 1, Stock: -1},
	} {
		_, _, err := svc.AssignInventory(ctx, item)
		expectKind(t, err, domain.KindInvalidArgument)
	}
	_, _, err := svc.AssignInventory(ctx, domain.InventoryItem{PharmacyID: pharmacy.ID, DrugID: x.ID + 7, Price: 1, Stock: 1})
	expectKind(t, err, domain.KindNotFound)

	_, err = svc.RemoveInventory(ctx, pharmacy.ID, x.ID)
	expectKind(t, err, domain.KindNotFound)
}

func TestDeletePharmacyCascades(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	mustAddManufacturer(t, svc, "M")
	x := mustAddDrug(t, svc, "X", "M")
	central := mustAddPharmacy(t, svc, "Central")
	north := mustAddPharmacy(t, svc, "North")
	mustAddContract(t, svc, central.ID, "M")
	mustAddContract(t, svc, north.ID, "M")
	for _, id := range []int64{central.ID, north.ID} {
		if _, _, err := svc.AssignInventory(ctx, domain.InventoryItem{PharmacyID: id, DrugID: x.ID, Price: 1, Stock: 1}); err != nil {
			t.Fatalf("assign: %v", err)
		}
	}

	if _, err := svc.DeletePharmacy(ctx, central.ID); err != nil {
		t.Fatalf("delete pharmacy: %v", err)
	}
	inventory, _ := svc.ListInventory(ctx)
	contracts, _ := svc.ListContracts(ctx)
	if len(inventory) != 1 || inventory[0].PharmacyID != north.ID {
		t.Fatalf("unexpected inventory: %+v", inventory)
	}
	if len(contracts) != 1 || contracts[0].PharmacyID != north.ID {
		t.Fatalf("unexpected contracts: %+v", contracts)
	}
	_, err := svc.PharmacyStockPosition(ctx, central.ID)
	expectKind(t, err, domain.KindNotFound)
}

func TestPharmacyIDsAreStoreAssigned(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	first, _, err := svc.AddPharmacy(ctx, domain.Pharmacy{ID: 42, Name: "Central"})
	if err != nil {
		t.Fatalf("add pharmacy: %v", err)
	}
	second := mustAddPharmacy(t, svc, "North")
	if first.ID == 42 || second.ID <= first.ID {
		t.Fatalf("expected sequential store ids, got %d and %d", first.ID, second.ID)
	}

	_, _, err = svc.UpdatePharmacy(ctx, first.ID, func(p *domain.Pharmacy) error {
		p.Name = ""
		return nil
	})
	expectKind(t, err, domain.KindInvalidArgument)

	_, _, err = svc.UpdatePharmacy(ctx, first.ID, func(*domain.Pharmacy) error { return errMutator })
	if !errors.Is(err, errMutator) {
		t.Fatalf("expected mutator error, got %v", err)
	}
}
