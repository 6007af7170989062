// Package constraints evaluates the relational keys every store enforces as a
// backstop: unique keys, foreign keys on write, and restricting foreign keys
// on delete. Stores run these checks against their transactional view before
// issuing a write so that every backend reports the same error taxonomy.
package constraints

import "pharmacore/pkg/domain"

// Patient checks the physician reference of a patient row.
func Patient(view domain.TransactionView, p domain.Patient) error {
	if _, ok := view.FindDoctor(p.DoctorID); !ok {
		return domain.NotFound(domain.EntityDoctor, p.DoctorID)
	}
	return nil
}

// DeleteDoctor reports rows that restrict deleting a doctor.
func DeleteDoctor(view domain.TransactionView, id string) error {
	if view.CountPatientsOfDoctor(id, "") > 0 {
		return domain.DependencyExists(domain.EntityDoctor, id, domain.EntityPatient)
	}
	if view.CountPrescriptionsOfDoctor(id) > 0 {
		return domain.DependencyExists(domain.EntityDoctor, id, domain.EntityPrescription)
	}
	return nil
}

// DeletePatient reports rows that restrict deleting a patient.
func DeletePatient(view domain.TransactionView, id string) error {
	if view.CountPrescriptionsOfPatient(id) > 0 {
		return domain.DependencyExists(domain.EntityPatient, id, domain.EntityPrescription)
	}
	return nil
}

// DeleteManufacturer reports rows that restrict deleting a manufacturer.
// Drugs cascade, so a prescribed drug restricts the manufacturer as well.
func DeleteManufacturer(view domain.TransactionView, name string) error {
	if len(view.ListContractsOfManufacturer(name)) > 0 {
		return domain.DependencyExists(domain.EntityManufacturer, name, domain.EntityContract)
	}
	for _, d := range view.ListDrugsOfManufacturer(name) {
		if view.CountLinesOfDrug(d.ID) > 0 {
			return domain.DependencyExists(domain.EntityManufacturer, name, domain.EntityPrescriptionLine)
		}
	}
	return nil
}

// DeletePharmacy reports rows that restrict deleting a pharmacy.
func DeletePharmacy(view domain.TransactionView, id int64) error {
	if len(view.ListInventoryOfPharmacy(id)) > 0 {
		return domain.DependencyExists(domain.EntityPharmacy, domain.IDKey(id), domain.EntityInventory)
	}
	if len(view.ListContractsOfPharmacy(id)) > 0 {
		return domain.DependencyExists(domain.EntityPharmacy, domain.IDKey(id), domain.EntityContract)
	}
	return nil
}

// Drug checks the manufacturer reference and the (trade name, manufacturer)
// unique key. d.ID is excluded from the uniqueness check.
func Drug(view domain.TransactionView, d domain.Drug) error {
	if _, ok := view.FindManufacturer(d.Manufacturer); !ok {
		return domain.NotFound(domain.EntityManufacturer, d.Manufacturer)
	}
	if existing, ok := view.FindDrugByTradeName(d.TradeName, d.Manufacturer); ok && existing.ID != d.ID {
		return domain.DuplicateKey(domain.EntityDrug, domain.DrugNaturalKey(d.TradeName, d.Manufacturer))
	}
	return nil
}

// DeleteDrug reports rows that restrict deleting a drug.
func DeleteDrug(view domain.TransactionView, id int64) error {
	if view.CountLinesOfDrug(id) > 0 {
		return domain.DependencyExists(domain.EntityDrug, domain.IDKey(id), domain.EntityPrescriptionLine)
	}
	return nil
}

// Contract checks the pharmacy and manufacturer references of a contract.
func Contract(view domain.TransactionView, c domain.Contract) error {
	if _, ok := view.FindPharmacy(c.PharmacyID); !ok {
		return domain.NotFound(domain.EntityPharmacy, domain.IDKey(c.PharmacyID))
	}
	if _, ok := view.FindManufacturer(c.Manufacturer); !ok {
		return domain.NotFound(domain.EntityManufacturer, c.Manufacturer)
	}
	return nil
}

// Inventory checks the pharmacy and drug references of an inventory row.
func Inventory(view domain.TransactionView, item domain.InventoryItem) error {
	if _, ok := view.FindPharmacy(item.PharmacyID); !ok {
		return domain.NotFound(domain.EntityPharmacy, domain.IDKey(item.PharmacyID))
	}
	if _, ok := view.FindDrug(item.DrugID); !ok {
		return domain.NotFound(domain.EntityDrug, domain.IDKey(item.DrugID))
	}
	return nil
}

// Prescription checks the patient and doctor references and the
// (patient, doctor, date) unique key. p.ID is excluded from the uniqueness check.
func Prescription(view domain.TransactionView, p domain.Prescription) error {
	if _, ok := view.FindPatient(p.PatientID); !ok {
		return domain.NotFound(domain.EntityPatient, p.PatientID)
	}
	if _, ok := view.FindDoctor(p.DoctorID); !ok {
		return domain.NotFound(domain.EntityDoctor, p.DoctorID)
	}
	if existing, ok := view.FindPrescriptionByKey(p.PatientID, p.DoctorID, p.Date); ok && existing.ID != p.ID {
		return domain.DuplicateKey(domain.EntityPrescription, domain.PrescriptionNaturalKey(p.PatientID, p.DoctorID, p.Date))
	}
	return nil
}

// DeletePrescription reports rows that restrict deleting a prescription.
func DeletePrescription(view domain.TransactionView, id int64) error {
	if view.CountLinesOfPrescription(id) > 0 {
		return domain.DependencyExists(domain.EntityPrescription, domain.IDKey(id), domain.EntityPrescriptionLine)
	}
	return nil
}

// PrescriptionLine checks the prescription and drug references of a line.
func PrescriptionLine(view domain.TransactionView, l domain.PrescriptionLine) error {
	if _, ok := view.FindPrescription(l.PrescriptionID); !ok {
		return domain.NotFound(domain.EntityPrescription, domain.IDKey(l.PrescriptionID))
	}
	if _, ok := view.FindDrug(l.DrugID); !ok {
		return domain.NotFound(domain.EntityDrug, domain.IDKey(l.DrugID))
	}
	return nil
}
