package domain

import (
	"context"
	"time"
)

// Transaction exposes the row operations that a persistence implementation
// must support within an atomic scope. Insert/Update/Delete report store
// constraint failures as *Error values (DuplicateKey, NotFound,
// DependencyExists) so that callers bypassing the service still observe the
// same taxonomy.
type Transaction interface {
	Snapshot() TransactionView

	InsertDoctor(Doctor) (Doctor, error)
	UpdateDoctor(id string, mutator func(*Doctor) error) (Doctor, error)
	DeleteDoctor(id string) error

	InsertPatient(Patient) (Patient, error)
	UpdatePatient(id string, mutator func(*Patient) error) (Patient, error)
	DeletePatient(id string) error

	InsertManufacturer(Manufacturer) (Manufacturer, error)
	UpdateManufacturer(name string, mutator func(*Manufacturer) error) (Manufacturer, error)
	// DeleteManufacturer removes the manufacturer and cascades to its drugs
	// and their inventory rows.
	DeleteManufacturer(name string) error

	InsertPharmacy(Pharmacy) (Pharmacy, error)
	UpdatePharmacy(id int64, mutator func(*Pharmacy) error) (Pharmacy, error)
	DeletePharmacy(id int64) error

	InsertDrug(Drug) (Drug, error)
	UpdateDrug(id int64, mutator func(*Drug) error) (Drug, error)
	// DeleteDrug removes the drug and cascades to its inventory rows.
	DeleteDrug(id int64) error

	InsertContract(Contract) (Contract, error)
	UpdateContract(id int64, mutator func(*Contract) error) (Contract, error)
	DeleteContract(id int64) error

	// UpsertInventory inserts or overwrites the row keyed by (pharmacy, drug).
	// The boolean reports whether a new row was inserted.
	UpsertInventory(InventoryItem) (InventoryItem, bool, error)
	DeleteInventory(pharmacyID, drugID int64) error

	InsertPrescription(Prescription) (Prescription, error)
	UpdatePrescription(id int64, mutator func(*Prescription) error) (Prescription, error)
	DeletePrescription(id int64) error

	// UpsertPrescriptionLine inserts or overwrites the row keyed by
	// (prescription, drug). The boolean reports whether a new row was inserted.
	UpsertPrescriptionLine(PrescriptionLine) (PrescriptionLine, bool, error)
	DeletePrescriptionLine(prescriptionID, drugID int64) error
}

// TransactionView provides read-only access to store data for the service,
// rules, and reports. Lists are ordered by their natural display key.
type TransactionView interface {
	FindDoctor(id string) (Doctor, bool)
	FindPatient(id string) (Patient, bool)
	FindManufacturer(name string) (Manufacturer, bool)
	FindPharmacy(id int64) (Pharmacy, bool)
	FindDrug(id int64) (Drug, bool)
	FindDrugByTradeName(tradeName, manufacturer string) (Drug, bool)
	FindContract(id int64) (Contract, bool)
	FindInventory(pharmacyID, drugID int64) (InventoryItem, bool)
	FindPrescription(id int64) (Prescription, bool)
	FindPrescriptionByKey(patientID, doctorID string, date time.Time) (Prescription, bool)
	FindPrescriptionLine(prescriptionID, drugID int64) (PrescriptionLine, bool)

	ListDoctors() []Doctor
	ListPatients() []Patient
	ListManufacturers() []Manufacturer
	ListPharmacies() []Pharmacy
	ListDrugs() []Drug
	ListContracts() []Contract
	ListInventory() []InventoryItem
	ListPrescriptions() []Prescription
	ListPrescriptionLines() []PrescriptionLine

	ListPatientsOfDoctor(doctorID string) []Patient
	ListDrugsOfManufacturer(name string) []Drug
	ListContractsOfManufacturer(name string) []Contract
	ListContractsOfPharmacy(pharmacyID int64) []Contract
	ListInventoryOfPharmacy(pharmacyID int64) []InventoryItem
	ListInventoryOfDrug(drugID int64) []InventoryItem
	// ListPrescriptionsOfPair returns the prescriptions of a (patient, doctor)
	// pair ordered by date then id.
	ListPrescriptionsOfPair(patientID, doctorID string) []Prescription
	ListPrescriptionsOfPatient(patientID string) []Prescription
	ListLinesOfPrescription(prescriptionID int64) []PrescriptionLine

	// CountPatientsOfDoctor counts patients of doctorID other than excludePatientID.
	CountPatientsOfDoctor(doctorID, excludePatientID string) int
	CountPrescriptionsOfPatient(patientID string) int
	CountPrescriptionsOfDoctor(doctorID string) int
	CountLinesOfDrug(drugID int64) int
	CountLinesOfPrescription(prescriptionID int64) int
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	// Close releases backend resources.
	Close() error
}

// Snapshot is the complete entity graph, used for exports and restores.
type Snapshot struct {
	Doctors           []Doctor           `json:"doctors"`
	Patients          []Patient          `json:"patients"`
	Manufacturers     []Manufacturer     `json:"manufacturers"`
	Pharmacies        []Pharmacy         `json:"pharmacies"`
	Drugs             []Drug             `json:"drugs"`
	Contracts         []Contract         `json:"contracts"`
	Inventory         []InventoryItem    `json:"inventory"`
	Prescriptions     []Prescription     `json:"prescriptions"`
	PrescriptionLines []PrescriptionLine `json:"prescription_lines"`
}

// SnapshotOf collects every entity visible through view.
func SnapshotOf(view TransactionView) Snapshot {
	return Snapshot{
		Doctors:           view.ListDoctors(),
		Patients:          view.ListPatients(),
		Manufacturers:     view.ListManufacturers(),
		Pharmacies:        view.ListPharmacies(),
		Drugs:             view.ListDrugs(),
		Contracts:         view.ListContracts(),
		Inventory:         view.ListInventory(),
		Prescriptions:     view.ListPrescriptions(),
		PrescriptionLines: view.ListPrescriptionLines(),
	}
}
