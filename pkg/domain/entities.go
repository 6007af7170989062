// Package domain defines the persistent entities, value types, error taxonomy,
// and rule evaluation primitives used by pharmacore.
package domain

import (
	"strconv"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records, errors, and persistence tables.
const (
	// EntityDoctor identifies a treating physician.
	EntityDoctor EntityType = "doctor"
	// EntityPatient identifies a patient record.
	EntityPatient EntityType = "patient"
	// EntityManufacturer identifies a drug manufacturer (pharmaceutical company).
	EntityManufacturer EntityType = "manufacturer"
	// EntityPharmacy identifies a pharmacy outlet.
	EntityPharmacy EntityType = "pharmacy"
	// EntityDrug identifies a drug sold under a trade name by one manufacturer.
	EntityDrug EntityType = "drug"
	// EntityContract identifies a supply contract between a pharmacy and a manufacturer.
	EntityContract EntityType = "contract"
	// EntityInventory identifies a pharmacy x drug stock row.
	EntityInventory EntityType = "inventory"
	// EntityPrescription identifies a prescription header.
	EntityPrescription EntityType = "prescription"
	// EntityPrescriptionLine identifies a prescription x drug line.
	EntityPrescriptionLine EntityType = "prescription_line"
)

// NationalIDLength is the number of digits in a patient or doctor national identifier.
const NationalIDLength = 12

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn reports a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Doctor is a treating physician keyed by national ID.
type Doctor struct {
	NationalID        string `json:"national_id"`
	Name              string `json:"name"`
	Specialty         string `json:"specialty"`
	YearsOfExperience int    `json:"years_of_experience"`
}

// Patient is keyed by national ID and always references its primary physician.
type Patient struct {
	NationalID string `json:"national_id"`
	Name       string `json:"name"`
	Address    string `json:"address"`
	Age        int    `json:"age"`
	DoctorID   string `json:"doctor_id"`
}

// Manufacturer is a pharmaceutical company keyed by its unique name.
type Manufacturer struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Pharmacy is an outlet of the chain.
type Pharmacy struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

// Drug is unique per (TradeName, Manufacturer).
type Drug struct {
	ID           int64  `json:"id"`
	TradeName    string `json:"trade_name"`
	Formula      string `json:"formula"`
	Manufacturer string `json:"manufacturer"`
}

// Contract links one pharmacy to one manufacturer over a date window.
type Contract struct {
	ID           int64     `json:"id"`
	PharmacyID   int64     `json:"pharmacy_id"`
	Manufacturer string    `json:"manufacturer"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	Content      string    `json:"content"`
	Supervisor   string    `json:"supervisor"`
}

// InventoryItem is the association row between a pharmacy and a drug it sells.
type InventoryItem struct {
	PharmacyID int64   `json:"pharmacy_id"`
	DrugID     int64   `json:"drug_id"`
	Price      float64 `json:"price"`
	Stock      int     `json:"stock"`
}

// Key returns the composite key of the inventory row.
func (i InventoryItem) Key() InventoryKey {
	return InventoryKey{PharmacyID: i.PharmacyID, DrugID: i.DrugID}
}

// InventoryKey identifies an inventory row.
type InventoryKey struct {
	PharmacyID int64
	DrugID     int64
}

func (k InventoryKey) String() string {
	return strconv.FormatInt(k.PharmacyID, 10) + "/" + strconv.FormatInt(k.DrugID, 10)
}

// Prescription is issued by a doctor to a patient on a calendar date.
type Prescription struct {
	ID        int64     `json:"id"`
	PatientID string    `json:"patient_id"`
	DoctorID  string    `json:"doctor_id"`
	Date      time.Time `json:"date"`
}

// PrescriptionLine is the association row between a prescription and a drug.
type PrescriptionLine struct {
	PrescriptionID int64 `json:"prescription_id"`
	DrugID         int64 `json:"drug_id"`
	Quantity       int   `json:"quantity"`
}

// Key returns the composite key of the line.
func (l PrescriptionLine) Key() LineKey {
	return LineKey{PrescriptionID: l.PrescriptionID, DrugID: l.DrugID}
}

// LineKey identifies a prescription line.
type LineKey struct {
	PrescriptionID int64
	DrugID         int64
}

func (k LineKey) String() string {
	return strconv.FormatInt(k.PrescriptionID, 10) + "/" + strconv.FormatInt(k.DrugID, 10)
}

// IDKey renders a surrogate identifier for error keys and logs.
func IDKey(id int64) string { return strconv.FormatInt(id, 10) }

// DrugNaturalKey renders the (trade name, manufacturer) uniqueness key.
func DrugNaturalKey(tradeName, manufacturer string) string {
	return tradeName + "/" + manufacturer
}

// PrescriptionNaturalKey renders the (patient, doctor, date) uniqueness key.
func PrescriptionNaturalKey(patientID, doctorID string, date time.Time) string {
	return patientID + "/" + doctorID + "/" + FormatDate(date)
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Blocking returns only the blocking violations.
func (r Result) Blocking() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			out = append(out, v)
		}
	}
	return out
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	blocking := e.Result.Blocking()
	if len(blocking) == 0 {
		return "transaction blocked by rules"
	}
	return "transaction blocked by rules: " + blocking[0].Rule + ": " + blocking[0].Message
}
