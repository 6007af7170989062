package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pharmacore/pkg/domain"
)

const (
	doctorColumns       = "national_id, name, specialty, years_of_experience"
	patientColumns      = "national_id, name, address, age, doctor_id"
	manufacturerColumns = "name, phone"
	pharmacyColumns     = "id, name, address, phone"
	drugColumns         = "id, trade_name, formula, manufacturer"
	contractColumns     = "id, pharmacy_id, manufacturer, start_date, end_date, content, supervisor"
	inventoryColumns    = "pharmacy_id, drug_id, price, stock"
	prescriptionColumns = "id, patient_id, doctor_id, issued_on"
	lineColumns         = "prescription_id, drug_id, quantity"
)

const (
	doctorOrder       = " ORDER BY name, national_id"
	patientOrder      = " ORDER BY name, national_id"
	drugOrder         = " ORDER BY trade_name, manufacturer, id"
	contractOrder     = " ORDER BY id"
	inventoryOrder    = " ORDER BY pharmacy_id, drug_id"
	prescriptionOrder = " ORDER BY issued_on, id"
	lineOrder         = " ORDER BY prescription_id, drug_id"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// view implements domain.TransactionView over an open sql.Tx. The first
// query failure is retained and every later read short-circuits to an empty
// answer; the owning store surfaces the failure.
type view struct {
	ctx     context.Context
	q       querier
	dialect Dialect
	err     error
}

func newView(ctx context.Context, q querier, dialect Dialect) *view {
	return &view{ctx: ctx, q: q, dialect: dialect}
}

// Err reports the first query failure observed by the view.
func (v *view) Err() error { return v.err }

func (v *view) fail(err error) {
	if v.err == nil {
		v.err = err
	}
}

func queryAll[T any](v *view, scan func(rowScanner) (T, error), query string, args ...any) []T {
	if v.err != nil {
		return nil
	}
	rows, err := v.q.QueryContext(v.ctx, v.dialect.Rebind(query), args...)
	if err != nil {
		v.fail(fmt.Errorf("query %q: %w", query, err))
		return nil
	}
	defer func() { _ = rows.Close() }()
	out := []T{}
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			v.fail(fmt.Errorf("scan %q: %w", query, err))
			return nil
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		v.fail(fmt.Errorf("iterate %q: %w", query, err))
		return nil
	}
	return out
}

func queryOne[T any](v *view, scan func(rowScanner) (T, error), query string, args ...any) (T, bool) {
	items := queryAll(v, scan, query, args...)
	if len(items) == 0 {
		var zero T
		return zero, false
	}
	return items[0], true
}

func (v *view) count(query string, args ...any) int {
	if v.err != nil {
		return 0
	}
	var n int
	if err := v.q.QueryRowContext(v.ctx, v.dialect.Rebind(query), args...).Scan(&n); err != nil {
		v.fail(fmt.Errorf("count %q: %w", query, err))
		return 0
	}
	return n
}

func scanDoctor(r rowScanner) (domain.Doctor, error) {
	var d domain.Doctor
	err := r.Scan(&d.NationalID, &d.Name, &d.Specialty, &d.YearsOfExperience)
	return d, err
}

func scanPatient(r rowScanner) (domain.Patient, error) {
	var p domain.Patient
	err := r.Scan(&p.NationalID, &p.Name, &p.Address, &p.Age, &p.DoctorID)
	return p, err
}

func scanManufacturer(r rowScanner) (domain.Manufacturer, error) {
	var m domain.Manufacturer
	err := r.Scan(&m.Name, &m.Phone)
	return m, err
}

func scanPharmacy(r rowScanner) (domain.Pharmacy, error) {
	var p domain.Pharmacy
	err := r.Scan(&p.ID, &p.Name, &p.Address, &p.Phone)
	return p, err
}

func scanDrug(r rowScanner) (domain.Drug, error) {
	var d domain.Drug
	err := r.Scan(&d.ID, &d.TradeName, &d.Formula, &d.Manufacturer)
	return d, err
}

func scanContract(r rowScanner) (domain.Contract, error) {
	var (
		c          domain.Contract
		start, end string
	)
	if err := r.Scan(&c.ID, &c.PharmacyID, &c.Manufacturer, &start, &end, &c.Content, &c.Supervisor); err != nil {
		return domain.Contract{}, err
	}
	var err error
	if c.StartDate, err = domain.ParseDate(start); err != nil {
		return domain.Contract{}, err
	}
	if c.EndDate, err = domain.ParseDate(end); err != nil {
		return domain.Contract{}, err
	}
	return c, nil
}

func scanInventory(r rowScanner) (domain.InventoryItem, error) {
	var i domain.InventoryItem
	err := r.Scan(&i.PharmacyID, &i.DrugID, &i.Price, &i.Stock)
	return i, err
}

func scanPrescription(r rowScanner) (domain.Prescription, error) {
	var (
		p    domain.Prescription
		date string
	)
	if err := r.Scan(&p.ID, &p.PatientID, &p.DoctorID, &date); err != nil {
		return domain.Prescription{}, err
	}
	parsed, err := domain.ParseDate(date)
	if err != nil {
		return domain.Prescription{}, err
	}
	p.Date = parsed
	return p, nil
}

func scanLine(r rowScanner) (domain.PrescriptionLine, error) {
	var l domain.PrescriptionLine
	err := r.Scan(&l.PrescriptionID, &l.DrugID, &l.Quantity)
	return l, err
}

func (v *view) FindDoctor(id string) (domain.Doctor, bool) {
	return queryOne(v, scanDoctor, "SELECT "+doctorColumns+" FROM doctors WHERE national_id = ?", id)
}

func (v *view) FindPatient(id string) (domain.Patient, bool) {
	return queryOne(v, scanPatient, "SELECT "+patientColumns+" FROM patients WHERE national_id = ?", id)
}

func (v *view) FindManufacturer(name string) (domain.Manufacturer, bool) {
	return queryOne(v, scanManufacturer, "SELECT "+manufacturerColumns+" FROM manufacturers WHERE name = ?", name)
}

func (v *view) FindPharmacy(id int64) (domain.Pharmacy, bool) {
	return queryOne(v, scanPharmacy, "SELECT "+pharmacyColumns+" FROM pharmacies WHERE id = ?", id)
}

func (v *view) FindDrug(id int64) (domain.Drug, bool) {
	return queryOne(v, scanDrug, "SELECT "+drugColumns+" FROM drugs WHERE id = ?", id)
}

func (v *view) FindDrugByTradeName(tradeName, manufacturer string) (domain.Drug, bool) {
	return queryOne(v, scanDrug, "SELECT "+drugColumns+" FROM drugs WHERE trade_name = ? AND manufacturer = ?", tradeName, manufacturer)
}

func (v *view) FindContract(id int64) (domain.Contract, bool) {
	return queryOne(v, scanContract, "SELECT "+contractColumns+" FROM contracts WHERE id = ?", id)
}

func (v *view) FindInventory(pharmacyID, drugID int64) (domain.InventoryItem, bool) {
	return queryOne(v, scanInventory, "SELECT "+inventoryColumns+" FROM inventory WHERE pharmacy_id = ? AND drug_id = ?", pharmacyID, drugID)
}

func (v *view) FindPrescription(id int64) (domain.Prescription, bool) {
	return queryOne(v, scanPrescription, "SELECT "+prescriptionColumns+" FROM prescriptions WHERE id = ?", id)
}

func (v *view) FindPrescriptionByKey(patientID, doctorID string, date time.Time) (domain.Prescription, bool) {
	return queryOne(v, scanPrescription,
		"SELECT "+prescriptionColumns+" FROM prescriptions WHERE patient_id = ? AND doctor_id = ? AND issued_on = ?",
		patientID, doctorID, domain.FormatDate(date))
}

func (v *view) FindPrescriptionLine(prescriptionID, drugID int64) (domain.PrescriptionLine, bool) {
	return queryOne(v, scanLine, "SELECT "+lineColumns+" FROM prescription_lines WHERE prescription_id = ? AND drug_id = ?", prescriptionID, drugID)
}

func (v *view) ListDoctors() []domain.Doctor {
	return queryAll(v, scanDoctor, "SELECT "+doctorColumns+" FROM doctors"+doctorOrder)
}

func (v *view) ListPatients() []domain.Patient {
	return queryAll(v, scanPatient, "SELECT "+patientColumns+" FROM patients"+patientOrder)
}

func (v *view) ListManufacturers() []domain.Manufacturer {
	return queryAll(v, scanManufacturer, "SELECT "+manufacturerColumns+" FROM manufacturers ORDER BY name")
}

func (v *view) ListPharmacies() []domain.Pharmacy {
	return queryAll(v, scanPharmacy, "SELECT "+pharmacyColumns+" FROM pharmacies ORDER BY name, id")
}

func (v *view) ListDrugs() []domain.Drug {
	return queryAll(v, scanDrug, "SELECT "+drugColumns+" FROM drugs"+drugOrder)
}

func (v *view) ListContracts() []domain.Contract {
	return queryAll(v, scanContract, "SELECT "+contractColumns+" FROM contracts"+contractOrder)
}

func (v *view) ListInventory() []domain.InventoryItem {
	return queryAll(v, scanInventory, "SELECT "+inventoryColumns+" FROM inventory"+inventoryOrder)
}

func (v *view) ListPrescriptions() []domain.Prescription {
	return queryAll(v, scanPrescription, "SELECT "+prescriptionColumns+" FROM prescriptions"+prescriptionOrder)
}

func (v *view) ListPrescriptionLines() []domain.PrescriptionLine {
	return queryAll(v, scanLine, "SELECT "+lineColumns+" FROM prescription_lines"+lineOrder)
}

func (v *view) ListPatientsOfDoctor(doctorID string) []domain.Patient {
	return queryAll(v, scanPatient, "SELECT "+patientColumns+" FROM patients WHERE doctor_id = ?"+patientOrder, doctorID)
}

func (v *view) ListDrugsOfManufacturer(name string) []domain.Drug {
	return queryAll(v, scanDrug, "SELECT "+drugColumns+" FROM drugs WHERE manufacturer = ?"+drugOrder, name)
}

func (v *view) ListContractsOfManufacturer(name string) []domain.Contract {
	return queryAll(v, scanContract, "SELECT "+contractColumns+" FROM contracts WHERE manufacturer = ?"+contractOrder, name)
}

func (v *view) ListContractsOfPharmacy(pharmacyID int64) []domain.Contract {
	return queryAll(v, scanContract, "SELECT "+contractColumns+" FROM contracts WHERE pharmacy_id = ?"+contractOrder, pharmacyID)
}

func (v *view) ListInventoryOfPharmacy(pharmacyID int64) []domain.InventoryItem {
	return queryAll(v, scanInventory, "SELECT "+inventoryColumns+" FROM inventory WHERE pharmacy_id = ?"+inventoryOrder, pharmacyID)
}

func (v *view) ListInventoryOfDrug(drugID int64) []domain.InventoryItem {
	return queryAll(v, scanInventory, "SELECT "+inventoryColumns+" FROM inventory WHERE drug_id = ?"+inventoryOrder, drugID)
}

func (v *view) ListPrescriptionsOfPair(patientID, doctorID string) []domain.Prescription {
	return queryAll(v, scanPrescription,
		"SELECT "+prescriptionColumns+" FROM prescriptions WHERE patient_id = ? AND doctor_id = ?"+prescriptionOrder,
		patientID, doctorID)
}

func (v *view) ListPrescriptionsOfPatient(patientID string) []domain.Prescription {
	return queryAll(v, scanPrescription, "SELECT "+prescriptionColumns+" FROM prescriptions WHERE patient_id = ?"+prescriptionOrder, patientID)
}

func (v *view) ListLinesOfPrescription(prescriptionID int64) []domain.PrescriptionLine {
	return queryAll(v, scanLine, "SELECT "+lineColumns+" FROM prescription_lines WHERE prescription_id = ?"+lineOrder, prescriptionID)
}

func (v *view) CountPatientsOfDoctor(doctorID, excludePatientID string) int {
	return v.count("SELECT COUNT(*) FROM patients WHERE doctor_id = ? AND national_id <> ?", doctorID, excludePatientID)
}

func (v *view) CountPrescriptionsOfPatient(patientID string) int {
	return v.count("SELECT COUNT(*) FROM prescriptions WHERE patient_id = ?", patientID)
}

func (v *view) CountPrescriptionsOfDoctor(doctorID string) int {
	return v.count("SELECT COUNT(*) FROM prescriptions WHERE doctor_id = ?", doctorID)
}

func (v *view) CountLinesOfDrug(drugID int64) int {
	return v.count("SELECT COUNT(*) FROM prescription_lines WHERE drug_id = ?", drugID)
}

func (v *view) CountLinesOfPrescription(prescriptionID int64) int {
	return v.count("SELECT COUNT(*) FROM prescription_lines WHERE prescription_id = ?", prescriptionID)
}
