package sqlstore

import (
	"database/sql"
	"fmt"

	"pharmacore/internal/infra/persistence/constraints"
	"pharmacore/pkg/domain"
)

// transaction issues row statements on the open sql.Tx. Keys are checked
// through the shared constraint predicates first; the table constraints stay
// in place and are translated if a write still trips them.
type transaction struct {
	view    *view
	changes []domain.Change
}

func (tx *transaction) recordChange(change domain.Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns the transactional view; reads observe earlier writes.
func (tx *transaction) Snapshot() domain.TransactionView {
	return tx.view
}

func (tx *transaction) exec(entity domain.EntityType, key string, action domain.Action, query string, args ...any) (sql.Result, error) {
	if err := tx.view.Err(); err != nil {
		return nil, err
	}
	res, err := tx.view.q.ExecContext(tx.view.ctx, tx.view.dialect.Rebind(query), args...)
	if err != nil {
		return nil, tx.translate(err, entity, key, action)
	}
	return res, nil
}

func (tx *transaction) insertReturningID(entity domain.EntityType, key string, query string, args ...any) (int64, error) {
	if err := tx.view.Err(); err != nil {
		return 0, err
	}
	var id int64
	row := tx.view.q.QueryRowContext(tx.view.ctx, tx.view.dialect.Rebind(query+" RETURNING id"), args...)
	if err := row.Scan(&id); err != nil {
		return 0, tx.translate(err, entity, key, domain.ActionCreate)
	}
	return id, nil
}

func (tx *transaction) translate(err error, entity domain.EntityType, key string, action domain.Action) error {
	switch tx.view.dialect.classify(err) {
	case ConstraintUnique:
		return domain.DuplicateKey(entity, key)
	case ConstraintForeignKey:
		if action == domain.ActionDelete {
			return domain.DependencyExists(entity, key, "")
		}
		return domain.IntegrityViolation(entity, key, "foreign key constraint failed")
	default:
		return fmt.Errorf("%s %s %q: %w", action, entity, key, err)
	}
}

// InsertDoctor stores a new doctor.
func (tx *transaction) InsertDoctor(d domain.Doctor) (domain.Doctor, error) {
	if _, exists := tx.view.FindDoctor(d.NationalID); exists {
		return domain.Doctor{}, domain.DuplicateKey(domain.EntityDoctor, d.NationalID)
	}
	if _, err := tx.exec(domain.EntityDoctor, d.NationalID, domain.ActionCreate,
		"INSERT INTO doctors ("+doctorColumns+") VALUES (?, ?, ?, ?)",
		d.NationalID, d.Name, d.Specialty, d.YearsOfExperience); err != nil {
		return domain.Doctor{}, err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityDoctor, Action: domain.ActionCreate, After: d})
	return d, nil
}

// UpdateDoctor mutates an existing doctor; the national ID is immutable.
func (tx *transaction) UpdateDoctor(id string, mutator func(*domain.Doctor) error) (domain.Doctor, error) {
	current, ok := tx.view.FindDoctor(id)
	if !ok {
		return domain.Doctor{}, domain.NotFound(domain.EntityDoctor, id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.Doctor{}, err
	}
	current.NationalID = id
	if _, err := tx.exec(domain.EntityDoctor, id, domain.ActionUpdate,
		"UPDATE doctors SET name = ?, specialty = ?, years_of_experience = ? WHERE national_id = ?",
		current.Name, current.Specialty, current.YearsOfExperience, id); err != nil {
		return domain.Doctor{}, err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityDoctor, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteDoctor removes a doctor that no patient or prescription references.
func (tx *transaction) DeleteDoctor(id string) error {
	current, ok := tx.view.FindDoctor(id)
	if !ok {
		return domain.NotFound(domain.EntityDoctor, id)
	}
	if err := constraints.DeleteDoctor(tx.view, id); err != nil {
		return err
	}
	if _, err := tx.exec(domain.EntityDoctor, id, domain.ActionDelete, "DELETE FROM doctors WHERE national_id = ?", id); err != nil {
		return err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityDoctor, Action: domain.ActionDelete, Before: current})
	return nil
}

// InsertPatient stores a new patient under an existing doctor.
func (tx *transaction) InsertPatient(p domain.Patient) (domain.Patient, error) {
	if _, exists := tx.view.FindPatient(p.NationalID); exists {
		return domain.Patient{}, domain.DuplicateKey(domain.EntityPatient, p.NationalID)
	}
	if err := constraints.Patient(tx.view, p); err != nil {
		return domain.Patient{}, err
	}
	if _, err := tx.exec(domain.EntityPatient, p.NationalID, domain.ActionCreate,
		"INSERT INTO patients ("+patientColumns+") VALUES (?, ?, ?, ?, ?)",
		p.NationalID, p.Name, p.Address, p.Age, p.DoctorID); err != nil {
		return domain.Patient{}, err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityPatient, Action: domain.ActionCreate, After: p})
	return p, nil
}

// UpdatePatient mutates an existing patient; the national ID is immutable.
func (tx *transaction) UpdatePatient(id string, mutator func(*domain.Patient) error) (domain.Patient, error) {
	current, ok := tx.view.FindPatient(id)
	if !ok {
		return domain.Patient{}, domain.NotFound(domain.EntityPatient, id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.Patient{}, err
	}
	current.NationalID = id
	if err := constraints.Patient(tx.view, current); err != nil {
		return domain.Patient{}, err
	}
	if _, err := tx.exec(domain.EntityPatient, id, domain.ActionUpdate,
		"UPDATE patients SET name = ?, address = ?, age = ?, doctor_id = ? WHERE national_id = ?",
		current.Name, current.Address, current.Age, current.DoctorID, id); err != nil {
		return domain.Patient{}, err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityPatient, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeletePatient removes a patient without prescriptions.
func (tx *transaction) DeletePatient(id string) error {
	current, ok := tx.view.FindPatient(id)
	if !ok {
		return domain.NotFound(domain.EntityPatient, id)
	}
	if err := constraints.DeletePatient(tx.view, id); err != nil {
		return err
	}
	if _, err := tx.exec(domain.EntityPatient, id, domain.ActionDelete, "DELETE FROM patients WHERE national_id = ?", id); err != nil {
		return err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityPatient, Action: domain.ActionDelete, Before: current})
	return nil
}

// InsertManufacturer stores a new manufacturer.
func (tx *transaction) InsertManufacturer(m domain.Manufacturer) (domain.Manufacturer, error) {
	if _, exists := tx.view.FindManufacturer(m.Name); exists {
		return domain.Manufacturer{}, domain.DuplicateKey(domain.EntityManufacturer, m.Name)
	}
	if _, err := tx.exec(domain.EntityManufacturer, m.Name, domain.ActionCreate,
		"INSERT INTO manufacturers ("+manufacturerColumns+") VALUES (?, ?)", m.Name, m.Phone); err != nil {
		return domain.Manufacturer{}, err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityManufacturer, Action: domain.ActionCreate, After: m})
	return m, nil
}

// UpdateManufacturer mutates non-key attributes of a manufacturer.
func (tx *transaction) UpdateManufacturer(name string, mutator func(*domain.Manufacturer) error) (domain.Manufacturer, error) {
	current, ok := tx.view.FindManufacturer(name)
	if !ok {
		return domain.Manufacturer{}, domain.NotFound(domain.EntityManufacturer, name)
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.Manufacturer{}, err
	}
	current.Name = name
	if _, err := tx.exec(domain.EntityManufacturer, name, domain.ActionUpdate,
		"UPDATE manufacturers SET phone = ? WHERE name = ?", current.Phone, name); err != nil {
		return domain.Manufacturer{}, err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityManufacturer, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteManufacturer removes a manufacturer; the schema cascades to its drugs
// and their inventory rows. Cascaded rows are recorded as changes for rules.
func (tx *transaction) DeleteManufacturer(name string) error {
	current, ok := tx.view.FindManufacturer(name)
	if !ok {
		return domain.NotFound(domain.EntityManufacturer, name)
	}
	if err := constraints.DeleteManufacturer(tx.view, name); err != nil {
		return err
	}
	var cascaded []domain.Change
	for _, d := range tx.view.ListDrugsOfManufacturer(name) {
		cascaded = append(cascaded, tx.drugCascade(d)...)
	}
	if _, err := tx.exec(domain.EntityManufacturer, name, domain.ActionDelete, "DELETE FROM manufacturers WHERE name = ?", name); err != nil {
		return err
	}
	for _, change := range cascaded {
		tx.recordChange(change)
	}
	tx.recordChange(domain.Change{Entity: domain.EntityManufacturer, Action: domain.ActionDelete, Before: current})
	return nil
}

func (tx *transaction) drugCascade(d domain.Drug) []domain.Change {
	var out []domain.Change
	for _, item := range tx.view.ListInventoryOfDrug(d.ID) {
		out = append(out, domain.Change{Entity: domain.EntityInventory, Action: domain.ActionDelete, Before: item})
	}
	return append(out, domain.Change{Entity: domain.EntityDrug, Action: domain.ActionDelete, Before: d})
}

// InsertPharmacy stores a new pharmacy under a database-generated identifier.
func (tx *transaction) InsertPharmacy(p domain.Pharmacy) (domain.Pharmacy, error) {
	id, err := tx.insertReturningID(domain.EntityPharmacy, p.Name,
		"INSERT INTO pharmacies (name, address, phone) VALUES (?, ?, ?)", p.Name, p.Address, p.Phone)
	if err != nil {
		return domain.Pharmacy{}, err
	}
	p.ID = id
	tx.recordChange(domain.Change{Entity: domain.EntityPharmacy, Action: domain.ActionCreate, After: p})
	return p, nil
}

// UpdatePharmacy mutates an existing pharmacy.
func (tx *transaction) UpdatePharmacy(id int64, mutator func(*domain.Pharmacy) error) (domain.Pharmacy, error) {
	current, ok := tx.view.FindPharmacy(id)
	if !ok {
		return domain.Pharmacy{}, domain.NotFound(domain.EntityPharmacy, domain.IDKey(id))
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.Pharmacy{}, err
	}
	current.ID = id
	if _, err := tx.exec(domain.EntityPharmacy, domain.IDKey(id), domain.ActionUpdate,
		"UPDATE pharmacies SET name = ?, address = ?, phone = ? WHERE id = ?",
		current.Name, current.Address, current.Phone, id); err != nil {
		return domain.Pharmacy{}, err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityPharmacy, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeletePharmacy removes a pharmacy without inventory rows or contracts.
func (tx *transaction) DeletePharmacy(id int64) error {
	current, ok := tx.view.FindPharmacy(id)
	if !ok {
		return domain.NotFound(domain.EntityPharmacy, domain.IDKey(id))
	}
	if err := constraints.DeletePharmacy(tx.view, id); err != nil {
		return err
	}
	if _, err := tx.exec(domain.EntityPharmacy, domain.IDKey(id), domain.ActionDelete, "DELETE FROM pharmacies WHERE id = ?", id); err != nil {
		return err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityPharmacy, Action: domain.ActionDelete, Before: current})
	return nil
}

// InsertDrug stores a new drug under a database-generated identifier.
func (tx *transaction) InsertDrug(d domain.Drug) (domain.Drug, error) {
	d.ID = 0
	if err := constraints.Drug(tx.view, d); err != nil {
		return domain.Drug{}, err
	}
	id, err := tx.insertReturningID(domain.EntityDrug, domain.DrugNaturalKey(d.TradeName, d.Manufacturer),
		"INSERT INTO drugs (trade_name, formula, manufacturer) VALUES (?, ?, ?)", d.TradeName, d.Formula, d.Manufacturer)
	if err != nil {
		return domain.Drug{}, err
	}
	d.ID = id
	tx.recordChange(domain.Change{Entity: domain.EntityDrug, Action: domain.ActionCreate, After: d})
	return d, nil
}

// UpdateDrug mutates an existing drug.
func (tx *transaction) UpdateDrug(id int64, mutator func(*domain.Drug) error) (domain.Drug, error) {
	current, ok := tx.view.FindDrug(id)
	if !ok {
		return domain.Drug{}, domain.NotFound(domain.EntityDrug, domain.IDKey(id))
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.Drug{}, err
	}
	current.ID = id
	if err := constraints.Drug(tx.view, current); err != nil {
		return domain.Drug{}, err
	}
	if _, err := tx.exec(domain.EntityDrug, domain.DrugNaturalKey(current.TradeName, current.Manufacturer), domain.ActionUpdate,
		"UPDATE drugs SET trade_name = ?, formula = ?, manufacturer = ? WHERE id = ?",
		current.TradeName, current.Formula, current.Manufacturer, id); err != nil {
		return domain.Drug{}, err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityDrug, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteDrug removes an unprescribed drug; the schema cascades to its inventory rows.
func (tx *transaction) DeleteDrug(id int64) error {
	current, ok := tx.view.FindDrug(id)
	if !ok {
		return domain.NotFound(domain.EntityDrug, domain.IDKey(id))
	}
	if err := constraints.DeleteDrug(tx.view, id); err != nil {
		return err
	}
	cascaded := tx.drugCascade(current)
	if _, err := tx.exec(domain.EntityDrug, domain.IDKey(id), domain.ActionDelete, "DELETE FROM drugs WHERE id = ?", id); err != nil {
		return err
	}
	for _, change := range cascaded {
		tx.recordChange(change)
	}
	return nil
}

// InsertContract stores a new contract under a database-generated identifier.
func (tx *transaction) InsertContract(c domain.Contract) (domain.Contract, error) {
	if err := constraints.Contract(tx.view, c); err != nil {
		return domain.Contract{}, err
	}
	c.StartDate = domain.CalendarDate(c.StartDate)
	c.EndDate = domain.CalendarDate(c.EndDate)
	id, err := tx.insertReturningID(domain.EntityContract, c.Manufacturer,
		"INSERT INTO contracts (pharmacy_id, manufacturer, start_date, end_date, content, supervisor) VALUES (?, ?, ?, ?, ?, ?)",
		c.PharmacyID, c.Manufacturer, domain.FormatDate(c.StartDate), domain.FormatDate(c.EndDate), c.Content, c.Supervisor)
	if err != nil {
		return domain.Contract{}, err
	}
	c.ID = id
	tx.recordChange(domain.Change{Entity: domain.EntityContract, Action: domain.ActionCreate, After: c})
	return c, nil
}

// UpdateContract mutates an existing contract.
func (tx *transaction) UpdateContract(id int64, mutator func(*domain.Contract) error) (domain.Contract, error) {
	current, ok := tx.view.FindContract(id)
	if !ok {
		return domain.Contract{}, domain.NotFound(domain.EntityContract, domain.IDKey(id))
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.Contract{}, err
	}
	current.ID = id
	current.StartDate = domain.CalendarDate(current.StartDate)
	current.EndDate = domain.CalendarDate(current.EndDate)
	if err := constraints.Contract(tx.view, current); err != nil {
		return domain.Contract{}, err
	}
	if _, err := tx.exec(domain.EntityContract, domain.IDKey(id), domain.ActionUpdate,
		"UPDATE contracts SET pharmacy_id = ?, manufacturer = ?, start_date = ?, end_date = ?, content = ?, supervisor = ? WHERE id = ?",
		current.PharmacyID, current.Manufacturer, domain.FormatDate(current.StartDate), domain.FormatDate(current.EndDate),
		current.Content, current.Supervisor, id); err != nil {
		return domain.Contract{}, err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityContract, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteContract removes a contract.
func (tx *transaction) DeleteContract(id int64) error {
	current, ok := tx.view.FindContract(id)
	if !ok {
		return domain.NotFound(domain.EntityContract, domain.IDKey(id))
	}
	if _, err := tx.exec(domain.EntityContract, domain.IDKey(id), domain.ActionDelete, "DELETE FROM contracts WHERE id = ?", id); err != nil {
		return err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityContract, Action: domain.ActionDelete, Before: current})
	return nil
}

// UpsertInventory inserts or overwrites the (pharmacy, drug) row.
func (tx *transaction) UpsertInventory(item domain.InventoryItem) (domain.InventoryItem, bool, error) {
	if err := constraints.Inventory(tx.view, item); err != nil {
		return domain.InventoryItem{}, false, err
	}
	before, exists := tx.view.FindInventory(item.PharmacyID, item.DrugID)
	if _, err := tx.exec(domain.EntityInventory, item.Key().String(), domain.ActionUpdate,
		"INSERT INTO inventory ("+inventoryColumns+") VALUES (?, ?, ?, ?) "+
			"ON CONFLICT (pharmacy_id, drug_id) DO UPDATE SET price = excluded.price, stock = excluded.stock",
		item.PharmacyID, item.DrugID, item.Price, item.Stock); err != nil {
		return domain.InventoryItem{}, false, err
	}
	if exists {
		tx.recordChange(domain.Change{Entity: domain.EntityInventory, Action: domain.ActionUpdate, Before: before, After: item})
	} else {
		tx.recordChange(domain.Change{Entity: domain.EntityInventory, Action: domain.ActionCreate, After: item})
	}
	return item, !exists, nil
}

// DeleteInventory removes the (pharmacy, drug) row.
func (tx *transaction) DeleteInventory(pharmacyID, drugID int64) error {
	key := domain.InventoryKey{PharmacyID: pharmacyID, DrugID: drugID}
	current, ok := tx.view.FindInventory(pharmacyID, drugID)
	if !ok {
		return domain.NotFound(domain.EntityInventory, key.String())
	}
	if _, err := tx.exec(domain.EntityInventory, key.String(), domain.ActionDelete,
		"DELETE FROM inventory WHERE pharmacy_id = ? AND drug_id = ?", pharmacyID, drugID); err != nil {
		return err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityInventory, Action: domain.ActionDelete, Before: current})
	return nil
}

// InsertPrescription stores a new prescription under a database-generated identifier.
func (tx *transaction) InsertPrescription(p domain.Prescription) (domain.Prescription, error) {
	p.ID = 0
	p.Date = domain.CalendarDate(p.Date)
	if err := constraints.Prescription(tx.view, p); err != nil {
		return domain.Prescription{}, err
	}
	id, err := tx.insertReturningID(domain.EntityPrescription, domain.PrescriptionNaturalKey(p.PatientID, p.DoctorID, p.Date),
		"INSERT INTO prescriptions (patient_id, doctor_id, issued_on) VALUES (?, ?, ?)",
		p.PatientID, p.DoctorID, domain.FormatDate(p.Date))
	if err != nil {
		return domain.Prescription{}, err
	}
	p.ID = id
	tx.recordChange(domain.Change{Entity: domain.EntityPrescription, Action: domain.ActionCreate, After: p})
	return p, nil
}

// UpdatePrescription mutates an existing prescription.
func (tx *transaction) UpdatePrescription(id int64, mutator func(*domain.Prescription) error) (domain.Prescription, error) {
	current, ok := tx.view.FindPrescription(id)
	if !ok {
		return domain.Prescription{}, domain.NotFound(domain.EntityPrescription, domain.IDKey(id))
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.Prescription{}, err
	}
	current.ID = id
	current.Date = domain.CalendarDate(current.Date)
	if err := constraints.Prescription(tx.view, current); err != nil {
		return domain.Prescription{}, err
	}
	if _, err := tx.exec(domain.EntityPrescription, domain.PrescriptionNaturalKey(current.PatientID, current.DoctorID, current.Date), domain.ActionUpdate,
		"UPDATE prescriptions SET patient_id = ?, doctor_id = ?, issued_on = ? WHERE id = ?",
		current.PatientID, current.DoctorID, domain.FormatDate(current.Date), id); err != nil {
		return domain.Prescription{}, err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityPrescription, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeletePrescription removes a prescription without lines.
func (tx *transaction) DeletePrescription(id int64) error {
	current, ok := tx.view.FindPrescription(id)
	if !ok {
		return domain.NotFound(domain.EntityPrescription, domain.IDKey(id))
	}
	if err := constraints.DeletePrescription(tx.view, id); err != nil {
		return err
	}
	if _, err := tx.exec(domain.EntityPrescription, domain.IDKey(id), domain.ActionDelete, "DELETE FROM prescriptions WHERE id = ?", id); err != nil {
		return err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityPrescription, Action: domain.ActionDelete, Before: current})
	return nil
}

// UpsertPrescriptionLine inserts or overwrites the (prescription, drug) row.
func (tx *transaction) UpsertPrescriptionLine(line domain.PrescriptionLine) (domain.PrescriptionLine, bool, error) {
	if err := constraints.PrescriptionLine(tx.view, line); err != nil {
		return domain.PrescriptionLine{}, false, err
	}
	before, exists := tx.view.FindPrescriptionLine(line.PrescriptionID, line.DrugID)
	if _, err := tx.exec(domain.EntityPrescriptionLine, line.Key().String(), domain.ActionUpdate,
		"INSERT INTO prescription_lines ("+lineColumns+") VALUES (?, ?, ?) "+
			"ON CONFLICT (prescription_id, drug_id) DO UPDATE SET quantity = excluded.quantity",
		line.PrescriptionID, line.DrugID, line.Quantity); err != nil {
		return domain.PrescriptionLine{}, false, err
	}
	if exists {
		tx.recordChange(domain.Change{Entity: domain.EntityPrescriptionLine, Action: domain.ActionUpdate, Before: before, After: line})
	} else {
		tx.recordChange(domain.Change{Entity: domain.EntityPrescriptionLine, Action: domain.ActionCreate, After: line})
	}
	return line, !exists, nil
}

// DeletePrescriptionLine removes the (prescription, drug) row.
func (tx *transaction) DeletePrescriptionLine(prescriptionID, drugID int64) error {
	key := domain.LineKey{PrescriptionID: prescriptionID, DrugID: drugID}
	current, ok := tx.view.FindPrescriptionLine(prescriptionID, drugID)
	if !ok {
		return domain.NotFound(domain.EntityPrescriptionLine, key.String())
	}
	if _, err := tx.exec(domain.EntityPrescriptionLine, key.String(), domain.ActionDelete,
		"DELETE FROM prescription_lines WHERE prescription_id = ? AND drug_id = ?", prescriptionID, drugID); err != nil {
		return err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityPrescriptionLine, Action: domain.ActionDelete, Before: current})
	return nil
}
