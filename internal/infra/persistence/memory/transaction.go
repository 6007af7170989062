package memory

import (
	"pharmacore/internal/infra/persistence/constraints"
	"pharmacore/pkg/domain"
)

// transaction represents a mutation set applied to a private copy of the
// store state. Keys are enforced the way a relational store would: duplicates
// and dangling references fail, Manufacturer->Drug and Drug->Inventory
// cascade, every other reference restricts.
type transaction struct {
	state   memoryState
	changes []Change
}

// helper to record and append change entries.
func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state, including
// writes made so far.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// InsertDoctor stores a new doctor.
func (tx *transaction) InsertDoctor(d domain.Doctor) (domain.Doctor, error) {
	if _, exists := tx.state.doctors[d.NationalID]; exists {
		return domain.Doctor{}, domain.DuplicateKey(domain.EntityDoctor, d.NationalID)
	}
	tx.state.doctors[d.NationalID] = d
	tx.recordChange(Change{Entity: domain.EntityDoctor, Action: domain.ActionCreate, After: d})
	return d, nil
}

// UpdateDoctor mutates an existing doctor; the national ID is immutable.
func (tx *transaction) UpdateDoctor(id string, mutator func(*domain.Doctor) error) (domain.Doctor, error) {
	current, ok := tx.state.doctors[id]
	if !ok {
		return domain.Doctor{}, domain.NotFound(domain.EntityDoctor, id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.Doctor{}, err
	}
	current.NationalID = id
	tx.state.doctors[id] = current
	tx.recordChange(Change{Entity: domain.EntityDoctor, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteDoctor removes a doctor that no patient or prescription references.
func (tx *transaction) DeleteDoctor(id string) error {
	current, ok := tx.state.doctors[id]
	if !ok {
		return domain.NotFound(domain.EntityDoctor, id)
	}
	if err := constraints.DeleteDoctor(tx.Snapshot(), id); err != nil {
		return err
	}
	delete(tx.state.doctors, id)
	tx.recordChange(Change{Entity: domain.EntityDoctor, Action: domain.ActionDelete, Before: current})
	return nil
}

// InsertPatient stores a new patient under an existing doctor.
func (tx *transaction) InsertPatient(p domain.Patient) (domain.Patient, error) {
	if _, exists := tx.state.patients[p.NationalID]; exists {
		return domain.Patient{}, domain.DuplicateKey(domain.EntityPatient, p.NationalID)
	}
	if err := constraints.Patient(tx.Snapshot(), p); err != nil {
		return domain.Patient{}, err
	}
	tx.state.patients[p.NationalID] = p
	tx.recordChange(Change{Entity: domain.EntityPatient, Action: domain.ActionCreate, After: p})
	return p, nil
}

// UpdatePatient mutates an existing patient; the national ID is immutable.
func (tx *transaction) UpdatePatient(id string, mutator func(*domain.Patient) error) (domain.Patient, error) {
	current, ok := tx.state.patients[id]
	if !ok {
		return domain.Patient{}, domain.NotFound(domain.EntityPatient, id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.Patient{}, err
	}
	current.NationalID = id
	if err := constraints.Patient(tx.Snapshot(), current); err != nil {
		return domain.Patient{}, err
	}
	tx.state.patients[id] = current
	tx.recordChange(Change{Entity: domain.EntityPatient, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeletePatient removes a patient without prescriptions.
func (tx *transaction) DeletePatient(id string) error {
	current, ok := tx.state.patients[id]
	if !ok {
		return domain.NotFound(domain.EntityPatient, id)
	}
	if err := constraints.DeletePatient(tx.Snapshot(), id); err != nil {
		return err
	}
	delete(tx.state.patients, id)
	tx.recordChange(Change{Entity: domain.EntityPatient, Action: domain.ActionDelete, Before: current})
	return nil
}

// InsertManufacturer stores a new manufacturer.
func (tx *transaction) InsertManufacturer(m domain.Manufacturer) (domain.Manufacturer, error) {
	if _, exists := tx.state.manufacturers[m.Name]; exists {
		return domain.Manufacturer{}, domain.DuplicateKey(domain.EntityManufacturer, m.Name)
	}
	tx.state.manufacturers[m.Name] = m
	tx.recordChange(Change{Entity: domain.EntityManufacturer, Action: domain.ActionCreate, After: m})
	return m, nil
}

// UpdateManufacturer mutates non-key attributes of a manufacturer.
func (tx *transaction) UpdateManufacturer(name string, mutator func(*domain.Manufacturer) error) (domain.Manufacturer, error) {
	current, ok := tx.state.manufacturers[name]
	if !ok {
		return domain.Manufacturer{}, domain.NotFound(domain.EntityManufacturer, name)
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.Manufacturer{}, err
	}
	current.Name = name
	tx.state.manufacturers[name] = current
	tx.recordChange(Change{Entity: domain.EntityManufacturer, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteManufacturer removes a manufacturer and cascades to its drugs and
// their inventory rows.
func (tx *transaction) DeleteManufacturer(name string) error {
	current, ok := tx.state.manufacturers[name]
	if !ok {
		return domain.NotFound(domain.EntityManufacturer, name)
	}
	view := tx.Snapshot()
	if err := constraints.DeleteManufacturer(view, name); err != nil {
		return err
	}
	for _, d := range view.ListDrugsOfManufacturer(name) {
		tx.cascadeDrug(d)
	}
	delete(tx.state.manufacturers, name)
	tx.recordChange(Change{Entity: domain.EntityManufacturer, Action: domain.ActionDelete, Before: current})
	return nil
}

func (tx *transaction) cascadeDrug(d domain.Drug) {
	for _, item := range tx.Snapshot().ListInventoryOfDrug(d.ID) {
		delete(tx.state.inventory, item.Key())
		tx.recordChange(Change{Entity: domain.EntityInventory, Action: domain.ActionDelete, Before: item})
	}
	delete(tx.state.drugs, d.ID)
	tx.recordChange(Change{Entity: domain.EntityDrug, Action: domain.ActionDelete, Before: d})
}

// InsertPharmacy stores a new pharmacy under a freshly generated identifier.
func (tx *transaction) InsertPharmacy(p domain.Pharmacy) (domain.Pharmacy, error) {
	tx.state.seq.pharmacy++
	p.ID = tx.state.seq.pharmacy
	tx.state.pharmacies[p.ID] = p
	tx.recordChange(Change{Entity: domain.EntityPharmacy, Action: domain.ActionCreate, After: p})
	return p, nil
}

// UpdatePharmacy mutates an existing pharmacy.
func (tx *transaction) UpdatePharmacy(id int64, mutator func(*domain.Pharmacy) error) (domain.Pharmacy, error) {
	current, ok := tx.state.pharmacies[id]
	if !ok {
		return domain.Pharmacy{}, domain.NotFound(domain.EntityPharmacy, domain.IDKey(id))
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.Pharmacy{}, err
	}
	current.ID = id
	tx.state.pharmacies[id] = current
	tx.recordChange(Change{Entity: domain.EntityPharmacy, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeletePharmacy removes a pharmacy without inventory rows or contracts.
func (tx *transaction) DeletePharmacy(id int64) error {
	current, ok := tx.state.pharmacies[id]
	if !ok {
		return domain.NotFound(domain.EntityPharmacy, domain.IDKey(id))
	}
	if err := constraints.DeletePharmacy(tx.Snapshot(), id); err != nil {
		return err
	}
	delete(tx.state.pharmacies, id)
	tx.recordChange(Change{Entity: domain.EntityPharmacy, Action: domain.ActionDelete, Before: current})
	return nil
}

// InsertDrug stores a new drug under a freshly generated identifier.
func (tx *transaction) InsertDrug(d domain.Drug) (domain.Drug, error) {
	d.ID = 0
	if err := constraints.Drug(tx.Snapshot(), d); err != nil {
		return domain.Drug{}, err
	}
	tx.state.seq.drug++
	d.ID = tx.state.seq.drug
	tx.state.drugs[d.ID] = d
	tx.recordChange(Change{Entity: domain.EntityDrug, Action: domain.ActionCreate, After: d})
	return d, nil
}

// UpdateDrug mutates an existing drug.
func (tx *transaction) UpdateDrug(id int64, mutator func(*domain.Drug) error) (domain.Drug, error) {
	current, ok := tx.state.drugs[id]
	if !ok {
		return domain.Drug{}, domain.NotFound(domain.EntityDrug, domain.IDKey(id))
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.Drug{}, err
	}
	current.ID = id
	if err := constraints.Drug(tx.Snapshot(), current); err != nil {
		return domain.Drug{}, err
	}
	tx.state.drugs[id] = current
	tx.recordChange(Change{Entity: domain.EntityDrug, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteDrug removes an unprescribed drug and cascades to its inventory rows.
func (tx *transaction) DeleteDrug(id int64) error {
	current, ok := tx.state.drugs[id]
	if !ok {
		return domain.NotFound(domain.EntityDrug, domain.IDKey(id))
	}
	if err := constraints.DeleteDrug(tx.Snapshot(), id); err != nil {
		return err
	}
	tx.cascadeDrug(current)
	return nil
}

// InsertContract stores a new contract under a freshly generated identifier.
func (tx *transaction) InsertContract(c domain.Contract) (domain.Contract, error) {
	if err := constraints.Contract(tx.Snapshot(), c); err != nil {
		return domain.Contract{}, err
	}
	c.StartDate = domain.CalendarDate(c.StartDate)
	c.EndDate = domain.CalendarDate(c.EndDate)
	tx.state.seq.contract++
	c.ID = tx.state.seq.contract
	tx.state.contracts[c.ID] = c
	tx.recordChange(Change{Entity: domain.EntityContract, Action: domain.ActionCreate, After: c})
	return c, nil
}

// UpdateContract mutates an existing contract.
func (tx *transaction) UpdateContract(id int64, mutator func(*domain.Contract) error) (domain.Contract, error) {
	current, ok := tx.state.contracts[id]
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
	if err := constraints.Contract(tx.Snapshot(), current); err != nil {
		return domain.Contract{}, err
	}
	tx.state.contracts[id] = current
	tx.recordChange(Change{Entity: domain.EntityContract, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteContract removes a contract.
func (tx *transaction) DeleteContract(id int64) error {
	current, ok := tx.state.contracts[id]
	if !ok {
		return domain.NotFound(domain.EntityContract, domain.IDKey(id))
	}
	delete(tx.state.contracts, id)
	tx.recordChange(Change{Entity: domain.EntityContract, Action: domain.ActionDelete, Before: current})
	return nil
}

// UpsertInventory inserts or overwrites the (pharmacy, drug) row.
func (tx *transaction) UpsertInventory(item domain.InventoryItem) (domain.InventoryItem, bool, error) {
	if err := constraints.Inventory(tx.Snapshot(), item); err != nil {
		return domain.InventoryItem{}, false, err
	}
	before, exists := tx.state.inventory[item.Key()]
	tx.state.inventory[item.Key()] = item
	if exists {
		tx.recordChange(Change{Entity: domain.EntityInventory, Action: domain.ActionUpdate, Before: before, After: item})
	} else {
		tx.recordChange(Change{Entity: domain.EntityInventory, Action: domain.ActionCreate, After: item})
	}
	return item, !exists, nil
}

// DeleteInventory removes the (pharmacy, drug) row.
func (tx *transaction) DeleteInventory(pharmacyID, drugID int64) error {
	key := domain.InventoryKey{PharmacyID: pharmacyID, DrugID: drugID}
	current, ok := tx.state.inventory[key]
	if !ok {
		return domain.NotFound(domain.EntityInventory, key.String())
	}
	delete(tx.state.inventory, key)
	tx.recordChange(Change{Entity: domain.EntityInventory, Action: domain.ActionDelete, Before: current})
	return nil
}

// InsertPrescription stores a new prescription under a freshly generated identifier.
func (tx *transaction) InsertPrescription(p domain.Prescription) (domain.Prescription, error) {
	p.ID = 0
	p.Date = domain.CalendarDate(p.Date)
	if err := constraints.Prescription(tx.Snapshot(), p); err != nil {
		return domain.Prescription{}, err
	}
	tx.state.seq.prescription++
	p.ID = tx.state.seq.prescription
	tx.state.prescriptions[p.ID] = p
	tx.recordChange(Change{Entity: domain.EntityPrescription, Action: domain.ActionCreate, After: p})
	return p, nil
}

// UpdatePrescription mutates an existing prescription.
func (tx *transaction) UpdatePrescription(id int64, mutator func(*domain.Prescription) error) (domain.Prescription, error) {
	current, ok := tx.state.prescriptions[id]
	if !ok {
		return domain.Prescription{}, domain.NotFound(domain.EntityPrescription, domain.IDKey(id))
	}
	before := current
	if err := mutator(&current); err != nil {
		return domain.Prescription{}, err
	}
	current.ID = id
	current.Date = domain.CalendarDate(current.Date)
	if err := constraints.Prescription(tx.Snapshot(), current); err != nil {
		return domain.Prescription{}, err
	}
	tx.state.prescriptions[id] = current
	tx.recordChange(Change{Entity: domain.EntityPrescription, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeletePrescription removes a prescription without lines.
func (tx *transaction) DeletePrescription(id int64) error {
	current, ok := tx.state.prescriptions[id]
	if !ok {
		return domain.NotFound(domain.EntityPrescription, domain.IDKey(id))
	}
	if err := constraints.DeletePrescription(tx.Snapshot(), id); err != nil {
		return err
	}
	delete(tx.state.prescriptions, id)
	tx.recordChange(Change{Entity: domain.EntityPrescription, Action: domain.ActionDelete, Before: current})
	return nil
}

// UpsertPrescriptionLine inserts or overwrites the (prescription, drug) row.
func (tx *transaction) UpsertPrescriptionLine(line domain.PrescriptionLine) (domain.PrescriptionLine, bool, error) {
	if err := constraints.PrescriptionLine(tx.Snapshot(), line); err != nil {
		return domain.PrescriptionLine{}, false, err
	}
	before, exists := tx.state.lines[line.Key()]
	tx.state.lines[line.Key()] = line
	if exists {
		tx.recordChange(Change{Entity: domain.EntityPrescriptionLine, Action: domain.ActionUpdate, Before: before, After: line})
	} else {
		tx.recordChange(Change{Entity: domain.EntityPrescriptionLine, Action: domain.ActionCreate, After: line})
	}
	return line, !exists, nil
}

// DeletePrescriptionLine removes the (prescription, drug) row.
func (tx *transaction) DeletePrescriptionLine(prescriptionID, drugID int64) error {
	key := domain.LineKey{PrescriptionID: prescriptionID, DrugID: drugID}
	current, ok := tx.state.lines[key]
	if !ok {
		return domain.NotFound(domain.EntityPrescriptionLine, key.String())
	}
	delete(tx.state.lines, key)
	tx.recordChange(Change{Entity: domain.EntityPrescriptionLine, Action: domain.ActionDelete, Before: current})
	return nil
}
