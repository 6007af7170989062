package memory

import (
	"sort"
	"time"

	"pharmacore/pkg/domain"
)

// transactionView exposes a read-only snapshot of the transactional state to
// the service, rules, and reports.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func (v transactionView) FindDoctor(id string) (domain.Doctor, bool) {
	d, ok := v.state.doctors[id]
	return d, ok
}

func (v transactionView) FindPatient(id string) (domain.Patient, bool) {
	p, ok := v.state.patients[id]
	return p, ok
}

func (v transactionView) FindManufacturer(name string) (domain.Manufacturer, bool) {
	m, ok := v.state.manufacturers[name]
	return m, ok
}

func (v transactionView) FindPharmacy(id int64) (domain.Pharmacy, bool) {
	p, ok := v.state.pharmacies[id]
	return p, ok
}

func (v transactionView) FindDrug(id int64) (domain.Drug, bool) {
	d, ok := v.state.drugs[id]
	return d, ok
}

func (v transactionView) FindDrugByTradeName(tradeName, manufacturer string) (domain.Drug, bool) {
	for _, d := range v.state.drugs {
		if d.TradeName == tradeName && d.Manufacturer == manufacturer {
			return d, true
		}
	}
	return domain.Drug{}, false
}

func (v transactionView) FindContract(id int64) (domain.Contract, bool) {
	c, ok := v.state.contracts[id]
	return c, ok
}

func (v transactionView) FindInventory(pharmacyID, drugID int64) (domain.InventoryItem, bool) {
	item, ok := v.state.inventory[domain.InventoryKey{PharmacyID: pharmacyID, DrugID: drugID}]
	return item, ok
}

func (v transactionView) FindPrescription(id int64) (domain.Prescription, bool) {
	p, ok := v.state.prescriptions[id]
	return p, ok
}

func (v transactionView) FindPrescriptionByKey(patientID, doctorID string, date time.Time) (domain.Prescription, bool) {
	date = domain.CalendarDate(date)
	for _, p := range v.state.prescriptions {
		if p.PatientID == patientID && p.DoctorID == doctorID && p.Date.Equal(date) {
			return p, true
		}
	}
	return domain.Prescription{}, false
}

func (v transactionView) FindPrescriptionLine(prescriptionID, drugID int64) (domain.PrescriptionLine, bool) {
	l, ok := v.state.lines[domain.LineKey{PrescriptionID: prescriptionID, DrugID: drugID}]
	return l, ok
}

func (v transactionView) ListDoctors() []domain.Doctor {
	return sortedDoctors(collect(v.state.doctors, func(domain.Doctor) bool { return true }))
}

func (v transactionView) ListPatients() []domain.Patient {
	return sortedPatients(collect(v.state.patients, func(domain.Patient) bool { return true }))
}

func (v transactionView) ListManufacturers() []domain.Manufacturer {
	out := collect(v.state.manufacturers, func(domain.Manufacturer) bool { return true })
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (v transactionView) ListPharmacies() []domain.Pharmacy {
	out := collect(v.state.pharmacies, func(domain.Pharmacy) bool { return true })
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (v transactionView) ListDrugs() []domain.Drug {
	return sortedDrugs(collect(v.state.drugs, func(domain.Drug) bool { return true }))
}

func (v transactionView) ListContracts() []domain.Contract {
	return sortedContracts(collect(v.state.contracts, func(domain.Contract) bool { return true }))
}

func (v transactionView) ListInventory() []domain.InventoryItem {
	return sortedInventory(collect(v.state.inventory, func(domain.InventoryItem) bool { return true }))
}

func (v transactionView) ListPrescriptions() []domain.Prescription {
	return sortedPrescriptions(collect(v.state.prescriptions, func(domain.Prescription) bool { return true }))
}

func (v transactionView) ListPrescriptionLines() []domain.PrescriptionLine {
	return sortedLines(collect(v.state.lines, func(domain.PrescriptionLine) bool { return true }))
}

func (v transactionView) ListPatientsOfDoctor(doctorID string) []domain.Patient {
	return sortedPatients(collect(v.state.patients, func(p domain.Patient) bool { return p.DoctorID == doctorID }))
}

func (v transactionView) ListDrugsOfManufacturer(name string) []domain.Drug {
	return sortedDrugs(collect(v.state.drugs, func(d domain.Drug) bool { return d.Manufacturer == name }))
}

func (v transactionView) ListContractsOfManufacturer(name string) []domain.Contract {
	return sortedContracts(collect(v.state.contracts, func(c domain.Contract) bool { return c.Manufacturer == name }))
}

func (v transactionView) ListContractsOfPharmacy(pharmacyID int64) []domain.Contract {
	return sortedContracts(collect(v.state.contracts, func(c domain.Contract) bool { return c.PharmacyID == pharmacyID }))
}

func (v transactionView) ListInventoryOfPharmacy(pharmacyID int64) []domain.InventoryItem {
	return sortedInventory(collect(v.state.inventory, func(i domain.InventoryItem) bool { return i.PharmacyID == pharmacyID }))
}

func (v transactionView) ListInventoryOfDrug(drugID int64) []domain.InventoryItem {
	return sortedInventory(collect(v.state.inventory, func(i domain.InventoryItem) bool { return i.DrugID == drugID }))
}

func (v transactionView) ListPrescriptionsOfPair(patientID, doctorID string) []domain.Prescription {
	return sortedPrescriptions(collect(v.state.prescriptions, func(p domain.Prescription) bool {
		return p.PatientID == patientID && p.DoctorID == doctorID
	}))
}

func (v transactionView) ListPrescriptionsOfPatient(patientID string) []domain.Prescription {
	return sortedPrescriptions(collect(v.state.prescriptions, func(p domain.Prescription) bool { return p.PatientID == patientID }))
}

func (v transactionView) ListLinesOfPrescription(prescriptionID int64) []domain.PrescriptionLine {
	return sortedLines(collect(v.state.lines, func(l domain.PrescriptionLine) bool { return l.PrescriptionID == prescriptionID }))
}

func (v transactionView) CountPatientsOfDoctor(doctorID, excludePatientID string) int {
	return count(v.state.patients, func(p domain.Patient) bool {
		return p.DoctorID == doctorID && p.NationalID != excludePatientID
	})
}

func (v transactionView) CountPrescriptionsOfPatient(patientID string) int {
	return count(v.state.prescriptions, func(p domain.Prescription) bool { return p.PatientID == patientID })
}

func (v transactionView) CountPrescriptionsOfDoctor(doctorID string) int {
	return count(v.state.prescriptions, func(p domain.Prescription) bool { return p.DoctorID == doctorID })
}

func (v transactionView) CountLinesOfDrug(drugID int64) int {
	return count(v.state.lines, func(l domain.PrescriptionLine) bool { return l.DrugID == drugID })
}

func (v transactionView) CountLinesOfPrescription(prescriptionID int64) int {
	return count(v.state.lines, func(l domain.PrescriptionLine) bool { return l.PrescriptionID == prescriptionID })
}

func collect[K comparable, V any](m map[K]V, keep func(V) bool) []V {
	out := make([]V, 0, len(m))
	for _, v := range m {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func count[K comparable, V any](m map[K]V, match func(V) bool) int {
	n := 0
	for _, v := range m {
		if match(v) {
			n++
		}
	}
	return n
}

func sortedDoctors(out []domain.Doctor) []domain.Doctor {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].NationalID < out[j].NationalID
	})
	return out
}

func sortedPatients(out []domain.Patient) []domain.Patient {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].NationalID < out[j].NationalID
	})
	return out
}

func sortedDrugs(out []domain.Drug) []domain.Drug {
	sort.Slice(out, func(i, j int) bool {
		if out[i].TradeName != out[j].TradeName {
			return out[i].TradeName < out[j].TradeName
		}
		if out[i].Manufacturer != out[j].Manufacturer {
			return out[i].Manufacturer < out[j].Manufacturer
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func sortedContracts(out []domain.Contract) []domain.Contract {
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedInventory(out []domain.InventoryItem) []domain.InventoryItem {
	sort.Slice(out, func(i, j int) bool {
		if out[i].PharmacyID != out[j].PharmacyID {
			return out[i].PharmacyID < out[j].PharmacyID
		}
		return out[i].DrugID < out[j].DrugID
	})
	return out
}

func sortedPrescriptions(out []domain.Prescription) []domain.Prescription {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func sortedLines(out []domain.PrescriptionLine) []domain.PrescriptionLine {
	sort.Slice(out, func(i, j int) bool {
		if out[i].PrescriptionID != out[j].PrescriptionID {
			return out[i].PrescriptionID < out[j].PrescriptionID
		}
		return out[i].DrugID < out[j].DrugID
	})
	return out
}
