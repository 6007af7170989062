package core

import (
	"context"
	"time"

	"pharmacore/pkg/domain"
)

// PatientPrescription is one row of a patient's prescription history.
type PatientPrescription struct {
	PrescriptionID int64     `json:"prescription_id"`
	Date           time.Time `json:"date"`
	DoctorID       string    `json:"doctor_id"`
	DoctorName     string    `json:"doctor_name"`
	LineCount      int       `json:"line_count"`
}

// PrescriptionDetail is a prescription with its dispensed drugs.
type PrescriptionDetail struct {
	PrescriptionID int64                    `json:"prescription_id"`
	Date           time.Time                `json:"date"`
	PatientID      string                   `json:"patient_id"`
	DoctorID       string                   `json:"doctor_id"`
	DoctorName     string                   `json:"doctor_name"`
	Lines          []PrescriptionDetailLine `json:"lines"`
}

// PrescriptionDetailLine is one drug on a prescription.
type PrescriptionDetailLine struct {
	DrugID       int64  `json:"drug_id"`
	TradeName    string `json:"trade_name"`
	Manufacturer string `json:"manufacturer"`
	Quantity     int    `json:"quantity"`
}

// CatalogEntry is a manufacturer's drug with the number of pharmacies that
// currently stock it.
type CatalogEntry struct {
	DrugID        int64  `json:"drug_id"`
	TradeName     string `json:"trade_name"`
	Formula       string `json:"formula"`
	PharmacyCount int    `json:"pharmacy_count"`
}

// StockPosition is one inventory row of a pharmacy.
type StockPosition struct {
	DrugID       int64   `json:"drug_id"`
	TradeName    string  `json:"trade_name"`
	Manufacturer string  `json:"manufacturer"`
	Price        float64 `json:"price"`
	Stock        int     `json:"stock"`
	Value        float64 `json:"value"`
}

// DoctorPatient is a patient of a doctor with their prescription count.
type DoctorPatient struct {
	NationalID        string `json:"national_id"`
	Name              string `json:"name"`
	Age               int    `json:"age"`
	PrescriptionCount int    `json:"prescription_count"`
}

// ListDoctors returns doctors ordered by name.
func (s *Service) ListDoctors(ctx context.Context) ([]domain.Doctor, error) {
	return listAll(ctx, s, "list_doctors", TransactionView.ListDoctors)
}

// ListPatients returns patients ordered by name.
func (s *Service) ListPatients(ctx context.Context) ([]domain.Patient, error) {
	return listAll(ctx, s, "list_patients", TransactionView.ListPatients)
}

// ListManufacturers returns manufacturers ordered by name.
func (s *Service) ListManufacturers(ctx context.Context) ([]domain.Manufacturer, error) {
	return listAll(ctx, s, "list_manufacturers", TransactionView.ListManufacturers)
}

// ListPharmacies returns pharmacies ordered by name.
func (s *Service) ListPharmacies(ctx context.Context) ([]domain.Pharmacy, error) {
	return listAll(ctx, s, "list_pharmacies", TransactionView.ListPharmacies)
}

// ListDrugs returns drugs ordered by trade name.
func (s *Service) ListDrugs(ctx context.Context) ([]domain.Drug, error) {
	return listAll(ctx, s, "list_drugs", TransactionView.ListDrugs)
}

// ListContracts returns contracts ordered by id.
func (s *Service) ListContracts(ctx context.Context) ([]domain.Contract, error) {
	return listAll(ctx, s, "list_contracts", TransactionView.ListContracts)
}

// ListInventory returns inventory rows ordered by pharmacy, then drug.
func (s *Service) ListInventory(ctx context.Context) ([]domain.InventoryItem, error) {
	return listAll(ctx, s, "list_inventory", TransactionView.ListInventory)
}

// ListPrescriptions returns prescriptions ordered by date.
func (s *Service) ListPrescriptions(ctx context.Context) ([]domain.Prescription, error) {
	return listAll(ctx, s, "list_prescriptions", TransactionView.ListPrescriptions)
}

func listAll[T any](ctx context.Context, s *Service, op string, list func(TransactionView) []T) ([]T, error) {
	var out []T
	err := s.view(ctx, op, func(view TransactionView) error {
		out = list(view)
		return nil
	})
	return out, err
}

// PatientPrescriptionsInPeriod lists a patient's prescriptions dated within
// [from, to], both ends inclusive.
func (s *Service) PatientPrescriptionsInPeriod(ctx context.Context, patientID string, from, to time.Time) ([]PatientPrescription, error) {
	from, to = domain.CalendarDate(from), domain.CalendarDate(to)
	if to.Before(from) {
		return nil, domain.InvalidArgument(domain.EntityPrescription, patientID, "period ends %s before it starts %s",
			domain.FormatDate(to), domain.FormatDate(from))
	}
	var out []PatientPrescription
	err := s.view(ctx, "patient_prescriptions_in_period", func(view TransactionView) error {
		if _, ok := view.FindPatient(patientID); !ok {
			return domain.NotFound(domain.EntityPatient, patientID)
		}
		for _, p := range view.ListPrescriptionsOfPatient(patientID) {
			if p.Date.Before(from) || p.Date.After(to) {
				continue
			}
			doctor, _ := view.FindDoctor(p.DoctorID)
			out = append(out, PatientPrescription{
				PrescriptionID: p.ID,
				Date:           p.Date,
				DoctorID:       p.DoctorID,
				DoctorName:     doctor.Name,
				LineCount:      view.CountLinesOfPrescription(p.ID),
			})
		}
		return nil
	})
	return out, err
}

// PrescriptionDetailForDate returns the patient's prescriptions issued on date
// with their lines.
func (s *Service) PrescriptionDetailForDate(ctx context.Context, patientID string, date time.Time) ([]PrescriptionDetail, error) {
	date = domain.CalendarDate(date)
	var out []PrescriptionDetail
	err := s.view(ctx, "prescription_detail_for_date", func(view TransactionView) error {
		if _, ok := view.FindPatient(patientID); !ok {
			return domain.NotFound(domain.EntityPatient, patientID)
		}
		for _, p := range view.ListPrescriptionsOfPatient(patientID) {
			if !p.Date.Equal(date) {
				continue
			}
			doctor, _ := view.FindDoctor(p.DoctorID)
			detail := PrescriptionDetail{
				PrescriptionID: p.ID,
				Date:           p.Date,
				PatientID:      p.PatientID,
				DoctorID:       p.DoctorID,
				DoctorName:     doctor.Name,
			}
			for _, line := range view.ListLinesOfPrescription(p.ID) {
				drug, _ := view.FindDrug(line.DrugID)
				detail.Lines = append(detail.Lines, PrescriptionDetailLine{
					DrugID:       line.DrugID,
					TradeName:    drug.TradeName,
					Manufacturer: drug.Manufacturer,
					Quantity:     line.Quantity,
				})
			}
			out = append(out, detail)
		}
		return nil
	})
	return out, err
}

// CompanyDrugCatalog lists a manufacturer's drugs with the number of
// pharmacies holding stock of each.
func (s *Service) CompanyDrugCatalog(ctx context.Context, manufacturer string) ([]CatalogEntry, error) {
	var out []CatalogEntry
	err := s.view(ctx, "company_drug_catalog", func(view TransactionView) error {
		if _, ok := view.FindManufacturer(manufacturer); !ok {
			return domain.NotFound(domain.EntityManufacturer, manufacturer)
		}
		for _, drug := range view.ListDrugsOfManufacturer(manufacturer) {
			entry := CatalogEntry{DrugID: drug.ID, TradeName: drug.TradeName, Formula: drug.Formula}
			for _, item := range view.ListInventoryOfDrug(drug.ID) {
				if item.Stock > 0 {
					entry.PharmacyCount++
				}
			}
			out = append(out, entry)
		}
		return nil
	})
	return out, err
}

// PharmacyStockPosition lists a pharmacy's inventory valued at price × stock.
func (s *Service) PharmacyStockPosition(ctx context.Context, pharmacyID int64) ([]StockPosition, error) {
	var out []StockPosition
	err := s.view(ctx, "pharmacy_stock_position", func(view TransactionView) error {
		if _, ok := view.FindPharmacy(pharmacyID); !ok {
			return domain.NotFound(domain.EntityPharmacy, domain.IDKey(pharmacyID))
		}
		for _, item := range view.ListInventoryOfPharmacy(pharmacyID) {
			drug, _ := view.FindDrug(item.DrugID)
			out = append(out, StockPosition{
				DrugID:       item.DrugID,
				TradeName:    drug.TradeName,
				Manufacturer: drug.Manufacturer,
				Price:        item.Price,
				Stock:        item.Stock,
				Value:        item.Price * float64(item.Stock),
			})
		}
		return nil
	})
	return out, err
}

// ContractsFor returns the contracts between a pharmacy and a manufacturer.
func (s *Service) ContractsFor(ctx context.Context, pharmacyID int64, manufacturer string) ([]domain.Contract, error) {
	var out []domain.Contract
	err := s.view(ctx, "contracts_for", func(view TransactionView) error {
		if _, ok := view.FindPharmacy(pharmacyID); !ok {
			return domain.NotFound(domain.EntityPharmacy, domain.IDKey(pharmacyID))
		}
		if _, ok := view.FindManufacturer(manufacturer); !ok {
			return domain.NotFound(domain.EntityManufacturer, manufacturer)
		}
		for _, c := range view.ListContractsOfPharmacy(pharmacyID) {
			if c.Manufacturer == manufacturer {
				out = append(out, c)
			}
		}
		return nil
	})
	return out, err
}

// DoctorPatients lists a doctor's patients with their prescription counts.
func (s *Service) DoctorPatients(ctx context.Context, doctorID string) ([]DoctorPatient, error) {
	var out []DoctorPatient
	err := s.view(ctx, "doctor_patients", func(view TransactionView) error {
		if _, ok := view.FindDoctor(doctorID); !ok {
			return domain.NotFound(domain.EntityDoctor, doctorID)
		}
		for _, p := range view.ListPatientsOfDoctor(doctorID) {
			out = append(out, DoctorPatient{
				NationalID:        p.NationalID,
				Name:              p.Name,
				Age:               p.Age,
				PrescriptionCount: view.CountPrescriptionsOfPatient(p.NationalID),
			})
		}
		return nil
	})
	return out, err
}
