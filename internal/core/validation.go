package core

import (
	"math"
	"strings"
	"time"

	"pharmacore/pkg/domain"
)

// storableDate reports whether t fits the four-digit YYYY-MM-DD column format.
func storableDate(t time.Time) bool {
	year := t.Year()
	return year >= 1 && year <= 9999
}

func validNationalID(id string) bool {
	if len(id) != domain.NationalIDLength {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

func validateDoctor(d domain.Doctor) error {
	switch {
	case !validNationalID(d.NationalID):
		return domain.InvalidArgument(domain.EntityDoctor, d.NationalID, "national id must be %d digits", domain.NationalIDLength)
	case blank(d.Name):
		return domain.InvalidArgument(domain.EntityDoctor, d.NationalID, "name is required")
	case d.YearsOfExperience < 0:
		return domain.InvalidArgument(domain.EntityDoctor, d.NationalID, "years of experience must not be negative")
	}
	return nil
}

func validatePatient(p domain.Patient) error {
	switch {
	case !validNationalID(p.NationalID):
		return domain.InvalidArgument(domain.EntityPatient, p.NationalID, "national id must be %d digits", domain.NationalIDLength)
	case blank(p.Name):
		return domain.InvalidArgument(domain.EntityPatient, p.NationalID, "name is required")
	case p.Age <= 0:
		return domain.InvalidArgument(domain.EntityPatient, p.NationalID, "age must be positive")
	case blank(p.DoctorID):
		return domain.InvalidArgument(domain.EntityPatient, p.NationalID, "primary physician is required")
	}
	return nil
}

func validateManufacturer(m domain.Manufacturer) error {
	if blank(m.Name) {
		return domain.InvalidArgument(domain.EntityManufacturer, m.Name, "name is required")
	}
	return nil
}

func validatePharmacy(p domain.Pharmacy) error {
	if blank(p.Name) {
		return domain.InvalidArgument(domain.EntityPharmacy, domain.IDKey(p.ID), "name is required")
	}
	return nil
}

func validateDrug(d domain.Drug) error {
	key := domain.DrugNaturalKey(d.TradeName, d.Manufacturer)
	switch {
	case blank(d.TradeName):
		return domain.InvalidArgument(domain.EntityDrug, key, "trade name is required")
	case blank(d.Manufacturer):
		return domain.InvalidArgument(domain.EntityDrug, key, "manufacturer is required")
	}
	return nil
}

func validateContract(c domain.Contract) error {
	key := domain.IDKey(c.ID)
	switch {
	case blank(c.Manufacturer):
		return domain.InvalidArgument(domain.EntityContract, key, "manufacturer is required")
	case c.StartDate.IsZero() || c.EndDate.IsZero():
		return domain.InvalidArgument(domain.EntityContract, key, "start and end dates are required")
	case !storableDate(c.StartDate) || !storableDate(c.EndDate):
		return domain.InvalidArgument(domain.EntityContract, key, "dates must fall in years 1 to 9999")
	case !domain.CalendarDate(c.EndDate).After(domain.CalendarDate(c.StartDate)):
		return domain.InvalidArgument(domain.EntityContract, key, "end date %s must be after start date %s",
			domain.FormatDate(c.EndDate), domain.FormatDate(c.StartDate))
	}
	return nil
}

func validateInventory(item domain.InventoryItem) error {
	key := item.Key().String()
	switch {
	case math.IsNaN(item.Price) || math.IsInf(item.Price, 0) || item.Price <= 0:
		return domain.InvalidArgument(domain.EntityInventory, key, "price must be positive")
	case item.Stock < 0:
		return domain.InvalidArgument(domain.EntityInventory, key, "stock must not be negative")
	}
	return nil
}

func validatePrescription(p domain.Prescription) error {
	key := domain.PrescriptionNaturalKey(p.PatientID, p.DoctorID, p.Date)
	switch {
	case blank(p.PatientID):
		return domain.InvalidArgument(domain.EntityPrescription, key, "patient is required")
	case blank(p.DoctorID):
		return domain.InvalidArgument(domain.EntityPrescription, key, "doctor is required")
	case p.Date.IsZero():
		return domain.InvalidArgument(domain.EntityPrescription, key, "date is required")
	case !storableDate(p.Date):
		return domain.InvalidArgument(domain.EntityPrescription, key, "date must fall in years 1 to 9999")
	}
	return nil
}

func validateLine(l domain.PrescriptionLine) error {
	if l.Quantity <= 0 {
		return domain.InvalidArgument(domain.EntityPrescriptionLine, l.Key().String(), "quantity must be positive")
	}
	return nil
}
