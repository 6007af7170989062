package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"pharmacore/pkg/domain"
)

const (
	doctorA  = "100000000001"
	doctorB  = "100000000002"
	patient1 = "200000000001"
	patient2 = "200000000002"
	patient3 = "200000000003"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestService(t *testing.T, opts ...ServiceOption) *Service {
	t.Helper()
	return NewInMemoryService(nil, opts...)
}

func expectKind(t *testing.T, err error, kind domain.ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := domain.KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %s (%v)", kind, got, err)
	}
}

func mustAddDoctor(t *testing.T, svc *Service, id, name string) domain.Doctor {
	t.Helper()
	d, _, err := svc.AddDoctor(context.Background(), domain.Doctor{NationalID: id, Name: name, Specialty: "general", YearsOfExperience: 5})
	if err != nil {
		t.Fatalf("add doctor %s: %v", id, err)
	}
	return d
}

func mustAddPatient(t *testing.T, svc *Service, id, name, doctorID string) domain.Patient {
	t.Helper()
	p, _, err := svc.AddPatient(context.Background(), domain.Patient{NationalID: id, Name: name, Address: "1 Main St", Age: 40, DoctorID: doctorID})
	if err != nil {
		t.Fatalf("add patient %s: %v", id, err)
	}
	return p
}

func mustAddManufacturer(t *testing.T, svc *Service, name string) domain.Manufacturer {
	t.Helper()
	m, _, err := svc.AddManufacturer(context.Background(), domain.Manufacturer{Name: name, Phone: "555-0100"})
	if err != nil {
		t.Fatalf("add manufacturer %s: %v", name, err)
	}
	return m
}

func mustAddDrug(t *testing.T, svc *Service, tradeName, manufacturer string) domain.Drug {
	t.Helper()
	d, _, err := svc.AddDrug(context.Background(), domain.Drug{TradeName: tradeName, Formula: "C9H8O4", Manufacturer: manufacturer})
	if err != nil {
		t.Fatalf("add drug %s: %v", tradeName, err)
	}
	return d
}

func mustAddPharmacy(t *testing.T, svc *Service, name string) domain.Pharmacy {
	t.Helper()
	p, _, err := svc.AddPharmacy(context.Background(), domain.Pharmacy{Name: name, Address: "Market Sq", Phone: "555-0200"})
	if err != nil {
		t.Fatalf("add pharmacy %s: %v", name, err)
	}
	return p
}

func mustAddContract(t *testing.T, svc *Service, pharmacyID int64, manufacturer string) domain.Contract {
	t.Helper()
	c, _, err := svc.AddContract(context.Background(), domain.Contract{
		PharmacyID:   pharmacyID,
		Manufacturer: manufacturer,
		StartDate:    day(2024, time.January, 1),
		EndDate:      day(2024, time.December, 31),
		Content:      "supply",
		Supervisor:   "Kim",
	})
	if err != nil {
		t.Fatalf("add contract: %v", err)
	}
	return c
}

func mustAddPrescription(t *testing.T, svc *Service, patientID, doctorID string, date time.Time) domain.Prescription {
	t.Helper()
	p, _, err := svc.AddPrescription(context.Background(), patientID, doctorID, date)
	if err != nil {
		t.Fatalf("add prescription: %v", err)
	}
	return p
}

func mustAddLine(t *testing.T, svc *Service, prescriptionID, drugID int64, quantity int) {
	t.Helper()
	if _, _, err := svc.AddPrescriptionLine(context.Background(), domain.PrescriptionLine{PrescriptionID: prescriptionID, DrugID: drugID, Quantity: quantity}); err != nil {
		t.Fatalf("add line %d/%d: %v", prescriptionID, drugID, err)
	}
}

// clinic seeds one doctor with two patients.
func clinic(t *testing.T, svc *Service) {
	t.Helper()
	mustAddDoctor(t, svc, doctorA, "Dr. Adams")
	mustAddPatient(t, svc, patient1, "Ann", doctorA)
	mustAddPatient(t, svc, patient2, "Bob", doctorA)
}

var errMutator = errors.New("mutator failed")
