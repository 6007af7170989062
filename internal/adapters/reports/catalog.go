package reports

import (
	"context"
	"strconv"
	"time"

	"pharmacore/internal/core"
	"pharmacore/pkg/domain"
)

type definition struct {
	arity int
	usage string
	run   func(ctx context.Context, src Source, args []string) (table, error)
}

var catalog = map[string]definition{
	"patient-history": {
		arity: 3,
		usage: "<patient-id> <from YYYY-MM-DD> <to YYYY-MM-DD>",
		run:   patientHistory,
	},
	"prescription-detail": {
		arity: 2,
		usage: "<patient-id> <date YYYY-MM-DD>",
		run:   prescriptionDetail,
	},
	"catalog": {
		arity: 1,
		usage: "<manufacturer>",
		run:   drugCatalog,
	},
	"stock": {
		arity: 1,
		usage: "<pharmacy-id>",
		run:   stockPosition,
	},
	"contracts": {
		arity: 2,
		usage: "<pharmacy-id> <manufacturer>",
		run:   contracts,
	},
	"doctor-patients": {
		arity: 1,
		usage: "<doctor-id>",
		run:   doctorPatients,
	},
	"violations": {
		arity: 0,
		usage: "(no arguments)",
		run:   violations,
	},
}

func patientHistory(ctx context.Context, src Source, args []string) (table, error) {
	from, err := parseDate("from", args[1])
	if err != nil {
		return table{}, err
	}
	to, err := parseDate("to", args[2])
	if err != nil {
		return table{}, err
	}
	rows, err := src.PatientPrescriptionsInPeriod(ctx, args[0], from, to)
	if err != nil {
		return table{}, err
	}
	tbl := table{columns: []string{"prescription_id", "date", "doctor_id", "doctor_name", "line_count"}, data: rows}
	for _, r := range rows {
		tbl.rows = append(tbl.rows, []string{id(r.PrescriptionID), domain.FormatDate(r.Date), r.DoctorID, r.DoctorName, strconv.Itoa(r.LineCount)})
	}
	return tbl, nil
}

// prescriptionDetail flattens to one CSV row per line.
func prescriptionDetail(ctx context.Context, src Source, args []string) (table, error) {
	date, err := parseDate("date", args[1])
	if err != nil {
		return table{}, err
	}
	details, err := src.PrescriptionDetailForDate(ctx, args[0], date)
	if err != nil {
		return table{}, err
	}
	tbl := table{columns: []string{"prescription_id", "date", "doctor_name", "drug_id", "trade_name", "manufacturer", "quantity"}, data: details}
	for _, d := range details {
		for _, l := range d.Lines {
			tbl.rows = append(tbl.rows, []string{
				id(d.PrescriptionID), domain.FormatDate(d.Date), d.DoctorName,
				id(l.DrugID), l.TradeName, l.Manufacturer, strconv.Itoa(l.Quantity),
			})
		}
	}
	return tbl, nil
}

func drugCatalog(ctx context.Context, src Source, args []string) (table, error) {
	entries, err := src.CompanyDrugCatalog(ctx, args[0])
	if err != nil {
		return table{}, err
	}
	tbl := table{columns: []string{"drug_id", "trade_name", "formula", "pharmacy_count"}, data: entries}
	for _, e := range entries {
		tbl.rows = append(tbl.rows, []string{id(e.DrugID), e.TradeName, e.Formula, strconv.Itoa(e.PharmacyCount)})
	}
	return tbl, nil
}

func stockPosition(ctx context.Context, src Source, args []string) (table, error) {
	pharmacyID, err := parseID("pharmacy-id", args[0])
	if err != nil {
		return table{}, err
	}
	positions, err := src.PharmacyStockPosition(ctx, pharmacyID)
	if err != nil {
		return table{}, err
	}
	tbl := table{columns: []string{"drug_id", "trade_name", "manufacturer", "price", "stock", "value"}, data: positions}
	for _, p := range positions {
		tbl.rows = append(tbl.rows, []string{id(p.DrugID), p.TradeName, p.Manufacturer, money(p.Price), strconv.Itoa(p.Stock), money(p.Value)})
	}
	return tbl, nil
}

func contracts(ctx context.Context, src Source, args []string) (table, error) {
	pharmacyID, err := parseID("pharmacy-id", args[0])
	if err != nil {
		return table{}, err
	}
	list, err := src.ContractsFor(ctx, pharmacyID, args[1])
	if err != nil {
		return table{}, err
	}
	tbl := table{columns: []string{"contract_id", "start_date", "end_date", "supervisor", "content"}, data: list}
	for _, c := range list {
		tbl.rows = append(tbl.rows, []string{id(c.ID), domain.FormatDate(c.StartDate), domain.FormatDate(c.EndDate), c.Supervisor, c.Content})
	}
	return tbl, nil
}

func doctorPatients(ctx context.Context, src Source, args []string) (table, error) {
	patients, err := src.DoctorPatients(ctx, args[0])
	if err != nil {
		return table{}, err
	}
	tbl := table{columns: []string{"national_id", "name", "age", "prescription_count"}, data: patients}
	for _, p := range patients {
		tbl.rows = append(tbl.rows, []string{p.NationalID, p.Name, strconv.Itoa(p.Age), strconv.Itoa(p.PrescriptionCount)})
	}
	return tbl, nil
}

type violationRow struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Entity   string `json:"entity"`
	EntityID string `json:"entity_id"`
	Message  string `json:"message"`
}

func violations(ctx context.Context, src Source, _ []string) (table, error) {
	found, err := src.Verify(ctx, core.NewDefaultRulesEngine())
	if err != nil {
		return table{}, err
	}
	data := make([]violationRow, 0, len(found))
	tbl := table{columns: []string{"rule", "severity", "entity", "entity_id", "message"}}
	for _, v := range found {
		row := violationRow{Rule: v.Rule, Severity: string(v.Severity), Entity: string(v.Entity), EntityID: v.EntityID, Message: v.Message}
		data = append(data, row)
		tbl.rows = append(tbl.rows, []string{row.Rule, row.Severity, row.Entity, row.EntityID, row.Message})
	}
	tbl.data = data
	return tbl, nil
}

func parseDate(name, value string) (time.Time, error) {
	date, err := domain.ParseDate(value)
	if err != nil {
		return time.Time{}, domain.InvalidArgument(domain.EntityPrescription, value, "%s must be YYYY-MM-DD", name)
	}
	return date, nil
}

func parseID(name, value string) (int64, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, domain.InvalidArgument(domain.EntityPharmacy, value, "%s must be an integer", name)
	}
	return n, nil
}

func id(v int64) string { return strconv.FormatInt(v, 10) }

func money(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
