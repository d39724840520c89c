// Package output provides utilities for formatting and displaying recommendations.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/iwvelando/npk-advisor/internal/advisor"
	"github.com/iwvelando/npk-advisor/internal/fields"
	"github.com/iwvelando/npk-advisor/pkg/constants"
	"github.com/iwvelando/npk-advisor/pkg/format"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Write renders recs in the named output format.
func Write(w io.Writer, outputFormat string, recs []advisor.Recommendation) error {
	switch outputFormat {
	case constants.OutputFormatPretty:
		return PrettyFormat(w, recs)
	case constants.OutputFormatCSV:
		return CsvFormat(w, recs)
	case constants.OutputFormatJSON:
		return JSONFormat(w, recs)
	default:
		return fmt.Errorf("unsupported output format %q", outputFormat)
	}
}

// PrettyFormat outputs a human-readable rather than machine-readable report.
func PrettyFormat(w io.Writer, recs []advisor.Recommendation) error {
	p := message.NewPrinter(language.English)
	for i, rec := range recs {
		title := rec.FieldID
		if title == "" {
			title = "custom features"
		}
		if rec.Crop != "" {
			title += " (" + rec.Crop + ")"
		}
		if _, err := fmt.Fprintf(w, "--- Recommendation for %s ---\n", title); err != nil {
			return err
		}

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		rows := [][2]string{
			{"Status", rec.Status},
			{"Message", rec.Message},
			{"Budget", format.Currency(rec.Budget)},
			{"Nitrogen (N)", format.Rate(rec.RecommendedN)},
			{"Phosphorus (P)", format.Rate(rec.RecommendedP)},
			{"Potassium (K)", format.Rate(rec.RecommendedK)},
			{"Cost", format.Currency(rec.Cost)},
			{"Expected yield", p.Sprintf("%.2f kg/ha (sd %.2f)", rec.YieldMean, rec.YieldStdDev)},
			{"95% interval", p.Sprintf("%.2f to %.2f kg/ha", rec.YieldCILow, rec.YieldCIHigh)},
			{"5th percentile yield", p.Sprintf("%.2f kg/ha", rec.Yield5th)},
			{"5th percentile profit", format.Currency(rec.Profit5th)},
		}
		if ws := rec.WeatherSummary; ws != nil {
			rows = append(rows,
				[2]string{"Season rainfall", p.Sprintf("%.1f mm", ws.TotalRainfallMM)},
				[2]string{"Growing degree days", p.Sprintf("%.1f", ws.GDD)},
				[2]string{"Mean temperature", p.Sprintf("%.1f °C", ws.MeanTemp)},
				[2]string{"Weather source", rec.WeatherOrigin},
			)
		}
		for _, row := range rows {
			if _, err := fmt.Fprintf(tw, "%s\t| %s\n", row[0], row[1]); err != nil {
				return err
			}
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if i < len(recs)-1 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
	}
	return nil
}

var csvHeader = []string{
	"field_id", "crop", "budget", "n", "p", "k", "cost",
	"yield_mean", "yield_std", "yield_p5", "ci_low", "ci_high", "profit_p5",
	"status", "message",
}

// CsvFormat outputs one row per recommendation in comma-separated value format.
func CsvFormat(w io.Writer, recs []advisor.Recommendation) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	num := func(v float64) string {
		return strconv.FormatFloat(v, 'f', 2, 64)
	}
	for _, rec := range recs {
		row := []string{
			rec.FieldID, rec.Crop, num(rec.Budget),
			num(rec.RecommendedN), num(rec.RecommendedP), num(rec.RecommendedK), num(rec.Cost),
			num(rec.YieldMean), num(rec.YieldStdDev), num(rec.Yield5th),
			num(rec.YieldCILow), num(rec.YieldCIHigh), num(rec.Profit5th),
			rec.Status, rec.Message,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// JSONFormat outputs a single recommendation as an object and several as an array.
func JSONFormat(w io.Writer, recs []advisor.Recommendation) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if len(recs) == 1 {
		return enc.Encode(recs[0])
	}
	if recs == nil {
		recs = []advisor.Recommendation{}
	}
	return enc.Encode(recs)
}

// FieldsTable lists catalog fields with their latest season.
func FieldsTable(w io.Writer, list []fields.Field) error {
	sorted := append([]fields.Field(nil), list...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "ID\tNAME\tLAT\tLON\tAREA (ha)\tLATEST SEASON"); err != nil {
		return err
	}
	for _, f := range sorted {
		season := "-"
		if s, ok := f.LatestSeason(""); ok {
			season = fmt.Sprintf("%d %s", s.Year, s.Crop)
		}
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%.4f\t%.4f\t%.2f\t%s\n", f.ID, f.Name, f.Lat, f.Lon, f.AreaHa, season); err != nil {
			return err
		}
	}
	return tw.Flush()
}
