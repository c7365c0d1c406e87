package core

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/JonMunkholm/adminjobs/internal/format"
)

// genRow produces a row that is valid, missing its name, or carries a bad
// flag, drawn from a small code space so duplicates are common.
func genRow() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(0, 5),
		gen.IntRange(0, 9),
	).Map(func(v []interface{}) []string {
		code := fmt.Sprintf("C%d", v[0].(int))
		switch kind := v[1].(int); {
		case kind == 0:
			return []string{code, "", "true"}
		case kind == 1:
			return []string{code, "Name", "maybe"}
		default:
			return []string{code, "Name " + code, "true"}
		}
	})
}

func genStrategy() gopter.Gen {
	return gen.OneConstOf(StrategySkip, StrategyUpdate, StrategyCreateNew)
}

func processTable(strategy DuplicateStrategy, preexisting int, rows [][]string) (*fakeAdapter, *RowProcessor, error) {
	adapter := newFakeAdapter()
	for i := 0; i < preexisting; i++ {
		adapter.insert(tenantA.OrganizationID, Fields{"Code": fmt.Sprintf("C%d", i), "Name": "seed", "Active": "true"})
	}
	p := &RowProcessor{Adapter: adapter, Tenant: tenantA, Strategy: strategy, Interval: 3}
	err := p.Process(context.Background(), &format.Table{Header: []string{"Code", "Name", "Active"}, Rows: rows})
	return adapter, p, err
}

func TestRowProcessorProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("success + skipped + errors == processed == total", prop.ForAll(
		func(strategy DuplicateStrategy, preexisting int, rows [][]string) bool {
			_, p, err := processTable(strategy, preexisting, rows)
			if err != nil {
				return false
			}
			got := p.Progress()
			return got.SuccessCount+got.SkippedCount+got.ErrorCount == got.ProcessedRows &&
				got.ProcessedRows == got.TotalRows &&
				got.TotalRows == len(rows)
		},
		genStrategy(),
		gen.IntRange(0, 6),
		gen.SliceOf(genRow()),
	))

	properties.Property("error records match error count and stay in row order", prop.ForAll(
		func(strategy DuplicateStrategy, rows [][]string) bool {
			_, p, err := processTable(strategy, 0, rows)
			if err != nil {
				return false
			}
			records := p.Report.Records()
			if len(records) != p.Progress().ErrorCount {
				return false
			}
			for i := 1; i < len(records); i++ {
				if records[i].RowNumber <= records[i-1].RowNumber {
					return false
				}
			}
			return true
		},
		genStrategy(),
		gen.SliceOf(genRow()),
	))

	properties.Property("skip never writes to existing entities", prop.ForAll(
		func(rows [][]string) bool {
			adapter, p, err := processTable(StrategySkip, 6, rows)
			if err != nil {
				return false
			}
			for _, e := range adapter.records[:6] {
				if e.Fields["Name"] != "seed" {
					return false
				}
			}
			// Every valid row hits a seeded code.
			return p.Progress().SuccessCount == 0
		},
		gen.SliceOf(genRow()),
	))

	properties.Property("create_new inserts one entity per valid row", prop.ForAll(
		func(preexisting int, rows [][]string) bool {
			adapter, p, err := processTable(StrategyCreateNew, preexisting, rows)
			if err != nil {
				return false
			}
			return len(adapter.records) == preexisting+p.Progress().SuccessCount
		},
		gen.IntRange(0, 6),
		gen.SliceOf(genRow()),
	))

	properties.TestingRun(t)
}

func TestRowProcessor_ProgressInterval(t *testing.T) {
	var calls []Progress
	p := &RowProcessor{
		Adapter:    newFakeAdapter(),
		Tenant:     tenantA,
		Strategy:   StrategySkip,
		Interval:   2,
		OnProgress: func(pr Progress) { calls = append(calls, pr) },
	}

	var rows [][]string
	for i := 0; i < 5; i++ {
		rows = append(rows, []string{fmt.Sprintf("R%d", i), "Name"})
	}
	if err := p.Process(context.Background(), &format.Table{Header: []string{"code", "NAME"}, Rows: rows}); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	// start, after rows 2 and 4, end
	if len(calls) != 4 {
		t.Fatalf("OnProgress called %d times, want 4: %+v", len(calls), calls)
	}
	for i := 1; i < len(calls); i++ {
		if calls[i].ProcessedRows < calls[i-1].ProcessedRows {
			t.Errorf("progress went backwards: %+v", calls)
		}
		if calls[i].ProcessedRows > calls[i].TotalRows {
			t.Errorf("processed %d exceeds total %d", calls[i].ProcessedRows, calls[i].TotalRows)
		}
	}
	if last := calls[len(calls)-1]; last.ProcessedRows != 5 || last.SuccessCount != 5 {
		t.Errorf("final progress = %+v, want 5 processed", last)
	}
}

func TestRowProcessor_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &RowProcessor{Adapter: newFakeAdapter(), Tenant: tenantA, Strategy: StrategySkip}
	err := p.Process(ctx, &format.Table{Header: []string{"Code", "Name"}, Rows: [][]string{{"A", "a"}}})
	if err == nil || !strings.Contains(err.Error(), "canceled") {
		t.Errorf("Process() error = %v, want context canceled", err)
	}
	if p.Progress().ProcessedRows != 0 {
		t.Errorf("ProcessedRows = %d, want 0", p.Progress().ProcessedRows)
	}
}

func TestErrorReportBuilder_Render(t *testing.T) {
	b := NewErrorReportBuilder()
	_ = b.Add(ErrorRecord{RowNumber: 2, FieldErrors: []FieldError{
		{Field: "Email", Value: "nope", Message: "invalid email"},
		{Field: "Name", Message: "required field is empty"},
	}})
	_ = b.Add(ErrorRecord{RowNumber: 5, GeneralMessage: "create failed: storage unavailable"})

	if err := b.Add(ErrorRecord{RowNumber: 3}); err == nil {
		t.Error("Add() out of order should fail")
	}

	data, err := b.Render()
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	want := "Row,Field,Value,Error\n" +
		"2,Email,nope,invalid email\n" +
		"2,Name,,required field is empty\n" +
		"5,,,create failed: storage unavailable\n"
	if string(data) != want {
		t.Errorf("Render() =\n%s\nwant\n%s", data, want)
	}
}

func TestErrorReportBuilder_RenderEscapesFormulas(t *testing.T) {
	b := NewErrorReportBuilder()
	_ = b.Add(ErrorRecord{RowNumber: 4, FieldErrors: []FieldError{
		{Field: "Rate", Value: "=HYPERLINK(\"http://x\")", Message: "invalid number"},
		{Field: "Amount", Value: "-12.5", Message: "must be positive"},
	}})

	data, err := b.Render()
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	want := "Row,Field,Value,Error\n" +
		"4,Rate,\"'=HYPERLINK(\"\"http://x\"\")\",invalid number\n" +
		"4,Amount,-12.5,must be positive\n"
	if string(data) != want {
		t.Errorf("Render() =\n%s\nwant\n%s", data, want)
	}
}

func TestFileNames(t *testing.T) {
	if got := ErrorReportFileName("users", "0123456789abcdef"); got != "users_import_errors_01234567.csv" {
		t.Errorf("ErrorReportFileName() = %q", got)
	}
}
