package core

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/adminjobs/internal/format"
)

const threeRows = "Code,Name,Active\nUSD,US Dollar,true\nEUR,,true\nGBP,Pound,false\n"

func TestImport_RowMissingRequiredField(t *testing.T) {
	adapter := newFakeAdapter()
	svc := newTestService(t, adapter, Options{})

	job := importCSV(t, svc, tenantA, "skip", threeRows)

	if job.Status != StatusCompleted {
		t.Fatalf("Status = %s, want completed (message %q)", job.Status, job.Message)
	}
	if job.TotalRows != 3 || job.ProcessedRows != 3 {
		t.Errorf("TotalRows/ProcessedRows = %d/%d, want 3/3", job.TotalRows, job.ProcessedRows)
	}
	if job.SuccessCount != 2 || job.SkippedCount != 0 || job.ErrorCount != 1 {
		t.Errorf("counts = %d/%d/%d, want 2/0/1", job.SuccessCount, job.SkippedCount, job.ErrorCount)
	}
	if job.ErrorReportID == "" {
		t.Fatal("ErrorReportID is empty, want set")
	}
	if job.CompletedAt == nil || job.StartedAt == nil {
		t.Error("StartedAt/CompletedAt not set")
	}

	dl, err := svc.DownloadErrorReport(context.Background(), tenantA, job.ErrorReportID)
	if err != nil {
		t.Fatalf("DownloadErrorReport() error = %v", err)
	}
	if dl.ContentType != "text/csv" {
		t.Errorf("ContentType = %q, want text/csv", dl.ContentType)
	}
	if !strings.HasPrefix(dl.FileName, "currencies_import_errors_") {
		t.Errorf("FileName = %q", dl.FileName)
	}

	records, err := csv.NewReader(bytes.NewReader(dl.Bytes)).ReadAll()
	if err != nil {
		t.Fatalf("report is not csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("report has %d lines, want header + 1: %v", len(records), records)
	}
	if records[1][0] != "2" || records[1][1] != "Name" {
		t.Errorf("report line = %v, want row 2 field Name", records[1])
	}
}

func TestImport_RowNumbersSurviveSeparatorRows(t *testing.T) {
	adapter := newFakeAdapter()
	svc := newTestService(t, adapter, Options{})

	job := importCSV(t, svc, tenantA, "skip", "Code,Name,Active\nUSD,Dollar,true\n,,\nEUR,,true\n")

	if job.TotalRows != 2 || job.SuccessCount != 1 || job.ErrorCount != 1 {
		t.Fatalf("total/success/error = %d/%d/%d, want 2/1/1", job.TotalRows, job.SuccessCount, job.ErrorCount)
	}

	dl, err := svc.DownloadErrorReport(context.Background(), tenantA, job.ErrorReportID)
	if err != nil {
		t.Fatalf("DownloadErrorReport() error = %v", err)
	}
	records, err := csv.NewReader(bytes.NewReader(dl.Bytes)).ReadAll()
	if err != nil {
		t.Fatalf("report is not csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("report has %d lines, want header + 1: %v", len(records), records)
	}
	if records[1][0] != "3" {
		t.Errorf("report row = %s, want 3 (EUR follows a blank separator)", records[1][0])
	}
}

func TestImport_SkipIsIdempotent(t *testing.T) {
	adapter := newFakeAdapter()
	svc := newTestService(t, adapter, Options{})
	body := "Code,Name\nUSD,US Dollar\nEUR,Euro\nJPY,Yen\n"

	first := importCSV(t, svc, tenantA, "skip", body)
	if first.SuccessCount != 3 {
		t.Fatalf("first SuccessCount = %d, want 3", first.SuccessCount)
	}

	second := importCSV(t, svc, tenantA, "skip", body)
	if second.SkippedCount != second.TotalRows || second.TotalRows != 3 {
		t.Errorf("second run skipped %d of %d, want all 3", second.SkippedCount, second.TotalRows)
	}
	if second.ErrorReportID != "" {
		t.Errorf("ErrorReportID = %q, want empty", second.ErrorReportID)
	}
	if n := adapter.count("org-a", "USD"); n != 1 {
		t.Errorf("USD records = %d, want 1", n)
	}
}

func TestImport_UpdateRoundTrip(t *testing.T) {
	adapter := newFakeAdapter()
	svc := newTestService(t, adapter, Options{})

	importCSV(t, svc, tenantA, "update", "Code,Name\nusd,US Dollar\n")
	job := importCSV(t, svc, tenantA, "Update", "Code,Name\nUSD,United States Dollar\n")

	if job.SuccessCount != 1 {
		t.Errorf("SuccessCount = %d, want 1", job.SuccessCount)
	}
	got := adapter.find("org-a", "USD")
	if len(got) != 1 {
		t.Fatalf("USD records = %d, want 1", len(got))
	}
	if got[0].Fields["Name"] != "United States Dollar" {
		t.Errorf("Name = %q, want latest value", got[0].Fields["Name"])
	}
}

func TestImport_CreateNewNeverMutates(t *testing.T) {
	adapter := newFakeAdapter()
	svc := newTestService(t, adapter, Options{})

	importCSV(t, svc, tenantA, "skip", "Code,Name\nUSD,US Dollar\n")
	original := adapter.find("org-a", "USD")[0]

	job := importCSV(t, svc, tenantA, "create-new", "Code,Name\nUSD,Changed\n")
	if job.SuccessCount != 1 || job.SkippedCount != 0 {
		t.Errorf("counts = %d/%d, want 1 success 0 skipped", job.SuccessCount, job.SkippedCount)
	}

	all := adapter.find("org-a", "USD")
	if len(all) != 2 {
		t.Fatalf("USD records = %d, want 2", len(all))
	}
	if all[0].ID != original.ID || all[0].Fields["Name"] != "US Dollar" {
		t.Errorf("existing record changed: %+v", all[0])
	}
}

func TestImport_TenantsAreIsolated(t *testing.T) {
	adapter := newFakeAdapter()
	svc := newTestService(t, adapter, Options{})

	importCSV(t, svc, tenantA, "skip", "Code,Name\nUSD,US Dollar\n")
	job := importCSV(t, svc, tenantB, "skip", "Code,Name\nUSD,US Dollar\n")

	if job.SuccessCount != 1 || job.SkippedCount != 0 {
		t.Errorf("tenant B counts = %d/%d, want 1/0", job.SuccessCount, job.SkippedCount)
	}
}

func TestImport_PersistenceErrorIsRowError(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.failOn = "EUR"
	svc := newTestService(t, adapter, Options{})

	job := importCSV(t, svc, tenantA, "skip", "Code,Name\nUSD,Dollar\nEUR,Euro\nGBP,Pound\n")

	if job.Status != StatusCompleted {
		t.Fatalf("Status = %s, want completed", job.Status)
	}
	if job.SuccessCount != 2 || job.ErrorCount != 1 {
		t.Errorf("counts = %d success %d errors, want 2/1", job.SuccessCount, job.ErrorCount)
	}
	if job.ErrorReportID == "" {
		t.Error("ErrorReportID is empty")
	}
}

func TestImport_HeaderOnlyCompletes(t *testing.T) {
	svc := newTestService(t, newFakeAdapter(), Options{})

	job := importCSV(t, svc, tenantA, "", "Code,Name\n")

	if job.Status != StatusCompleted || job.TotalRows != 0 || job.ProcessedRows != 0 {
		t.Errorf("job = %s total=%d processed=%d, want completed 0/0", job.Status, job.TotalRows, job.ProcessedRows)
	}
	if job.DuplicateStrategy != StrategySkip {
		t.Errorf("DuplicateStrategy = %q, want skip", job.DuplicateStrategy)
	}
}

func TestImport_UndecodableFileFails(t *testing.T) {
	svc := newTestService(t, newFakeAdapter(), Options{})

	id, err := svc.EnqueueImport(context.Background(), ImportRequest{
		Tenant:     tenantA,
		EntityKind: "currencies",
		FileName:   "currencies.xlsx",
		Reader:     strings.NewReader("PK\x03\x04garbage"),
	})
	if err != nil {
		t.Fatalf("EnqueueImport() error = %v", err)
	}
	job := waitTerminal(t, svc, tenantA, id)

	if job.Status != StatusFailed || job.ProcessedRows != 0 {
		t.Errorf("job = %s processed=%d, want failed with 0 processed", job.Status, job.ProcessedRows)
	}
	if job.Message == "" {
		t.Error("Message is empty")
	}
}

func TestImport_MissingColumnsFails(t *testing.T) {
	svc := newTestService(t, newFakeAdapter(), Options{})

	job := importCSV(t, svc, tenantA, "", "Name\nDollar\n")

	if job.Status != StatusFailed {
		t.Fatalf("Status = %s, want failed", job.Status)
	}
	if !strings.Contains(job.Message, "Code") {
		t.Errorf("Message = %q, want missing column named", job.Message)
	}
}

func TestEnqueueImport_Rejections(t *testing.T) {
	svc := newTestService(t, newFakeAdapter(), Options{MaxUploadSize: 64})

	tests := []struct {
		name string
		req  ImportRequest
		want error
	}{
		{
			name: "missing tenant",
			req:  ImportRequest{EntityKind: "currencies", FileName: "a.csv", Reader: strings.NewReader("Code\nX\n")},
			want: ErrMissingTenant,
		},
		{
			name: "unknown entity",
			req:  ImportRequest{Tenant: tenantA, EntityKind: "planets", FileName: "a.csv", Reader: strings.NewReader("Code\nX\n")},
			want: ErrUnknownEntity,
		},
		{
			name: "empty upload",
			req:  ImportRequest{Tenant: tenantA, EntityKind: "currencies", FileName: "a.csv", Reader: strings.NewReader(" \n ")},
			want: ErrEmptyUpload,
		},
		{
			name: "nil reader",
			req:  ImportRequest{Tenant: tenantA, EntityKind: "currencies", FileName: "a.csv"},
			want: ErrEmptyUpload,
		},
		{
			name: "too large",
			req:  ImportRequest{Tenant: tenantA, EntityKind: "currencies", FileName: "a.csv", Reader: strings.NewReader("Code\n" + strings.Repeat("X\n", 64))},
			want: ErrUploadTooLarge,
		},
		{
			name: "unsupported type",
			req:  ImportRequest{Tenant: tenantA, EntityKind: "currencies", FileName: "a.pdf", Reader: strings.NewReader("%PDF")},
			want: format.ErrUnsupported,
		},
		{
			name: "invalid strategy",
			req:  ImportRequest{Tenant: tenantA, EntityKind: "currencies", FileName: "a.csv", Reader: strings.NewReader("Code\nX\n"), Strategy: "merge"},
			want: ErrInvalidStrategy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := svc.EnqueueImport(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("EnqueueImport() error = %v, want %v", err, tt.want)
			}
			if !IsRejected(err) {
				t.Errorf("IsRejected(%v) = false", err)
			}
			if id != "" {
				t.Errorf("jobId = %q, want empty", id)
			}
		})
	}

	jobs, _ := svc.ListJobs(context.Background(), tenantA, 0)
	if len(jobs) != 0 {
		t.Errorf("ListJobs() = %d jobs after rejections, want 0", len(jobs))
	}
}

func TestEnqueue_QueueFullCreatesNoJob(t *testing.T) {
	svc := newUnstartedService(t, newFakeAdapter(), Options{QueueSize: 1})

	if _, err := svc.EnqueueExport(context.Background(), ExportRequest{Tenant: tenantA, EntityKind: "currencies"}); err != nil {
		t.Fatalf("first EnqueueExport() error = %v", err)
	}
	_, err := svc.EnqueueExport(context.Background(), ExportRequest{Tenant: tenantA, EntityKind: "currencies"})
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("second EnqueueExport() error = %v, want ErrQueueFull", err)
	}

	jobs, _ := svc.ListJobs(context.Background(), tenantA, 0)
	if len(jobs) != 1 {
		t.Errorf("ListJobs() = %d jobs, want 1", len(jobs))
	}
}

func TestEnqueueExport_Rejections(t *testing.T) {
	svc := newUnstartedService(t, newFakeAdapter(), Options{})
	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(-time.Hour)

	tests := []struct {
		name string
		req  ExportRequest
		want error
	}{
		{"missing tenant", ExportRequest{EntityKind: "currencies"}, ErrMissingTenant},
		{"unknown entity", ExportRequest{Tenant: tenantA, EntityKind: "planets"}, ErrUnknownEntity},
		{"bad format", ExportRequest{Tenant: tenantA, EntityKind: "currencies", Format: "pdf"}, ErrInvalidFormat},
		{"inverted range", ExportRequest{Tenant: tenantA, EntityKind: "currencies", Filters: FilterCriteria{Ranges: map[string]DateRange{"created_at": {From: &from, To: &to}}}}, ErrInvalidFilters},
		{"blank selected id", ExportRequest{Tenant: tenantA, EntityKind: "currencies", SelectedIDs: []string{" "}}, ErrInvalidFilters},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.EnqueueExport(context.Background(), tt.req)
			if !errors.Is(err, tt.want) || !IsRejected(err) {
				t.Errorf("EnqueueExport() error = %v, want rejected %v", err, tt.want)
			}
		})
	}
}

func seedCurrencies(adapter *fakeAdapter) (usd, eur, gbp, foreign Entity) {
	usd = adapter.insert("org-a", Fields{"Code": "USD", "Name": "US Dollar", "Active": "true"})
	eur = adapter.insert("org-a", Fields{"Code": "EUR", "Name": "Euro", "Active": "true"})
	gbp = adapter.insert("org-a", Fields{"Code": "GBP", "Name": "Pound", "Active": "false"})
	foreign = adapter.insert("org-b", Fields{"Code": "CHF", "Name": "Franc", "Active": "true"})
	return
}

func exportJSON(t *testing.T, svc *Service, req ExportRequest) (Job, []map[string]string) {
	t.Helper()
	req.Format = "json"
	id, err := svc.EnqueueExport(context.Background(), req)
	if err != nil {
		t.Fatalf("EnqueueExport() error = %v", err)
	}
	job := waitTerminal(t, svc, req.Tenant, id)
	if job.Status != StatusCompleted {
		t.Fatalf("Status = %s (%s), want completed", job.Status, job.Message)
	}
	if job.TotalRows == 0 {
		return job, nil
	}

	dl, err := svc.DownloadExport(context.Background(), req.Tenant, id)
	if err != nil {
		t.Fatalf("DownloadExport() error = %v", err)
	}
	var rows []map[string]string
	if err := json.Unmarshal(dl.Bytes, &rows); err != nil {
		t.Fatalf("export is not json: %v", err)
	}
	return job, rows
}

func TestExport_SelectedIDsOverrideFilters(t *testing.T) {
	adapter := newFakeAdapter()
	usd, _, gbp, foreign := seedCurrencies(adapter)
	svc := newTestService(t, adapter, Options{})

	job, rows := exportJSON(t, svc, ExportRequest{
		Tenant:      tenantA,
		EntityKind:  "currencies",
		Filters:     FilterCriteria{Search: "euro", Flags: map[string]bool{"Active": true}},
		SelectedIDs: []string{usd.ID, gbp.ID, foreign.ID},
	})

	if job.TotalRows != 2 || len(rows) != 2 {
		t.Fatalf("TotalRows = %d, rows = %v; want USD and GBP only", job.TotalRows, rows)
	}
	if rows[0]["Code"] != "USD" || rows[1]["Code"] != "GBP" {
		t.Errorf("rows = %v, want USD then GBP", rows)
	}
}

func TestExport_FiltersApplyWithoutSelection(t *testing.T) {
	adapter := newFakeAdapter()
	seedCurrencies(adapter)
	svc := newTestService(t, adapter, Options{})

	_, rows := exportJSON(t, svc, ExportRequest{
		Tenant:     tenantA,
		EntityKind: "currencies",
		Filters:    FilterCriteria{Flags: map[string]bool{"Active": true}},
	})

	if len(rows) != 2 {
		t.Errorf("rows = %v, want 2 active currencies", rows)
	}
}

func TestExport_ZeroRowsReportsNoData(t *testing.T) {
	adapter := newFakeAdapter()
	seedCurrencies(adapter)
	svc := newTestService(t, adapter, Options{})

	job, _ := exportJSON(t, svc, ExportRequest{
		Tenant:     tenantA,
		EntityKind: "currencies",
		Filters:    FilterCriteria{Search: "no such currency"},
	})

	if job.TotalRows != 0 || job.Status != StatusCompleted {
		t.Fatalf("job = %s total=%d, want completed with 0 rows", job.Status, job.TotalRows)
	}
	if job.ErrorReportID != "" {
		t.Errorf("export ErrorReportID = %q, want empty", job.ErrorReportID)
	}
	_, err := svc.DownloadExport(context.Background(), tenantA, job.ID)
	if !errors.Is(err, ErrNoExportData) {
		t.Errorf("DownloadExport() error = %v, want ErrNoExportData", err)
	}
}

func TestExport_DefaultFormatIsExcel(t *testing.T) {
	adapter := newFakeAdapter()
	seedCurrencies(adapter)
	svc := newTestService(t, adapter, Options{})

	id, err := svc.EnqueueExport(context.Background(), ExportRequest{Tenant: tenantA, EntityKind: "currencies"})
	if err != nil {
		t.Fatalf("EnqueueExport() error = %v", err)
	}
	job := waitTerminal(t, svc, tenantA, id)
	if job.Format != FormatExcel {
		t.Errorf("Format = %q, want excel", job.Format)
	}

	dl, err := svc.DownloadExport(context.Background(), tenantA, id)
	if err != nil {
		t.Fatalf("DownloadExport() error = %v", err)
	}
	if dl.ContentType != format.XLSX.ContentType() {
		t.Errorf("ContentType = %q", dl.ContentType)
	}
	if !strings.HasPrefix(dl.FileName, "currencies_export_") || !strings.HasSuffix(dl.FileName, ".xlsx") {
		t.Errorf("FileName = %q", dl.FileName)
	}
	table, err := format.Decode(format.XLSX, dl.Bytes)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(table.Rows) != 3 {
		t.Errorf("exported %d rows, want 3", len(table.Rows))
	}
}

func TestDownload_UnknownAndExpired(t *testing.T) {
	adapter := newFakeAdapter()
	seedCurrencies(adapter)
	svc := newTestService(t, adapter, Options{ArtifactTTL: time.Hour})
	ctx := context.Background()

	if _, err := svc.DownloadExport(ctx, tenantA, "no-such-job"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("DownloadExport(unknown) error = %v, want ErrJobNotFound", err)
	}
	if _, err := svc.DownloadErrorReport(ctx, tenantA, "no-such-report"); !errors.Is(err, ErrArtifactNotFound) {
		t.Errorf("DownloadErrorReport(unknown) error = %v, want ErrArtifactNotFound", err)
	}

	exp, _ := exportJSON(t, svc, ExportRequest{Tenant: tenantA, EntityKind: "currencies"})
	imp := importCSV(t, svc, tenantA, "skip", threeRows)

	if _, err := svc.DownloadExport(ctx, tenantB, exp.ID); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("DownloadExport(foreign) error = %v, want ErrJobNotFound", err)
	}
	if _, err := svc.DownloadErrorReport(ctx, tenantB, imp.ErrorReportID); !errors.Is(err, ErrArtifactNotFound) {
		t.Errorf("DownloadErrorReport(foreign) error = %v, want ErrArtifactNotFound", err)
	}

	later := time.Now().Add(2 * time.Hour)
	svc.now = func() time.Time { return later }

	if _, err := svc.DownloadExport(ctx, tenantA, exp.ID); !errors.Is(err, ErrArtifactNotFound) {
		t.Errorf("DownloadExport(expired) error = %v, want ErrArtifactNotFound", err)
	}
	if _, err := svc.DownloadErrorReport(ctx, tenantA, imp.ErrorReportID); !errors.Is(err, ErrArtifactNotFound) {
		t.Errorf("DownloadErrorReport(expired) error = %v, want ErrArtifactNotFound", err)
	}

	res := svc.Sweep(ctx)
	if res.Artifacts != 2 {
		t.Errorf("Sweep() purged %d artifacts, want 2", res.Artifacts)
	}
}

func TestDownloadExport_NotReady(t *testing.T) {
	svc := newUnstartedService(t, newFakeAdapter(), Options{})

	id, err := svc.EnqueueExport(context.Background(), ExportRequest{Tenant: tenantA, EntityKind: "currencies"})
	if err != nil {
		t.Fatalf("EnqueueExport() error = %v", err)
	}
	if _, err := svc.DownloadExport(context.Background(), tenantA, id); !errors.Is(err, ErrExportNotReady) {
		t.Errorf("DownloadExport() error = %v, want ErrExportNotReady", err)
	}
}

func TestGetStatus_ForeignTenantIsNotFound(t *testing.T) {
	svc := newUnstartedService(t, newFakeAdapter(), Options{})

	id, _ := svc.EnqueueExport(context.Background(), ExportRequest{Tenant: tenantA, EntityKind: "currencies"})

	if _, err := svc.GetStatus(context.Background(), tenantB, id); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("GetStatus(foreign) error = %v, want ErrJobNotFound", err)
	}
	job, err := svc.GetStatus(context.Background(), tenantA, id)
	if err != nil {
		t.Fatalf("GetStatus() error = %v", err)
	}
	if job.Status != StatusPending || job.RequestedBy != "alice" {
		t.Errorf("job = %s by %q, want pending by alice", job.Status, job.RequestedBy)
	}
}

func TestHistory_FilterByOperationType(t *testing.T) {
	adapter := newFakeAdapter()
	seedCurrencies(adapter)
	svc := newTestService(t, adapter, Options{})
	ctx := context.Background()

	imp := importCSV(t, svc, tenantA, "skip", "Code,Name\nJPY,Yen\n")
	exp, _ := exportJSON(t, svc, ExportRequest{Tenant: tenantA, EntityKind: "currencies"})
	importCSV(t, svc, tenantB, "skip", "Code,Name\nJPY,Yen\n")

	importOp, exportOp := OperationImport, OperationExport

	imports, err := svc.ListHistory(ctx, tenantA, &importOp, "", 1, 10)
	if err != nil {
		t.Fatalf("ListHistory() error = %v", err)
	}
	if imports.Total != 1 || imports.Entries[0].JobID != imp.ID {
		t.Errorf("import history = %+v, want only %s", imports.Entries, imp.ID)
	}
	for _, e := range imports.Entries {
		if e.OperationType != OperationImport {
			t.Errorf("import filter returned %s entry", e.OperationType)
		}
	}

	exports, _ := svc.ListHistory(ctx, tenantA, &exportOp, "", 1, 10)
	if exports.Total != 1 || exports.Entries[0].JobID != exp.ID {
		t.Errorf("export history = %+v, want only %s", exports.Entries, exp.ID)
	}
	if exports.Entries[0].Format != FormatJSON || exports.Entries[0].DuplicateStrategy != "" {
		t.Errorf("export entry format/strategy = %q/%q", exports.Entries[0].Format, exports.Entries[0].DuplicateStrategy)
	}

	all, _ := svc.ListHistory(ctx, tenantA, nil, "", 1, 10)
	if all.Total != 2 {
		t.Fatalf("unfiltered Total = %d, want 2", all.Total)
	}
	if all.Entries[0].JobID != exp.ID {
		t.Errorf("first entry = %s, want newest (%s)", all.Entries[0].JobID, exp.ID)
	}

	page2, _ := svc.ListHistory(ctx, tenantA, nil, "", 2, 1)
	if len(page2.Entries) != 1 || page2.Entries[0].JobID != imp.ID {
		t.Errorf("page 2 = %+v, want the import", page2.Entries)
	}
}

func TestHistory_OneEntryPerJob(t *testing.T) {
	svc := newTestService(t, newFakeAdapter(), Options{})

	for i := 0; i < 3; i++ {
		importCSV(t, svc, tenantA, "skip", threeRows)
	}
	page, _ := svc.ListHistory(context.Background(), tenantA, nil, "", 1, 50)

	seen := make(map[string]int)
	for _, e := range page.Entries {
		seen[e.JobID]++
	}
	if len(seen) != 3 {
		t.Errorf("history has %d jobs, want 3", len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("job %s has %d history entries, want 1", id, n)
		}
	}
}

func TestCancelJob_Pending(t *testing.T) {
	svc := newUnstartedService(t, newFakeAdapter(), Options{})
	ctx := context.Background()

	id, _ := svc.EnqueueExport(ctx, ExportRequest{Tenant: tenantA, EntityKind: "currencies"})

	if _, err := svc.CancelJob(ctx, tenantB, id); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("CancelJob(foreign) error = %v, want ErrJobNotFound", err)
	}

	job, err := svc.CancelJob(ctx, tenantA, id)
	if err != nil {
		t.Fatalf("CancelJob() error = %v", err)
	}
	if job.Status != StatusFailed || job.Message != "cancelled" {
		t.Errorf("job = %s %q, want failed cancelled", job.Status, job.Message)
	}

	if _, err := svc.CancelJob(ctx, tenantA, id); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second CancelJob() error = %v, want ErrInvalidTransition", err)
	}

	page, _ := svc.ListHistory(ctx, tenantA, nil, "", 1, 10)
	if page.Total != 1 || page.Entries[0].Status != StatusFailed {
		t.Errorf("history = %+v, want one failed entry", page.Entries)
	}

	// A worker picking the cancelled id up must leave it alone.
	svc.runJob(ctx, id)
	again, _ := svc.GetStatus(ctx, tenantA, id)
	if again.Status != StatusFailed {
		t.Errorf("Status after runJob = %s, want failed", again.Status)
	}
}

func TestCancelJob_Processing(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.block = make(chan struct{})
	svc := newTestService(t, adapter, Options{})
	ctx := context.Background()

	id, err := svc.EnqueueImport(ctx, ImportRequest{
		Tenant: tenantA, EntityKind: "currencies", FileName: "c.csv",
		Reader: strings.NewReader("Code,Name\nUSD,Dollar\nEUR,Euro\n"),
	})
	if err != nil {
		t.Fatalf("EnqueueImport() error = %v", err)
	}
	waitStatus(t, svc, tenantA, id, StatusProcessing)

	if _, err := svc.CancelJob(ctx, tenantA, id); err != nil {
		t.Fatalf("CancelJob() error = %v", err)
	}
	job := waitTerminal(t, svc, tenantA, id)

	if job.Status != StatusFailed || job.Message != "cancelled" {
		t.Errorf("job = %s %q, want failed cancelled", job.Status, job.Message)
	}
	if job.SuccessCount+job.SkippedCount+job.ErrorCount != job.ProcessedRows {
		t.Errorf("counts do not add up: %+v", job)
	}
}

func TestRunJob_PanicFailsJob(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.panicOn = "EUR"
	svc := newTestService(t, adapter, Options{})

	job := importCSV(t, svc, tenantA, "skip", "Code,Name\nUSD,Dollar\nEUR,Euro\nGBP,Pound\n")

	if job.Status != StatusFailed {
		t.Fatalf("Status = %s, want failed", job.Status)
	}
	if job.Message != "internal error" {
		t.Errorf("Message = %q, want internal error", job.Message)
	}
	if job.SuccessCount != 1 || job.ProcessedRows != 1 {
		t.Errorf("partial progress = %d/%d, want 1 success of 1 processed", job.SuccessCount, job.ProcessedRows)
	}

	// The pool survives the panic.
	next := importCSV(t, svc, tenantA, "skip", "Code,Name\nJPY,Yen\n")
	if next.Status != StatusCompleted {
		t.Errorf("next job Status = %s, want completed", next.Status)
	}
}

func TestRunJob_WatchdogTimeout(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.block = make(chan struct{})
	svc := newTestService(t, adapter, Options{JobTimeout: 50 * time.Millisecond})

	job := importCSV(t, svc, tenantA, "skip", "Code,Name\nUSD,Dollar\n")

	if job.Status != StatusFailed || job.Message != ErrJobTimeout.Error() {
		t.Errorf("job = %s %q, want failed %q", job.Status, job.Message, ErrJobTimeout.Error())
	}
}

func TestRunJob_SecondClaimIsIgnored(t *testing.T) {
	svc := newUnstartedService(t, newFakeAdapter(), Options{})
	ctx := context.Background()

	id, _ := svc.EnqueueImport(ctx, ImportRequest{
		Tenant: tenantA, EntityKind: "currencies", FileName: "c.csv",
		Reader: strings.NewReader("Code,Name\nUSD,Dollar\n"),
	})

	svc.runJob(ctx, id)
	svc.runJob(ctx, id)

	job, _ := svc.GetStatus(ctx, tenantA, id)
	if job.Status != StatusCompleted || job.SuccessCount != 1 {
		t.Errorf("job = %s success=%d, want completed once", job.Status, job.SuccessCount)
	}
	page, _ := svc.ListHistory(ctx, tenantA, nil, "", 1, 10)
	if page.Total != 1 {
		t.Errorf("history entries = %d, want 1", page.Total)
	}
}

func TestStart_FailsStaleJobs(t *testing.T) {
	jobs := NewMemoryJobStore()
	history := NewMemoryHistory()
	ctx := context.Background()

	stale := Job{ID: "stale-1", OrganizationID: "org-a", OperationType: OperationImport, EntityKind: "currencies", Status: StatusProcessing, CreatedAt: time.Now()}
	if err := jobs.Create(ctx, stale); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	reg := NewRegistry()
	reg.Register(newFakeAdapter())
	svc, err := NewService(Deps{Registry: reg, Jobs: jobs, History: history}, Options{})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer svc.Shutdown(ctx)

	job, _ := svc.GetStatus(ctx, tenantA, "stale-1")
	if job.Status != StatusFailed || job.Message != "interrupted by restart" {
		t.Errorf("job = %s %q, want failed interrupted by restart", job.Status, job.Message)
	}
	page, _ := history.List(ctx, HistoryQuery{OrganizationID: "org-a"})
	if page.Total != 1 {
		t.Errorf("history entries = %d, want 1", page.Total)
	}
}

func TestSweep_RemovesOldJobsAndHistory(t *testing.T) {
	svc := newTestService(t, newFakeAdapter(), Options{JobRetention: time.Hour, HistoryRetention: 24 * time.Hour})
	ctx := context.Background()

	job := importCSV(t, svc, tenantA, "skip", "Code,Name\nUSD,Dollar\n")

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	res := svc.Sweep(ctx)
	if res.Jobs != 1 || res.History != 0 {
		t.Errorf("Sweep() = %+v, want 1 job and no history", res)
	}
	if _, err := svc.GetStatus(ctx, tenantA, job.ID); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("GetStatus() error = %v, want ErrJobNotFound", err)
	}

	svc.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	if res := svc.Sweep(ctx); res.History != 1 {
		t.Errorf("Sweep() history purged = %d, want 1", res.History)
	}
}

func TestListJobs_NewestFirstPerTenant(t *testing.T) {
	svc := newUnstartedService(t, newFakeAdapter(), Options{})
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		svc.now = func() time.Time { return at }
		id, _ := svc.EnqueueExport(ctx, ExportRequest{Tenant: tenantA, EntityKind: "currencies"})
		ids = append(ids, id)
	}
	svc.EnqueueExport(ctx, ExportRequest{Tenant: tenantB, EntityKind: "currencies"})

	jobs, err := svc.ListJobs(ctx, tenantA, 0)
	if err != nil {
		t.Fatalf("ListJobs() error = %v", err)
	}
	if len(jobs) != 3 || jobs[0].ID != ids[2] || jobs[2].ID != ids[0] {
		t.Errorf("ListJobs() order wrong: %v", jobs)
	}
}
