package service

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/healthy-futures/contest-api/internal/models"
	appErrors "github.com/healthy-futures/contest-api/pkg/errors"
	"github.com/healthy-futures/contest-api/pkg/export"
	"github.com/healthy-futures/contest-api/pkg/storage"
)

// ExportService renders school reports to files and signs download URLs.
type ExportService struct {
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
	storage *storage.LocalStorage
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
}

// NewExportService constructs the service.
func NewExportService(store *storage.LocalStorage, signer *storage.SignedURLSigner, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		storage: store,
		signer:  signer,
		logger:  logger,
	}
}

// Export renders the report in the requested format, stores the file and
// returns a signed download URL.
func (s *ExportService) Export(jobID string, report *models.SchoolReport, format models.ReportFormat) (string, error) {
	dataset := buildReportDataset(report)

	var (
		payload []byte
		err     error
	)
	switch format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		title := fmt.Sprintf("%s contest report %d-%02d", report.School, report.Year, int(report.Month))
		payload, err = s.pdf.Render(dataset, title)
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	filename := fmt.Sprintf("%s_%d-%02d_%s.%s", report.School, report.Year, int(report.Month), jobID, format)
	if _, err := s.storage.Save(filename, payload); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	url, _, err := s.signer.Generate(jobID, filename)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}
	return url, nil
}

// Open resolves a signed token to the stored export file.
func (s *ExportService) Open(token string) (string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid download token")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return "", appErrors.Clone(appErrors.ErrNotFound, "export file not found")
	}
	name := file.Name()
	_ = file.Close()
	return name, nil
}

// Cleanup removes export files older than the given TTL.
func (s *ExportService) Cleanup(ttl time.Duration) {
	removed, err := s.storage.CleanupOlderThan(ttl)
	if err != nil {
		s.logger.Warn("export cleanup failed", zap.Error(err))
		return
	}
	if len(removed) > 0 {
		s.logger.Info("export cleanup removed files", zap.Int("count", len(removed)))
	}
}

func buildReportDataset(report *models.SchoolReport) export.Dataset {
	dataset := export.Dataset{
		Headers: []string{"Student", "Grade", "Days Logged", "Days Complete", "Exercise Minutes"},
		Rows:    make([][]string, 0, len(report.Students)+1),
	}
	for _, row := range report.Students {
		dataset.Rows = append(dataset.Rows, []string{
			row.StudentName,
			row.Grade,
			fmt.Sprintf("%d", row.DaysLogged),
			fmt.Sprintf("%d", row.DaysComplete),
			fmt.Sprintf("%d", row.ExerciseMinutes),
		})
	}
	dataset.Rows = append(dataset.Rows, []string{
		"Total",
		"",
		fmt.Sprintf("%d", report.TotalDaysLogged),
		fmt.Sprintf("%d", report.TotalDaysComplete),
		fmt.Sprintf("%d", report.TotalExerciseMinutes),
	})
	return dataset
}
