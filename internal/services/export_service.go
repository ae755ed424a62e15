package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"github.com/charlesng35/licensewatch/internal/models"
	apperrors "github.com/charlesng35/licensewatch/pkg/errors"
)

// Export formats supported by ExportService.
const (
	ExportFormatExcel = "excel"
	ExportFormatPDF   = "pdf"
)

const exportDateLayout = "2006-01-02"

// ExportFile is a rendered document ready to be streamed to a client.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders devices and licenses as spreadsheets or PDFs.
type ExportService struct {
	devices  *DeviceService
	licenses *LicenseService
}

// NewExportService constructs an ExportService using the scoped device and license lookups.
func NewExportService(devices *DeviceService, licenses *LicenseService) (*ExportService, error) {
	if devices == nil || licenses == nil {
		return nil, errors.New("export service: device and license services are required")
	}
	return &ExportService{devices: devices, licenses: licenses}, nil
}

// ExportDevice renders a device and its licenses in the requested format.
func (s *ExportService) ExportDevice(ctx context.Context, actor Actor, id, format string) (*ExportFile, error) {
	device, err := s.devices.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	switch format {
	case ExportFormatExcel, "":
		data, err := DeviceWorkbook(device)
		if err != nil {
			return nil, err
		}
		return &ExportFile{Filename: fmt.Sprintf("device_%s.xlsx", device.ServiceTag), ContentType: xlsxContentType, Data: data}, nil
	case ExportFormatPDF:
		data, err := DevicePDF(device)
		if err != nil {
			return nil, err
		}
		return &ExportFile{Filename: fmt.Sprintf("device_%s.pdf", device.ServiceTag), ContentType: "application/pdf", Data: data}, nil
	}
	return nil, errUnsupportedFormat(format)
}

// ExportLicense renders a license in the requested format.
func (s *ExportService) ExportLicense(ctx context.Context, actor Actor, id, format string) (*ExportFile, error) {
	license, err := s.licenses.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	switch format {
	case ExportFormatExcel, "":
		data, err := LicenseWorkbook(license)
		if err != nil {
			return nil, err
		}
		return &ExportFile{Filename: fmt.Sprintf("license_%s.xlsx", license.ID), ContentType: xlsxContentType, Data: data}, nil
	case ExportFormatPDF:
		data, err := LicensePDF(license)
		if err != nil {
			return nil, err
		}
		return &ExportFile{Filename: fmt.Sprintf("license_%s.pdf", license.ID), ContentType: "application/pdf", Data: data}, nil
	}
	return nil, errUnsupportedFormat(format)
}

// ExpiringLicensesWorkbook renders the sweep digest spreadsheet.
func (s *ExportService) ExpiringLicensesWorkbook(items []ExpiringLicense) ([]byte, error) {
	const sheet = "Expiring"

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("export service: rename sheet: %w", err)
	}
	header := []any{"License ID", "Device", "License Type", "Expiration Date", "Days Until Expiry", "Owner"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("export service: write header: %w", err)
	}

	for i, item := range items {
		var tag, owner string
		if item.License.Device != nil {
			tag = item.License.Device.ServiceTag
			if item.License.Device.AddedBy != nil {
				owner = item.License.Device.AddedBy.Email
			}
		}
		row := []any{
			item.License.ID,
			tag,
			item.License.LicenseType,
			item.License.ExpirationDate.UTC().Format(exportDateLayout),
			item.DaysUntilExpiry,
			owner,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("export service: cell name: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("export service: write row: %w", err)
		}
	}

	return writeWorkbook(f)
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// DeviceWorkbook renders a device summary followed by one row per license.
func DeviceWorkbook(device *models.Device) ([]byte, error) {
	const sheet = "Device"

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("export service: rename sheet: %w", err)
	}

	cells := []struct {
		cell  string
		value any
	}{
		{"A1", "Service Tag"}, {"B1", device.ServiceTag},
		{"A2", "Device Type"}, {"B2", device.DeviceType},
		{"A3", "Licenses"},
	}
	for _, c := range cells {
		if err := f.SetCellValue(sheet, c.cell, c.value); err != nil {
			return nil, fmt.Errorf("export service: write %s: %w", c.cell, err)
		}
	}

	for i, license := range device.Licenses {
		row := i + 4
		if err := f.SetCellValue(sheet, fmt.Sprintf("A%d", row), license.LicenseType); err != nil {
			return nil, fmt.Errorf("export service: write license: %w", err)
		}
		if err := f.SetCellValue(sheet, fmt.Sprintf("B%d", row), license.ExpirationDate.UTC().Format(exportDateLayout)); err != nil {
			return nil, fmt.Errorf("export service: write license: %w", err)
		}
	}

	return writeWorkbook(f)
}

// LicenseWorkbook renders a single license.
func LicenseWorkbook(license *models.License) ([]byte, error) {
	const sheet = "License"

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("export service: rename sheet: %w", err)
	}

	cells := []struct {
		cell  string
		value any
	}{
		{"A1", "License Type"}, {"B1", license.LicenseType},
		{"A2", "Expiration Date"}, {"B2", license.ExpirationDate.UTC().Format(exportDateLayout)},
		{"A3", "Device Service Tag"}, {"B3", deviceTag(license)},
	}
	for _, c := range cells {
		if err := f.SetCellValue(sheet, c.cell, c.value); err != nil {
			return nil, fmt.Errorf("export service: write %s: %w", c.cell, err)
		}
	}

	return writeWorkbook(f)
}

// DevicePDF renders a one-page device summary.
func DevicePDF(device *models.Device) ([]byte, error) {
	lines := []string{
		"Service Tag: " + device.ServiceTag,
		"Device Type: " + device.DeviceType,
		"Licenses:",
	}
	for _, license := range device.Licenses {
		lines = append(lines, fmt.Sprintf("- %s (Expires: %s)", license.LicenseType, license.ExpirationDate.UTC().Format(exportDateLayout)))
	}
	return renderPDF("Device Info", lines)
}

// LicensePDF renders a one-page license summary.
func LicensePDF(license *models.License) ([]byte, error) {
	return renderPDF("License Info", []string{
		"License Type: " + license.LicenseType,
		"Expiration Date: " + license.ExpirationDate.UTC().Format(exportDateLayout),
		"Device Service Tag: " + deviceTag(license),
	})
}

func renderPDF(title string, lines []string) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, title)
	pdf.Ln(12)
	pdf.SetFont("Arial", "", 12)
	for _, line := range lines {
		pdf.Cell(40, 10, line)
		pdf.Ln(8)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("export service: render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func writeWorkbook(f *excelize.File) ([]byte, error) {
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("export service: write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func deviceTag(license *models.License) string {
	if license.Device == nil {
		return ""
	}
	return license.Device.ServiceTag
}

func errUnsupportedFormat(format string) error {
	return apperrors.NewBadRequest(fmt.Sprintf("unsupported export format %q", format))
}
