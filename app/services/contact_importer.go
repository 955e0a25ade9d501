package services

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/aproductiontitle/capi-public/models"
	"github.com/aproductiontitle/capi-public/utils"
	"github.com/xuri/excelize/v2"
)

// ContactImporter parses uploaded contact lists into campaign contact rows.
// CSV and XLSX files are accepted; the first sheet of a workbook is used.
type ContactImporter interface {
	ImportCSV(campaignID uint, r io.Reader) (*ImportResult, error)
	ImportXLSX(campaignID uint, data []byte) (*ImportResult, error)
}

// ImportResult summarizes one contact list import
type ImportResult struct {
	Contacts []*models.CampaignContact `json:"-"`
	Imported int                       `json:"imported"`
	Skipped  int                       `json:"skipped"`
	Errors   []string                  `json:"errors,omitempty"`
}

// ContactImporterImpl implements ContactImporter
type ContactImporterImpl struct{}

// NewContactImporter creates a new contact importer
func NewContactImporter() ContactImporter {
	return &ContactImporterImpl{}
}

// ImportCSV parses a CSV file with 'name' and 'phone_number' columns
func (i *ContactImporterImpl) ImportCSV(campaignID uint, r io.Reader) (*ImportResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	nameIdx, phoneIdx := columnIndexes(header)
	if phoneIdx < 0 {
		return nil, fmt.Errorf("CSV is missing a phone_number column")
	}

	result := &ImportResult{}
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}

		i.appendContact(result, campaignID, cell(record, nameIdx), cell(record, phoneIdx), line)
	}

	result.Imported = len(result.Contacts)
	return result, nil
}

// ImportXLSX parses the first sheet of an Excel workbook with 'name' and
// 'phone_number' columns
func (i *ContactImporterImpl) ImportXLSX(campaignID uint, data []byte) (*ImportResult, error) {
	xl, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer func() { _ = xl.Close() }()

	sheets := xl.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook contains no sheets")
	}

	rows, err := xl.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %s is empty", sheets[0])
	}

	nameIdx, phoneIdx := columnIndexes(rows[0])
	if phoneIdx < 0 {
		return nil, fmt.Errorf("sheet is missing a phone_number column")
	}

	result := &ImportResult{}
	for ri, row := range rows[1:] {
		i.appendContact(result, campaignID, cell(row, nameIdx), cell(row, phoneIdx), ri+2)
	}

	result.Imported = len(result.Contacts)
	return result, nil
}

func (i *ContactImporterImpl) appendContact(result *ImportResult, campaignID uint, name, phone string, line int) {
	normalized := utils.NormalizePhoneNumber(phone)
	if normalized == "" {
		result.Skipped++
		result.Errors = append(result.Errors, fmt.Sprintf("line %d: invalid phone number %q", line, strings.TrimSpace(phone)))
		return
	}

	result.Contacts = append(result.Contacts, &models.CampaignContact{
		CampaignID:  campaignID,
		Name:        strings.TrimSpace(name),
		PhoneNumber: normalized,
		Status:      models.ContactStatusPending,
	})
}

// columnIndexes locates the name and phone_number columns, case-insensitive
func columnIndexes(header []string) (nameIdx, phoneIdx int) {
	nameIdx, phoneIdx = -1, -1
	for idx, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "name", "contact_name":
			nameIdx = idx
		case "phone_number", "phone", "number":
			phoneIdx = idx
		}
	}
	return nameIdx, phoneIdx
}

func cell(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return record[idx]
}
