package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestImportCSVNormalizesPhoneNumbers(t *testing.T) {
	csvData := strings.Join([]string{
		"name,phone_number",
		"Alice,(415) 555-0100",
		"Bob,14155550101",
		"Carol,+14155550102",
	}, "\n")

	result, err := NewContactImporter().ImportCSV(7, strings.NewReader(csvData))
	require.NoError(t, err)

	assert.Equal(t, 3, result.Imported)
	assert.Equal(t, 0, result.Skipped)
	require.Len(t, result.Contacts, 3)

	assert.Equal(t, "Alice", result.Contacts[0].Name)
	assert.Equal(t, "+14155550100", result.Contacts[0].PhoneNumber)
	assert.Equal(t, "+14155550101", result.Contacts[1].PhoneNumber)
	assert.Equal(t, "+14155550102", result.Contacts[2].PhoneNumber)
	assert.Equal(t, uint(7), result.Contacts[0].CampaignID)
}

func TestImportCSVHeaderAliases(t *testing.T) {
	csvData := "contact_name,phone\nDana,4155550103\n"

	result, err := NewContactImporter().ImportCSV(1, strings.NewReader(csvData))
	require.NoError(t, err)
	require.Len(t, result.Contacts, 1)
	assert.Equal(t, "Dana", result.Contacts[0].Name)
	assert.Equal(t, "+14155550103", result.Contacts[0].PhoneNumber)
}

func TestImportCSVMissingPhoneColumn(t *testing.T) {
	csvData := "name,email\nAlice,alice@example.com\n"

	_, err := NewContactImporter().ImportCSV(1, strings.NewReader(csvData))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "phone_number")
}

func TestImportCSVSkipsInvalidNumbers(t *testing.T) {
	csvData := strings.Join([]string{
		"name,phone_number",
		"Alice,4155550100",
		"Bob,12345",
		"Carol,",
	}, "\n")

	result, err := NewContactImporter().ImportCSV(1, strings.NewReader(csvData))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 2, result.Skipped)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "line 3")
	assert.Contains(t, result.Errors[0], "invalid phone number")
	assert.Contains(t, result.Errors[1], "line 4")
}

func TestImportXLSX(t *testing.T) {
	xl := excelize.NewFile()
	sheet := xl.GetSheetName(0)
	require.NoError(t, xl.SetCellValue(sheet, "A1", "name"))
	require.NoError(t, xl.SetCellValue(sheet, "B1", "phone_number"))
	require.NoError(t, xl.SetCellValue(sheet, "A2", "Alice"))
	require.NoError(t, xl.SetCellValue(sheet, "B2", "4155550100"))
	require.NoError(t, xl.SetCellValue(sheet, "A3", "Bob"))
	require.NoError(t, xl.SetCellValue(sheet, "B3", "bad"))

	buf, err := xl.WriteToBuffer()
	require.NoError(t, err)

	result, err := NewContactImporter().ImportXLSX(3, buf.Bytes())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Skipped)
	require.Len(t, result.Contacts, 1)
	assert.Equal(t, "+14155550100", result.Contacts[0].PhoneNumber)
	assert.Equal(t, uint(3), result.Contacts[0].CampaignID)
}

func TestImportXLSXRejectsGarbage(t *testing.T) {
	_, err := NewContactImporter().ImportXLSX(1, []byte("definitely not a workbook"))
	require.Error(t, err)
}
