package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"messageflow-backend/internal/config"
	"messageflow-backend/internal/model"
)

// sheetColumns is the header row of the ledger sheet.
var sheetColumns = []interface{}{"Key", "Plan", "Email", "Purchase Date", "Active", "Session", "Customer", "Amount"}

// SheetSyncService mirrors issued licenses into a Google spreadsheet so the
// sales team can follow purchases without the admin API.
type SheetSyncService struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
}

// NewSheetSyncService returns nil when syncing is disabled. A nil service
// accepts every call and does nothing.
func NewSheetSyncService(ctx context.Context, cfg config.SheetsConfig) (*SheetSyncService, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	b, err := os.ReadFile(cfg.CredentialPath)
	if err != nil {
		return nil, fmt.Errorf("read sheets credentials: %w", err)
	}

	creds, err := google.CredentialsFromJSON(ctx, b, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("load sheets credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}

	return &SheetSyncService{
		service:       srv,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     cfg.SheetName,
	}, nil
}

// EnsureHeader writes the column titles when the first row is empty.
func (s *SheetSyncService) EnsureHeader(ctx context.Context) error {
	if s == nil {
		return nil
	}

	spreadsheet, err := s.service.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}
	found := false
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == s.sheetName {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("sheet %q does not exist", s.sheetName)
	}

	header, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.sheetName+"!A1:H1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read sheet header: %w", err)
	}
	if len(header.Values) > 0 {
		return nil
	}

	_, err = s.service.Spreadsheets.Values.Update(
		s.spreadsheetID,
		s.sheetName+"!A1:H1",
		&sheets.ValueRange{Values: [][]interface{}{sheetColumns}},
	).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write sheet header: %w", err)
	}
	return nil
}

func (s *SheetSyncService) AppendLicense(ctx context.Context, license *model.License) error {
	if s == nil {
		return nil
	}

	_, err := s.service.Spreadsheets.Values.Append(
		s.spreadsheetID,
		s.sheetName+"!A2:H",
		&sheets.ValueRange{Values: [][]interface{}{licenseRow(license)}},
	).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append license row: %w", err)
	}

	log.Debug().Str("license", license.Key).Msg("License appended to sheet")
	return nil
}

// UpdateLicenseStatus rewrites the row holding license.Key, appending one if
// the key is not in the sheet yet.
func (s *SheetSyncService) UpdateLicenseStatus(ctx context.Context, license *model.License) error {
	if s == nil {
		return nil
	}

	keys, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.sheetName+"!A2:A").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read sheet keys: %w", err)
	}

	row := findKeyRow(keys.Values, license.Key)
	if row == 0 {
		return s.AppendLicense(ctx, license)
	}

	_, err = s.service.Spreadsheets.Values.Update(
		s.spreadsheetID,
		fmt.Sprintf("%s!A%d:H%d", s.sheetName, row, row),
		&sheets.ValueRange{Values: [][]interface{}{licenseRow(license)}},
	).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update license row: %w", err)
	}

	log.Debug().Str("license", license.Key).Int("row", row).Msg("License row updated in sheet")
	return nil
}

// BatchSyncLicenses rewrites the sheet body so it holds exactly the given
// licenses. Rows left over from an earlier, longer sync are cleared first.
func (s *SheetSyncService) BatchSyncLicenses(ctx context.Context, licenses []model.License) error {
	if s == nil {
		return nil
	}

	_, err := s.service.Spreadsheets.Values.Clear(
		s.spreadsheetID,
		s.sheetName+"!A2:H",
		&sheets.ClearValuesRequest{},
	).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear license rows: %w", err)
	}
	if len(licenses) == 0 {
		return nil
	}

	values := make([][]interface{}, 0, len(licenses))
	for i := range licenses {
		values = append(values, licenseRow(&licenses[i]))
	}

	_, err = s.service.Spreadsheets.Values.Update(
		s.spreadsheetID,
		fmt.Sprintf("%s!A2:H%d", s.sheetName, len(licenses)+1),
		&sheets.ValueRange{Values: values},
	).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write license rows: %w", err)
	}

	log.Info().Int("count", len(licenses)).Msg("License sheet rewritten")
	return nil
}

func licenseRow(license *model.License) []interface{} {
	return []interface{}{
		license.Key,
		license.Plan,
		license.Email,
		license.PurchaseDate.UTC().Format(time.RFC3339),
		strconv.FormatBool(license.Active),
		license.StripeSessionID,
		license.StripeCustomerID,
		license.Amount,
	}
}

// findKeyRow returns the 1-based sheet row of key in a column read from A2,
// or 0.
func findKeyRow(values [][]interface{}, key string) int {
	for i, row := range values {
		if len(row) > 0 && fmt.Sprint(row[0]) == key {
			return i + 2
		}
	}
	return 0
}
