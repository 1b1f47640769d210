package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"

	"hostelpay/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	ledgerSheet   = "Payments"
	lastColumn    = "Q"
	timestampForm = "2006-01-02 15:04:05"
)

var (
	errRowNotFound = errors.New("payment row not found")
	rowInRange     = regexp.MustCompile(`![A-Z]+(\d+)`)
)

var ledgerHeaders = []interface{}{
	"Reference", "Booking ID", "Hostel", "Room", "Customer", "Email", "Phone",
	"Method", "Network", "Amount", "Attempt Status", "Payment Type", "Total",
	"Amount Paid", "Booking Status", "Created At", "Resolved At",
}

// LedgerSheet mirrors payment attempts into a Google Sheets ledger, one row
// per reference.
type LedgerSheet struct {
	service       *sheets.Service
	spreadsheetID string
	rowCache      map[string]int
	cacheMu       sync.RWMutex
}

func NewLedgerSheet(ctx context.Context, credentialsFile, spreadsheetID string) (*LedgerSheet, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}

	return newLedgerSheet(srv, spreadsheetID), nil
}

func newLedgerSheet(srv *sheets.Service, spreadsheetID string) *LedgerSheet {
	return &LedgerSheet{
		service:       srv,
		spreadsheetID: spreadsheetID,
		rowCache:      make(map[string]int),
	}
}

// StartCacheRefresh warms the row cache now and then hourly until ctx ends.
func (s *LedgerSheet) StartCacheRefresh(ctx context.Context) {
	refresh := func() {
		rctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		_ = s.WarmUpCache(rctx)
	}

	refresh()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}

// TestConnection reads the header cell of the ledger.
func (s *LedgerSheet) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, ledgerSheet+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// GetServiceAccountEmail returns the client_email the ledger must be shared with.
func GetServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

// WarmUpCache populates the row index cache by reading the reference column.
func (s *LedgerSheet) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, ledgerSheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return err
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[string]int)
	for i, row := range resp.Values {
		if i == 0 || len(row) == 0 {
			continue
		}
		if ref, ok := row[0].(string); ok && ref != "" {
			s.rowCache[ref] = i + 1
		}
	}
	return nil
}

// UpsertPayment updates the row of entry's reference or appends a new one.
func (s *LedgerSheet) UpsertPayment(ctx context.Context, entry *models.LedgerEntry) error {
	if entry == nil {
		return errors.New("ledger entry is nil")
	}

	rowIdx, err := s.FindPaymentRow(ctx, entry.Reference)
	if err != nil {
		if errors.Is(err, errRowNotFound) {
			return s.AppendPayment(ctx, entry)
		}
		return err
	}

	rangeData := fmt.Sprintf("%s!A%d:%s%d", ledgerSheet, rowIdx, lastColumn, rowIdx)
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, &sheets.ValueRange{
		Values: [][]interface{}{ledgerRowValues(entry)},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

func (s *LedgerSheet) AppendPayment(ctx context.Context, entry *models.LedgerEntry) error {
	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, ledgerSheet+"!A:A", &sheets.ValueRange{
		Values: [][]interface{}{ledgerRowValues(entry)},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return err
	}

	if resp.Updates != nil {
		if row := rowFromRange(resp.Updates.UpdatedRange); row > 0 {
			s.setCachedRow(entry.Reference, row)
		}
	}
	return nil
}

// FindPaymentRow locates the 1-based row of reference in column A.
func (s *LedgerSheet) FindPaymentRow(ctx context.Context, reference string) (int, error) {
	if reference == "" {
		return 0, errors.New("reference is required")
	}
	if row, ok := s.getCachedRow(reference); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, ledgerSheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if v, ok := row[0].(string); ok && v == reference {
			s.setCachedRow(reference, i+1)
			return i + 1, nil
		}
	}
	return 0, errRowNotFound
}

// ReplaceLedger rewrites the whole sheet from entries, header included.
func (s *LedgerSheet) ReplaceLedger(ctx context.Context, entries []*models.LedgerEntry) error {
	_, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, ledgerSheet+"!A:"+lastColumn, &sheets.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear ledger: %w", err)
	}

	values := [][]interface{}{ledgerHeaders}
	cache := make(map[string]int, len(entries))
	for i, entry := range entries {
		values = append(values, ledgerRowValues(entry))
		cache[entry.Reference] = i + 2
	}

	rangeData := fmt.Sprintf("%s!A1:%s%d", ledgerSheet, lastColumn, len(values))
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return err
	}

	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()
	return nil
}

func (s *LedgerSheet) getCachedRow(ref string) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[ref]
	return row, ok
}

func (s *LedgerSheet) setCachedRow(ref string, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[ref] = row
}

// ClearCache clears the row index cache.
func (s *LedgerSheet) ClearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[string]int)
}

func ledgerRowValues(e *models.LedgerEntry) []interface{} {
	resolved := ""
	if e.ResolvedAt != nil {
		resolved = e.ResolvedAt.Format(timestampForm)
	}
	return []interface{}{
		e.Reference,
		e.BookingID,
		e.HostelID,
		e.RoomID,
		e.Customer.FullName,
		e.Customer.Email,
		e.Customer.Phone,
		e.Method,
		e.Network,
		e.Amount,
		string(e.Status),
		e.PaymentType,
		e.TotalAmount,
		e.AmountPaid,
		string(e.PaymentStatus),
		e.CreatedAt.Format(timestampForm),
		resolved,
	}
}

// rowFromRange extracts the first row number of an A1 range like "Payments!A10:Q10".
func rowFromRange(r string) int {
	m := rowInRange.FindStringSubmatch(r)
	if len(m) != 2 {
		return 0
	}
	row, _ := strconv.Atoi(m[1])
	return row
}
