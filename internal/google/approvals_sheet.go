package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"druktour/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const timeLayout = "2006-01-02 15:04:05"

var approvalHeaders = []interface{}{
	"Request ID", "Booking ID", "Summary", "Submitted By", "Submitted At", "Status", "Reviewer", "Decided At",
}

var ErrRowNotFound = errors.New("approval row not found")

// ApprovalsSheet mirrors approval requests into one sheet of the review
// spreadsheet, one row per request keyed by column A.
type ApprovalsSheet struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	rowCache      map[string]int
	cacheMu       sync.RWMutex
	now           func() time.Time
}

func NewApprovalsSheet(ctx context.Context, credentialsFile, spreadsheetID, sheetName string) (*ApprovalsSheet, error) {
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

	return newApprovalsSheet(srv, spreadsheetID, sheetName), nil
}

func newApprovalsSheet(srv *sheets.Service, spreadsheetID, sheetName string) *ApprovalsSheet {
	if sheetName == "" {
		sheetName = "Approvals"
	}
	return &ApprovalsSheet{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		rowCache:      make(map[string]int),
		now:           time.Now,
	}
}

// ServiceAccountEmail returns the client_email of a service account key file,
// which is the address the spreadsheet has to be shared with.
func ServiceAccountEmail(credentialsFile string) (string, error) {
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

func (s *ApprovalsSheet) rng(format string, args ...interface{}) string {
	return s.sheetName + "!" + fmt.Sprintf(format, args...)
}

// TestConnection reads the header cell.
func (s *ApprovalsSheet) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A1")).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// EnsureHeader writes the column titles into row 1.
func (s *ApprovalsSheet) EnsureHeader(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.rng("A1:H1"), &sheets.ValueRange{
		Values: [][]interface{}{approvalHeaders},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// WarmUpCache rebuilds the row index from the request id column.
func (s *ApprovalsSheet) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A:A")).Context(ctx).Do()
	if err != nil {
		return err
	}

	cache := make(map[string]int, len(resp.Values))
	for i, row := range resp.Values {
		if id := cellString(row); id != "" && i > 0 {
			cache[id] = i + 1
		}
	}

	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()
	return nil
}

// RunCacheRefresh refreshes the row index every interval until ctx is done.
func (s *ApprovalsSheet) RunCacheRefresh(ctx context.Context, interval time.Duration, onError func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refreshCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			if err := s.WarmUpCache(refreshCtx); err != nil && onError != nil {
				onError(err)
			}
			cancel()
		}
	}
}

// UpsertApproval rewrites the request's row, appending one if the request is new.
func (s *ApprovalsSheet) UpsertApproval(ctx context.Context, req *models.ApprovalRequest) error {
	if req == nil || req.ID == "" {
		return errors.New("approval request id is required")
	}

	rowIdx, err := s.FindApprovalRow(ctx, req.ID)
	if err != nil {
		if errors.Is(err, ErrRowNotFound) {
			return s.appendApproval(ctx, req)
		}
		return err
	}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.rng("A%d:H%d", rowIdx, rowIdx), &sheets.ValueRange{
		Values: [][]interface{}{approvalRowValues(req)},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

func (s *ApprovalsSheet) appendApproval(ctx context.Context, req *models.ApprovalRequest) error {
	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.rng("A:A"), &sheets.ValueRange{
		Values: [][]interface{}{approvalRowValues(req)},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return err
	}

	if resp.Updates != nil {
		if row, ok := parseRowNumber(resp.Updates.UpdatedRange); ok {
			s.setCachedRow(req.ID, row)
		}
	}
	return nil
}

// UpdateApprovalStatus fills the status, reviewer and decision time columns.
func (s *ApprovalsSheet) UpdateApprovalStatus(ctx context.Context, requestID string, status models.ApprovalStatus, reviewer string) error {
	rowIdx, err := s.FindApprovalRow(ctx, requestID)
	if err != nil {
		return err
	}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.rng("F%d:H%d", rowIdx, rowIdx), &sheets.ValueRange{
		Values: [][]interface{}{{string(status), reviewer, s.now().Format(timeLayout)}},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

// DeleteApprovalRow clears the request's row without shifting the ones below.
func (s *ApprovalsSheet) DeleteApprovalRow(ctx context.Context, requestID string) error {
	rowIdx, err := s.FindApprovalRow(ctx, requestID)
	if err != nil {
		return err
	}

	_, err = s.service.Spreadsheets.Values.Clear(s.spreadsheetID, s.rng("A%d:H%d", rowIdx, rowIdx), &sheets.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err == nil {
		s.deleteCachedRow(requestID)
	}
	return err
}

// FindApprovalRow returns the 1-based row of requestID, scanning column A on a cache miss.
func (s *ApprovalsSheet) FindApprovalRow(ctx context.Context, requestID string) (int, error) {
	if requestID == "" {
		return 0, errors.New("request id is required")
	}
	if row, ok := s.getCachedRow(requestID); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A:A")).Context(ctx).Do()
	if err != nil {
		return 0, err
	}

	for i, row := range resp.Values {
		if cellString(row) == requestID {
			rowIdx := i + 1
			s.setCachedRow(requestID, rowIdx)
			return rowIdx, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrRowNotFound, requestID)
}

func (s *ApprovalsSheet) getCachedRow(id string) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *ApprovalsSheet) setCachedRow(id string, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

func (s *ApprovalsSheet) deleteCachedRow(id string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	delete(s.rowCache, id)
}

// ClearCache drops the row index.
func (s *ApprovalsSheet) ClearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[string]int)
}

func approvalRowValues(req *models.ApprovalRequest) []interface{} {
	reviewer := ""
	if req.ReviewedBy != nil {
		reviewer = *req.ReviewedBy
	}
	decidedAt := ""
	if req.DecidedAt != nil {
		decidedAt = req.DecidedAt.Format(timeLayout)
	}
	return []interface{}{
		req.ID,
		req.BookingID,
		req.Summary,
		req.SubmittedBy,
		req.SubmittedAt.Format(timeLayout),
		string(req.Status),
		reviewer,
		decidedAt,
	}
}

func cellString(row []interface{}) string {
	if len(row) == 0 {
		return ""
	}
	switch v := row[0].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// parseRowNumber extracts the first row number from an A1 range like "Approvals!A10:H10".
func parseRowNumber(a1 string) (int, bool) {
	if i := strings.LastIndex(a1, "!"); i >= 0 {
		a1 = a1[i+1:]
	}
	if i := strings.Index(a1, ":"); i >= 0 {
		a1 = a1[:i]
	}
	digits := strings.TrimLeft(a1, "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	row, err := strconv.Atoi(digits)
	if err != nil || row <= 0 {
		return 0, false
	}
	return row, true
}
