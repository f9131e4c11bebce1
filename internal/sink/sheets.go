package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"field-visit-bot/internal/visit"

	"cloud.google.com/go/auth"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// NameSheets identifies the spreadsheet sink in logs, metrics and acks.
const NameSheets = "sheets"

const (
	defaultSheetRange    = "A:H"
	defaultSheetsTimeout = 20 * time.Second
	sheetTimeLayout      = "02.01.2006 15:04:05"
	spreadsheetMimeType  = "application/vnd.google-apps.spreadsheet"
)

// SheetsConfig holds Google Sheets sink configuration.
type SheetsConfig struct {
	SpreadsheetID   string
	SpreadsheetName string
	Range           string
	CredentialsJSON []byte
	Location        *time.Location
	Timeout         time.Duration

	// Overrides for tests; production leaves them empty.
	Endpoint      string
	DriveEndpoint string
	HTTPClient    *http.Client
}

// SheetsSink appends visit rows to a Google spreadsheet. Appends are not
// transactional: a request that fails after being sent may still have
// written the row.
type SheetsSink struct {
	logger        *slog.Logger
	values        *sheets.SpreadsheetsValuesService
	spreadsheetID string
	appendRange   string
	location      *time.Location
	timeout       time.Duration
}

// NewSheets builds the sink. When only a spreadsheet name is configured, the
// id is looked up once through the Drive API.
func NewSheets(ctx context.Context, cfg SheetsConfig, logger *slog.Logger) (*SheetsSink, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultSheetsTimeout
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	rng := strings.TrimSpace(cfg.Range)
	if rng == "" {
		rng = defaultSheetRange
	}

	spreadsheetID := strings.TrimSpace(cfg.SpreadsheetID)
	name := strings.TrimSpace(cfg.SpreadsheetName)
	if spreadsheetID == "" && name == "" {
		return nil, errors.New("spreadsheet id or name is required")
	}

	scopes := []string{sheets.SpreadsheetsScope}
	if spreadsheetID == "" {
		scopes = append(scopes, drive.DriveMetadataReadonlyScope)
	}
	var common []option.ClientOption
	if cfg.HTTPClient != nil {
		common = append(common, option.WithHTTPClient(cfg.HTTPClient))
	} else {
		common = append(common, option.WithCredentialsJSON(cfg.CredentialsJSON), option.WithScopes(scopes...))
	}

	sheetsOpts := common
	if cfg.Endpoint != "" {
		sheetsOpts = append(sheetsOpts[:len(sheetsOpts):len(sheetsOpts)], option.WithEndpoint(cfg.Endpoint))
	}
	// The service keeps its transport beyond ctx, so it is built on a background context.
	svc, err := sheets.NewService(context.Background(), sheetsOpts...)
	if err != nil {
		return nil, fmt.Errorf("init sheets service: %w", err)
	}

	s := &SheetsSink{
		logger:        logger.With("component", "sheets"),
		values:        svc.Spreadsheets.Values,
		spreadsheetID: spreadsheetID,
		appendRange:   rng,
		location:      loc,
		timeout:       timeout,
	}

	if s.spreadsheetID == "" {
		driveOpts := common
		if cfg.DriveEndpoint != "" {
			driveOpts = append(driveOpts[:len(driveOpts):len(driveOpts)], option.WithEndpoint(cfg.DriveEndpoint))
		}
		files, err := drive.NewService(context.Background(), driveOpts...)
		if err != nil {
			return nil, fmt.Errorf("init drive service: %w", err)
		}
		id, err := s.lookupSpreadsheetID(ctx, files.Files, name)
		if err != nil {
			return nil, err
		}
		s.spreadsheetID = id
	}

	s.logger.Info("sheets sink ready", "spreadsheet_id", s.spreadsheetID, "range", s.appendRange)
	return s, nil
}

func (s *SheetsSink) Name() string { return NameSheets }

// Row renders a record in sheet column order:
// occurred_at, display_name, chat_user_id, phone, latitude, longitude, map_link, customer_tag.
func (s *SheetsSink) Row(rec visit.Record) []any {
	phone := ""
	if rec.Phone != nil {
		phone = *rec.Phone
	}
	tag := ""
	if rec.CustomerTag != nil {
		tag = *rec.CustomerTag
	}
	return []any{
		rec.OccurredAt.In(s.location).Format(sheetTimeLayout),
		rec.DisplayName,
		strconv.FormatInt(rec.ChatUserID, 10),
		phone,
		visit.FormatCoordinate(rec.Latitude),
		visit.FormatCoordinate(rec.Longitude),
		rec.MapLink,
		tag,
	}
}

// Append writes one row with values.append.
func (s *SheetsSink) Append(ctx context.Context, rec visit.Record) (Ack, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.values.Append(s.spreadsheetID, s.appendRange, &sheets.ValueRange{
		MajorDimension: "ROWS",
		Values:         [][]any{s.Row(rec)},
	}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return Ack{}, classifyGoogleError(err)
	}

	ack := Ack{
		Sink:     NameSheets,
		RecordID: rec.ID,
		StoredAt: time.Now().UTC(),
	}
	if resp.Updates != nil {
		ack.Location = resp.Updates.UpdatedRange
	}
	if resp.Updates == nil || resp.Updates.UpdatedRows == 0 {
		s.logger.Warn("sheets append reported no updated rows", "record_id", rec.ID)
	}
	return ack, nil
}

// Count returns the number of data rows, excluding the header row.
func (s *SheetsSink) Count(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.values.Get(s.spreadsheetID, firstColumn(s.appendRange)).
		MajorDimension("COLUMNS").
		Context(ctx).
		Do()
	if err != nil {
		return 0, classifyGoogleError(err)
	}
	if len(resp.Values) == 0 || len(resp.Values[0]) <= 1 {
		return 0, nil
	}
	return int64(len(resp.Values[0]) - 1), nil
}

func (s *SheetsSink) lookupSpreadsheetID(ctx context.Context, files *drive.FilesService, name string) (string, error) {
	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false",
		strings.ReplaceAll(name, "'", "\\'"), spreadsheetMimeType)

	list, err := files.List().
		Q(q).
		Fields("files(id,name)").
		PageSize(10).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("lookup spreadsheet %q: %w", name, classifyGoogleError(err))
	}
	if len(list.Files) == 0 {
		return "", fmt.Errorf("spreadsheet %q not found or not shared with the service account", name)
	}
	if len(list.Files) > 1 {
		s.logger.Warn("several spreadsheets share the configured name, using the first", "name", name, "count", len(list.Files))
	}
	return list.Files[0].Id, nil
}

// classifyGoogleError maps a client library error onto a PersistError.
// Token failures and 401/403 are auth; other API errors are rejections;
// everything else is treated as a network failure.
func classifyGoogleError(err error) error {
	kind := KindNetwork

	var apiErr *googleapi.Error
	var authErr *auth.Error
	var retrieveErr *oauth2.RetrieveError
	switch {
	case errors.As(err, &apiErr):
		kind = KindRejected
		if apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden {
			kind = KindAuth
		}
	case errors.As(err, &authErr), errors.As(err, &retrieveErr):
		kind = KindAuth
	}
	return &PersistError{Sink: NameSheets, Kind: kind, Err: err}
}

// firstColumn turns "Visits!A:H" into "Visits!A:A" and "A:H" into "A:A".
func firstColumn(rng string) string {
	sheet := ""
	cells := rng
	if idx := strings.LastIndex(rng, "!"); idx >= 0 {
		sheet = rng[:idx+1]
		cells = rng[idx+1:]
	}
	col := strings.TrimRight(strings.SplitN(cells, ":", 2)[0], "0123456789")
	if col == "" {
		col = "A"
	}
	return sheet + col + ":" + col
}
