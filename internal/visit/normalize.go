package visit

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"field-visit-bot/internal/repo"

	"github.com/google/uuid"
)

// ErrInvalidCoordinate reports a non-finite or out-of-range latitude/longitude.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

const mapLinkPrefix = "https://www.google.com/maps?q="

// Normalize converts a location event into a Record. acct may be nil; the chat
// profile is used for any field the account does not provide. receivedAt is
// used only when the event carries no timestamp.
func Normalize(ev LocationEvent, acct *repo.Account, receivedAt time.Time) (Record, error) {
	if err := ValidateCoordinates(ev.Latitude, ev.Longitude); err != nil {
		return Record{}, err
	}

	occurred := ev.OccurredAt
	if occurred.IsZero() {
		occurred = receivedAt
	}

	rec := Record{
		ID:          uuid.NewString(),
		OccurredAt:  occurred.UTC(),
		ChatUserID:  ev.ChatUserID,
		DisplayName: chooseName(ev, acct),
		Latitude:    ev.Latitude,
		Longitude:   ev.Longitude,
		MapLink:     MapLink(ev.Latitude, ev.Longitude),
	}
	if acct != nil {
		rec.AccountID = acct.ID
	}
	if phone := choosePhone(ev, acct); phone != "" {
		rec.Phone = &phone
	}
	return rec, nil
}

// choosePhone prefers the account phone; without one the chat username fills
// the contact column.
func choosePhone(ev LocationEvent, acct *repo.Account) string {
	if acct != nil && acct.Phone != nil {
		if phone := strings.TrimSpace(*acct.Phone); phone != "" {
			return phone
		}
	}
	return strings.TrimSpace(ev.Username)
}

// ValidateCoordinates checks latitude ∈ [-90, 90] and longitude ∈ [-180, 180].
func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %v", ErrInvalidCoordinate, lat)
	}
	if math.IsNaN(lon) || math.IsInf(lon, 0) || lon < -180 || lon > 180 {
		return fmt.Errorf("%w: longitude %v", ErrInvalidCoordinate, lon)
	}
	return nil
}

// MapLink renders the Google Maps link for a coordinate pair.
func MapLink(lat, lon float64) string {
	return mapLinkPrefix + FormatCoordinate(lat) + "," + FormatCoordinate(lon)
}

// FormatCoordinate renders v in its shortest round-trip decimal form and keeps
// at least one fractional digit, so 41 becomes "41.0".
func FormatCoordinate(v float64) string {
	if v == 0 {
		// folds -0 into 0
		v = 0
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func chooseName(ev LocationEvent, acct *repo.Account) string {
	if acct != nil {
		if name := strings.TrimSpace(acct.DisplayName); name != "" {
			return name
		}
	}
	if name := strings.TrimSpace(ev.DisplayName); name != "" {
		return name
	}
	return strings.TrimSpace(ev.Username)
}
