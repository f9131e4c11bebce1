package visit

import (
	"errors"
	"math"
	"testing"
	"time"

	"field-visit-bot/internal/repo"
)

func strPtr(s string) *string { return &s }

func TestMapLinkMatchesExpectedFormat(t *testing.T) {
	if got := MapLink(41.0, 29.0); got != "https://www.google.com/maps?q=41.0,29.0" {
		t.Fatalf("MapLink(41, 29) = %q", got)
	}
	if got := MapLink(40.99123, -73.5); got != "https://www.google.com/maps?q=40.99123,-73.5" {
		t.Fatalf("MapLink(40.99123, -73.5) = %q", got)
	}
	if got := MapLink(math.Copysign(0, -1), 0); got != "https://www.google.com/maps?q=0.0,0.0" {
		t.Fatalf("MapLink(-0, 0) = %q", got)
	}
}

func TestMapLinkIsDeterministic(t *testing.T) {
	coords := [][2]float64{{-90, -180}, {90, 180}, {0, 0}, {41.0082, 28.9784}, {-33.8688, 151.2093}, {12.5, -0.000001}}
	for _, c := range coords {
		first := MapLink(c[0], c[1])
		for i := 0; i < 5; i++ {
			if got := MapLink(c[0], c[1]); got != first {
				t.Fatalf("MapLink(%v, %v) not stable: %q vs %q", c[0], c[1], got, first)
			}
		}
	}
}

func TestNormalizeAcceptsBoundaryCoordinates(t *testing.T) {
	for _, c := range [][2]float64{{-90, -180}, {90, 180}, {0, 0}, {-89.999, 179.999}} {
		rec, err := Normalize(LocationEvent{ChatUserID: 1, DisplayName: "x", Latitude: c[0], Longitude: c[1]}, nil, time.Now())
		if err != nil {
			t.Fatalf("Normalize(%v, %v): %v", c[0], c[1], err)
		}
		if rec.MapLink != MapLink(c[0], c[1]) {
			t.Errorf("unexpected map link %q", rec.MapLink)
		}
	}
}

func TestNormalizeRejectsInvalidCoordinates(t *testing.T) {
	cases := [][2]float64{
		{90.0001, 0},
		{-90.5, 0},
		{0, 180.01},
		{0, -181},
		{math.NaN(), 0},
		{0, math.NaN()},
		{math.Inf(1), 0},
		{0, math.Inf(-1)},
	}
	for _, c := range cases {
		_, err := Normalize(LocationEvent{ChatUserID: 1, Latitude: c[0], Longitude: c[1]}, nil, time.Now())
		if !errors.Is(err, ErrInvalidCoordinate) {
			t.Errorf("Normalize(%v, %v): expected ErrInvalidCoordinate, got %v", c[0], c[1], err)
		}
	}
}

func TestNormalizeUsesAccountProfile(t *testing.T) {
	occurred := time.Date(2026, 5, 4, 10, 15, 0, 0, time.FixedZone("TRT", 3*3600))
	acct := &repo.Account{ID: 7, DisplayName: "Ayşe Yılmaz", Phone: strPtr(" +905551112233 "), Role: repo.RoleSalesRep}

	rec, err := Normalize(LocationEvent{
		ChatUserID:  111,
		DisplayName: "ayse_tg",
		Latitude:    41.0,
		Longitude:   29.0,
		OccurredAt:  occurred,
	}, acct, time.Now())
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rec.AccountID != 7 || rec.ChatUserID != 111 {
		t.Errorf("unexpected ids: account=%d chat=%d", rec.AccountID, rec.ChatUserID)
	}
	if rec.DisplayName != "Ayşe Yılmaz" {
		t.Errorf("display name = %q", rec.DisplayName)
	}
	if rec.Phone == nil || *rec.Phone != "+905551112233" {
		t.Errorf("phone = %v", rec.Phone)
	}
	if !rec.OccurredAt.Equal(occurred) {
		t.Errorf("occurred_at = %v, want %v", rec.OccurredAt, occurred)
	}
	if rec.CustomerTag != nil {
		t.Error("expected empty customer tag")
	}
	if rec.ID == "" {
		t.Error("expected record id")
	}
}

func TestNormalizeFallsBackToChatProfile(t *testing.T) {
	received := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	acct := &repo.Account{ID: 9, DisplayName: "  ", Phone: strPtr("")}

	rec, err := Normalize(LocationEvent{ChatUserID: 5, DisplayName: "Saha Ekibi", Latitude: 1, Longitude: 2}, acct, received)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rec.DisplayName != "Saha Ekibi" {
		t.Errorf("display name = %q", rec.DisplayName)
	}
	if rec.Phone != nil {
		t.Errorf("expected nil phone, got %q", *rec.Phone)
	}
	if !rec.OccurredAt.Equal(received) {
		t.Errorf("expected receipt time fallback, got %v", rec.OccurredAt)
	}

	rec, err = Normalize(LocationEvent{ChatUserID: 5, Username: "saha42", Latitude: 1, Longitude: 2}, nil, received)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rec.DisplayName != "saha42" {
		t.Errorf("expected username fallback, got %q", rec.DisplayName)
	}
	if rec.Phone == nil || *rec.Phone != "saha42" {
		t.Errorf("expected username as phone, got %v", rec.Phone)
	}

	rec, err = Normalize(LocationEvent{DisplayName: "Ali Veli", Username: "aliveli", Latitude: 41, Longitude: 29}, acct, received)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rec.DisplayName != "Ali Veli" || rec.Phone == nil || *rec.Phone != "aliveli" {
		t.Errorf("expected blank account phone to fall back to username, got name=%q phone=%v", rec.DisplayName, rec.Phone)
	}

	acct.Phone = strPtr(" +905551112233 ")
	rec, err = Normalize(LocationEvent{Username: "aliveli", Latitude: 41, Longitude: 29}, acct, received)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rec.Phone == nil || *rec.Phone != "+905551112233" {
		t.Errorf("expected account phone to win, got %v", rec.Phone)
	}
}
