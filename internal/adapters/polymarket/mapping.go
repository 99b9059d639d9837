package polymarket

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/alejandrodnm/polysim/internal/domain"
)

var errNoPrices = errors.New("market without outcome prices")

// mapGammaMarket convierte un gammaMarket DTO a un snapshot capturado en capturedAt.
func mapGammaMarket(gm gammaMarket, capturedAt time.Time) (domain.MarketSnapshot, error) {
	id := gm.ConditionID
	if id == "" {
		id = gm.ID
	}

	prices, err := parseOutcomePrices(gm.OutcomePrices)
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("market %s: %w", id, err)
	}

	s := domain.MarketSnapshot{
		MarketID:      id,
		Question:      gm.Question,
		OutcomePrices: prices,
		Liquidity:     numberOrZero(gm.Liquidity),
		Volume24h:     numberOrZero(gm.Volume24h),
		Timestamp:     capturedAt,
	}

	end := gm.EndDate
	if end == "" {
		end = gm.EndDateISO
	}
	s.EndDate = parseEndDate(end)

	// Mercados vencidos que siguen activos: el EndDate no sirve.
	if !s.EndDate.IsZero() && s.EndDate.Before(capturedAt) {
		s.EndDate = time.Time{}
	}

	if err := s.Validate(); err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("market %s: %w", id, err)
	}
	return s, nil
}

// parseOutcomePrices decodifica `"[\"0.35\", \"0.65\"]"`. Gamma suele mandar
// strings pero a veces números.
func parseOutcomePrices(raw string) ([]float64, error) {
	if raw == "" {
		return nil, errNoPrices
	}
	var items []json.Number
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		var strs []string
		if err2 := json.Unmarshal([]byte(raw), &strs); err2 != nil {
			return nil, fmt.Errorf("outcomePrices %q: %w", raw, err)
		}
		items = make([]json.Number, len(strs))
		for i, s := range strs {
			items[i] = json.Number(s)
		}
	}
	if len(items) == 0 {
		return nil, errNoPrices
	}

	prices := make([]float64, len(items))
	for i, it := range items {
		p, err := strconv.ParseFloat(string(it), 64)
		if err != nil {
			return nil, fmt.Errorf("outcome %d price %q: %w", i, it, err)
		}
		prices[i] = p
	}
	return prices, nil
}

func numberOrZero(n json.Number) float64 {
	if n == "" {
		return 0
	}
	v, err := n.Float64()
	if err != nil || !domain.IsFinite(v) {
		return 0
	}
	return v
}

// parseEndDate prueba los formatos que usa Polymarket. Vacío si ninguno encaja.
func parseEndDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05.000Z",
		"2006-01-02T15:04:05Z",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
