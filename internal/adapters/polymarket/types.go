package polymarket

import "encoding/json"

// DTOs raw de la API Gamma. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.

// gammaMarketsResponse es una página de GET /markets.
type gammaMarketsResponse []gammaMarket

// gammaMarket es un mercado tal como lo devuelve Gamma.
// Gamma devuelve algunos campos numéricos como strings JSON, usamos json.Number.
// outcomePrices y outcomes vienen como arrays JSON serializados dentro de un string.
type gammaMarket struct {
	ID            string      `json:"id"`
	ConditionID   string      `json:"conditionId"`
	Question      string      `json:"question"`
	Slug          string      `json:"slug"`
	Outcomes      string      `json:"outcomes"`
	OutcomePrices string      `json:"outcomePrices"`
	EndDate       string      `json:"endDate"`
	EndDateISO    string      `json:"endDateIso"`
	Volume24h     json.Number `json:"volume24hr"`
	Liquidity     json.Number `json:"liquidity"`
	Active        bool        `json:"active"`
	Closed        bool        `json:"closed"`
}
