package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/alejandrodnm/polysim/internal/domain"
)

const (
	gammaMarketsPath = "/markets"
	defaultPageSize  = 500
)

// FetchSnapshots implementa ports.MarketProvider. Pagina /markets por offset
// hasta recibir una página incompleta y convierte cada mercado en un snapshot
// con el mismo Timestamp. Los mercados que no se pueden mapear se descartan.
func (c *Client) FetchSnapshots(ctx context.Context) ([]domain.MarketSnapshot, error) {
	capturedAt := c.now().UTC()
	var (
		snaps   []domain.MarketSnapshot
		skipped int
	)

	for page := 0; c.maxPages <= 0 || page < c.maxPages; page++ {
		var resp gammaMarketsResponse
		if err := c.get(ctx, c.marketsURL(page*c.pageSize), &resp); err != nil {
			return nil, fmt.Errorf("gamma.FetchSnapshots: page %d: %w", page, err)
		}

		for _, gm := range resp {
			s, err := mapGammaMarket(gm, capturedAt)
			if err != nil {
				skipped++
				slog.Debug("gamma market skipped", "id", gm.ID, "err", err)
				continue
			}
			snaps = append(snaps, s)
		}

		if len(resp) < c.pageSize {
			break
		}
	}

	slog.Debug("gamma snapshots fetched",
		"snapshots", len(snaps),
		"skipped", skipped,
	)
	return snaps, nil
}

func (c *Client) marketsURL(offset int) string {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(c.pageSize))
	q.Set("offset", strconv.Itoa(offset))
	if c.activeOnly {
		q.Set("active", "true")
		q.Set("closed", "false")
	}
	return c.gammaBase + gammaMarketsPath + "?" + q.Encode()
}
