package service

import (
	"fmt"
	"strings"

	"github.com/bahbah94/Orbex/internal/domain"
)

// MarketService serves market metadata for symbol resolution and search. The
// market set is fixed at startup from configuration; the chain does not carry
// descriptive metadata.
type MarketService struct {
	markets []domain.Market
	bySym   map[string]domain.Market
}

// NewMarketService creates a MarketService over a fixed market set.
func NewMarketService(markets []domain.Market) *MarketService {
	bySym := make(map[string]domain.Market, len(markets))
	for _, m := range markets {
		bySym[m.Symbol] = m
	}
	return &MarketService{markets: markets, bySym: bySym}
}

// List returns all configured markets.
func (s *MarketService) List() []domain.Market {
	out := make([]domain.Market, len(s.markets))
	copy(out, s.markets)
	return out
}

// Get resolves a market by its exact symbol.
func (s *MarketService) Get(symbol string) (domain.Market, error) {
	m, ok := s.bySym[symbol]
	if !ok {
		return domain.Market{}, fmt.Errorf("market_service: %q: %w", symbol, domain.ErrUnknownSymbol)
	}
	return m, nil
}

// Search returns markets whose symbol or description contains the query,
// case-insensitively, up to limit results. An empty query matches everything.
func (s *MarketService) Search(query string, limit int) []domain.Market {
	if limit <= 0 {
		limit = len(s.markets)
	}

	q := strings.ToUpper(strings.TrimSpace(query))
	out := make([]domain.Market, 0, limit)
	for _, m := range s.markets {
		if q != "" &&
			!strings.Contains(strings.ToUpper(m.Symbol), q) &&
			!strings.Contains(strings.ToUpper(m.Description), q) {
			continue
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return out
}
