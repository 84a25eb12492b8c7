package escrow

import (
	"fmt"
	"math"

	"github.com/ruteri/sui-escrow-gateway/interfaces"
)

// SubscriptionTier describes a plan. Price is in MIST.
type SubscriptionTier struct {
	ID                 uint8  `json:"id"`
	Name               string `json:"name"`
	Price              uint64 `json:"price"`
	MonthlyVolume      uint64 `json:"monthlyVolume"`
	ProductsPerMonth   uint64 `json:"productsPerMonth"`
	TransactionsPerDay uint64 `json:"transactionsPerDay"`
}

const (
	TierStarter      uint8 = 0
	TierProfessional uint8 = 1
	TierEnterprise   uint8 = 2
)

const unlimited = math.MaxUint64

// DefaultTiers mirrors the published plans, priced in SUI.
var DefaultTiers = []SubscriptionTier{
	{ID: TierStarter, Name: "Starter", Price: 0, MonthlyVolume: 2_000, ProductsPerMonth: 0, TransactionsPerDay: 10},
	{ID: TierProfessional, Name: "Professional", Price: 500 * MistPerSui, MonthlyVolume: 200_000, ProductsPerMonth: 300, TransactionsPerDay: 1_000},
	{ID: TierEnterprise, Name: "Enterprise", Price: 2_000 * MistPerSui, MonthlyVolume: unlimited, ProductsPerMonth: unlimited, TransactionsPerDay: unlimited},
}

// LookupTier finds a tier by id.
func LookupTier(tiers []SubscriptionTier, id uint8) (SubscriptionTier, error) {
	for _, t := range tiers {
		if t.ID == id {
			return t, nil
		}
	}
	return SubscriptionTier{}, fmt.Errorf("%w: unknown subscription tier %d", interfaces.ErrInvalidArgument, id)
}

// Currency describes a supported settlement currency.
type Currency struct {
	Symbol     string `json:"symbol"`
	Name       string `json:"name"`
	Decimals   uint8  `json:"decimals"`
	Stablecoin bool   `json:"stablecoin,omitempty"`
	Wrapped    bool   `json:"wrapped,omitempty"`
}

var Currencies = []Currency{
	{Symbol: "SUI", Name: "Sui", Decimals: 9},
	{Symbol: "cNGN", Name: "Nigerian Naira Coin", Decimals: 6, Stablecoin: true},
	{Symbol: "BTC", Name: "Bitcoin", Decimals: 8, Wrapped: true},
	{Symbol: "ETH", Name: "Ethereum", Decimals: 18, Wrapped: true},
	{Symbol: "SOL", Name: "Solana", Decimals: 9, Wrapped: true},
	{Symbol: "USDC", Name: "USD Coin", Decimals: 6, Stablecoin: true},
	{Symbol: "USDT", Name: "Tether", Decimals: 6, Stablecoin: true},
}

// LookupCurrency finds a currency by symbol.
func LookupCurrency(symbol string) (Currency, bool) {
	for _, c := range Currencies {
		if c.Symbol == symbol {
			return c, true
		}
	}
	return Currency{}, false
}

// ProductCategories are the categories offered when registering products.
var ProductCategories = []string{
	"Agriculture",
	"Pharmaceutical",
	"Luxury Goods",
	"Electronics",
	"Fashion & Apparel",
	"Food & Beverage",
	"Automotive",
	"Industrial Equipment",
	"Art & Collectibles",
	"Other",
}

// EscrowFeeBps is the platform escrow fee in basis points.
const EscrowFeeBps = 100
