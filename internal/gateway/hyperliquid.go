package gateway

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	hyperliquid "github.com/sonirico/go-hyperliquid"

	"github.com/avgdown/dcabot/internal/domain"
)

// HyperliquidGateway implements Gateway on top of the Hyperliquid spot API.
type HyperliquidGateway struct {
	ex          *hyperliquid.Exchange
	info        *hyperliquid.Info
	accountAddr string
}

// NewHyperliquidGateway derives the account address from the private key and
// builds the exchange client. Info and SpotMeta are fetched lazily by the SDK.
func NewHyperliquidGateway(privateKeyHex, baseURL string) (*HyperliquidGateway, error) {
	key := privateKeyHex
	if len(key) >= 2 && (key[:2] == "0x" || key[:2] == "0X") {
		key = key[2:]
	}

	privateKey, err := crypto.HexToECDSA(key)
	if err != nil {
		return nil, errors.Wrap(err, "invalid hyperliquid private key")
	}

	pub, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("error casting public key to ECDSA")
	}
	accountAddr := crypto.PubkeyToAddress(*pub).Hex()

	ex := hyperliquid.NewExchange(
		context.Background(),
		privateKey,
		baseURL,
		nil,
		"",
		accountAddr,
		nil,
	)

	return &HyperliquidGateway{ex: ex, info: ex.Info(), accountAddr: accountAddr}, nil
}

// cloidFromID converts a free-form client ID into a valid Hyperliquid cloid
// (0x + 32 hex chars).
func cloidFromID(id string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(id)))
	return "0x" + hex.EncodeToString(sum[:16])
}

func (g *HyperliquidGateway) GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	mids, err := g.info.AllMids(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to get hyperliquid mids")
	}

	// mids are keyed by base coin (e.g. "BTC")
	mid, ok := mids[pair.From]
	if !ok || mid == "" {
		return decimal.Zero, errors.Errorf("hyperliquid API returned empty mid price for %s", pair.From)
	}
	return decimal.NewFromString(mid)
}

func (g *HyperliquidGateway) GetBalance(ctx context.Context, currency string) (decimal.Decimal, error) {
	st, err := g.info.SpotUserState(ctx, g.accountAddr)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to get hyperliquid spot user state")
	}

	for _, b := range st.Balances {
		if strings.EqualFold(b.Coin, currency) {
			balance, err := decimal.NewFromString(b.Total)
			if err != nil {
				return decimal.Zero, errors.Wrap(err, "failed to parse balance")
			}
			return balance, nil
		}
	}

	return decimal.Zero, nil
}

// Limits returns zero limits: the SDK exposes no published spot minimums, and
// a zero bound means no limit for the decision core.
func (g *HyperliquidGateway) Limits(ctx context.Context, pair domain.Pair) (domain.ExchangeLimits, error) {
	return domain.ExchangeLimits{}, nil
}

func (g *HyperliquidGateway) SubmitOrder(ctx context.Context, order domain.OrderProposal, clientOrderID string) error {
	size, _ := order.Amount.Round(8).Float64()
	price, _ := order.Price.Float64()

	tif := hyperliquid.TifGtc
	if order.IsMaker {
		// add-liquidity-only rejects instead of crossing the spread
		tif = hyperliquid.TifAlo
	}

	cloid := cloidFromID(clientOrderID)
	req := hyperliquid.CreateOrderRequest{
		Coin:          order.Pair.From,
		IsBuy:         order.Side == domain.SideBuy,
		Price:         price,
		Size:          size,
		ClientOrderID: &cloid,
		OrderType: hyperliquid.OrderType{
			Limit: &hyperliquid.LimitOrderType{Tif: tif},
		},
	}

	_, err := g.ex.Order(ctx, req, nil)
	return errors.Wrapf(err, "failed to create hyperliquid %s order", order.Side)
}

func (g *HyperliquidGateway) OrderExecuted(ctx context.Context, pair domain.Pair, clientOrderID string) (bool, decimal.Decimal, decimal.Decimal, error) {
	if clientOrderID == "" {
		return false, decimal.Zero, decimal.Zero, nil
	}

	res, err := g.info.QueryOrderByCloid(ctx, g.accountAddr, cloidFromID(clientOrderID))
	if err != nil {
		return false, decimal.Zero, decimal.Zero, errors.Wrap(err, "failed to query hyperliquid order by cloid")
	}

	if res == nil || res.Status != hyperliquid.OrderQueryStatusSuccess {
		return false, decimal.Zero, decimal.Zero, nil
	}

	if res.Order.Status != hyperliquid.OrderStatusValueFilled {
		return false, decimal.Zero, decimal.Zero, nil
	}

	// best effort: the query reports the original size and limit price
	filled := decimal.Zero
	if res.Order.Order.OrigSz != "" {
		if parsed, err := decimal.NewFromString(res.Order.Order.OrigSz); err == nil {
			filled = parsed
		}
	}
	avgPrice := decimal.Zero
	if res.Order.Order.LimitPx != "" {
		if parsed, err := decimal.NewFromString(res.Order.Order.LimitPx); err == nil {
			avgPrice = parsed
		}
	}

	return true, filled, avgPrice, nil
}
