package gateway

import (
	"context"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/avgdown/dcabot/internal/domain"
)

// BybitGateway implements Gateway on top of the Bybit V5 spot API.
type BybitGateway struct {
	client *bybit.Client
}

// NewBybitClient builds a raw bybit client.
func NewBybitClient(apiKey, apiSecret string) *bybit.Client {
	return bybit.NewClient().WithAuth(apiKey, apiSecret)
}

// NewBybitGateway wraps an authenticated bybit client.
func NewBybitGateway(client *bybit.Client) *BybitGateway {
	return &BybitGateway{client: client}
}

func (g *BybitGateway) GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	symbol := bybit.SymbolV5(pair.Symbol())

	result, err := g.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
		Category: bybit.CategoryV5Spot,
		Symbol:   &symbol,
	})
	if err != nil {
		return decimal.Decimal{}, errors.Wrap(err, "failed to get bybit tickers")
	}

	if len(result.Result.Spot.List) == 0 {
		return decimal.Decimal{}, errors.Errorf("bybit API returned empty prices for %s", pair.String())
	}

	return decimal.NewFromString(result.Result.Spot.List[0].LastPrice)
}

func (g *BybitGateway) GetBalance(ctx context.Context, currency string) (decimal.Decimal, error) {
	result, err := g.client.V5().Account().GetWalletBalance(bybit.AccountTypeV5("UNIFIED"), nil)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to get bybit wallet balance")
	}

	for _, account := range result.Result.List {
		for _, coin := range account.Coin {
			if string(coin.Coin) == currency {
				balance, err := decimal.NewFromString(coin.WalletBalance)
				if err != nil {
					return decimal.Zero, errors.Wrap(err, "failed to parse balance")
				}
				return balance, nil
			}
		}
	}

	return decimal.Zero, nil
}

func (g *BybitGateway) Limits(ctx context.Context, pair domain.Pair) (domain.ExchangeLimits, error) {
	symbol := bybit.SymbolV5(pair.Symbol())

	result, err := g.client.V5().Market().GetInstrumentsInfo(bybit.V5GetInstrumentsInfoParam{
		Category: bybit.CategoryV5Spot,
		Symbol:   &symbol,
	})
	if err != nil {
		return domain.ExchangeLimits{}, errors.Wrap(err, "failed to get bybit instruments info")
	}

	if len(result.Result.Spot.List) == 0 {
		return domain.ExchangeLimits{}, errors.Errorf("bybit API has no instrument %s", pair.Symbol())
	}

	lot := result.Result.Spot.List[0].LotSizeFilter

	minQty, err := decimal.NewFromString(lot.MinOrderQty)
	if err != nil {
		return domain.ExchangeLimits{}, errors.Wrap(err, "failed to parse min order qty")
	}
	minAmt, err := decimal.NewFromString(lot.MinOrderAmt)
	if err != nil {
		return domain.ExchangeLimits{}, errors.Wrap(err, "failed to parse min order amt")
	}

	return domain.ExchangeLimits{MinAmount: minQty, MinNotional: minAmt}, nil
}

func (g *BybitGateway) SubmitOrder(ctx context.Context, order domain.OrderProposal, clientOrderID string) error {
	amount := order.Amount.RoundFloor(4)

	param := bybit.V5CreateOrderParam{
		Category:    bybit.CategoryV5Spot,
		Symbol:      bybit.SymbolV5(order.Pair.Symbol()),
		OrderType:   bybit.OrderTypeMarket,
		Qty:         amount.String(),
		OrderLinkID: &clientOrderID,
	}

	if order.Side == domain.SideBuy {
		param.Side = bybit.SideBuy
	} else {
		param.Side = bybit.SideSell
	}

	if order.Type == domain.OrderTypeLimit {
		price := order.Price.String()
		param.OrderType = bybit.OrderTypeLimit
		param.Price = &price
		if order.IsMaker {
			tif := bybit.TimeInForcePostOnly
			param.TimeInForce = &tif
		}
	}

	_, err := g.client.V5().Order().CreateOrder(param)
	return errors.Wrapf(err, "failed to create bybit %s order", order.Side)
}

func (g *BybitGateway) OrderExecuted(ctx context.Context, pair domain.Pair, clientOrderID string) (bool, decimal.Decimal, decimal.Decimal, error) {
	symbol := bybit.SymbolV5(pair.Symbol())

	result, err := g.client.V5().Order().GetHistoryOrders(bybit.V5GetHistoryOrdersParam{
		Category:    bybit.CategoryV5Spot,
		Symbol:      &symbol,
		OrderLinkID: &clientOrderID,
	})
	if err != nil {
		return false, decimal.Zero, decimal.Zero, errors.Wrap(err, "failed to query bybit order status")
	}

	if len(result.Result.List) == 0 {
		return false, decimal.Zero, decimal.Zero, nil
	}

	order := result.Result.List[0]

	executedQty := decimal.Zero
	if order.CumExecQty != "" {
		executedQty, err = decimal.NewFromString(order.CumExecQty)
		if err != nil {
			return false, decimal.Zero, decimal.Zero, errors.Wrap(err, "failed to parse executed quantity")
		}
	}

	avgPrice := decimal.Zero
	if order.AvgPrice != "" {
		if parsed, err := decimal.NewFromString(order.AvgPrice); err == nil {
			avgPrice = parsed
		}
	}

	switch order.OrderStatus {
	case bybit.OrderStatusFilled:
		return true, executedQty, avgPrice, nil
	case bybit.OrderStatusCancelled, bybit.OrderStatusRejected:
		if executedQty.GreaterThan(decimal.Zero) {
			return true, executedQty, avgPrice, nil
		}
		return false, decimal.Zero, decimal.Zero, nil
	default:
		return false, executedQty, avgPrice, nil
	}
}
