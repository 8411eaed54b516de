package gateway

import (
	"context"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/avgdown/dcabot/internal/domain"
)

// BinanceGateway implements Gateway on top of the Binance spot API.
type BinanceGateway struct {
	client *binance.Client
}

// NewBinanceClient builds a raw binance client.
func NewBinanceClient(apiKey, apiSecret string) *binance.Client {
	return binance.NewClient(apiKey, apiSecret)
}

// NewBinanceGateway wraps an authenticated binance client.
func NewBinanceGateway(client *binance.Client) *BinanceGateway {
	return &BinanceGateway{client: client}
}

func (g *BinanceGateway) GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	prices, err := g.client.NewListPricesService().Symbol(pair.Symbol()).Do(ctx)
	if err != nil {
		return decimal.Decimal{}, errors.Wrap(err, "failed to get binance price")
	}
	if len(prices) == 0 {
		return decimal.Decimal{}, errors.Errorf("binance API returned empty prices for %s", pair.String())
	}

	return decimal.NewFromString(prices[0].Price)
}

func (g *BinanceGateway) GetBalance(ctx context.Context, currency string) (decimal.Decimal, error) {
	account, err := g.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to get binance account balance")
	}

	for _, balance := range account.Balances {
		if balance.Asset == currency {
			free, err := decimal.NewFromString(balance.Free)
			if err != nil {
				return decimal.Zero, errors.Wrap(err, "failed to parse balance")
			}
			return free, nil
		}
	}

	return decimal.Zero, nil
}

func (g *BinanceGateway) Limits(ctx context.Context, pair domain.Pair) (domain.ExchangeLimits, error) {
	info, err := g.client.NewExchangeInfoService().Symbol(pair.Symbol()).Do(ctx)
	if err != nil {
		return domain.ExchangeLimits{}, errors.Wrap(err, "failed to get binance exchange info")
	}

	for _, symbol := range info.Symbols {
		if symbol.Symbol != pair.Symbol() {
			continue
		}

		limits := domain.ExchangeLimits{}
		if lot := symbol.LotSizeFilter(); lot != nil {
			minQty, err := decimal.NewFromString(lot.MinQuantity)
			if err != nil {
				return domain.ExchangeLimits{}, errors.Wrap(err, "failed to parse lot size filter")
			}
			limits.MinAmount = minQty
		}
		if notional := symbol.NotionalFilter(); notional != nil {
			minNotional, err := decimal.NewFromString(notional.MinNotional)
			if err != nil {
				return domain.ExchangeLimits{}, errors.Wrap(err, "failed to parse min notional filter")
			}
			limits.MinNotional = minNotional
		}
		return limits, nil
	}

	return domain.ExchangeLimits{}, errors.Errorf("binance exchange info has no symbol %s", pair.Symbol())
}

func (g *BinanceGateway) SubmitOrder(ctx context.Context, order domain.OrderProposal, clientOrderID string) error {
	amount := order.Amount.RoundFloor(4)

	svc := g.client.NewCreateOrderService().
		Symbol(order.Pair.Symbol()).
		Quantity(amount.String()).
		NewClientOrderID(clientOrderID)

	if order.Side == domain.SideBuy {
		svc = svc.Side(binance.SideTypeBuy)
	} else {
		svc = svc.Side(binance.SideTypeSell)
	}

	switch {
	case order.Type == domain.OrderTypeLimit && order.IsMaker:
		// post-only resting order
		svc = svc.Type(binance.OrderTypeLimitMaker).Price(order.Price.String())
	case order.Type == domain.OrderTypeLimit:
		svc = svc.Type(binance.OrderTypeLimit).
			TimeInForce(binance.TimeInForceTypeGTC).
			Price(order.Price.String())
	default:
		svc = svc.Type(binance.OrderTypeMarket)
	}

	_, err := svc.Do(ctx)
	return errors.Wrapf(err, "failed to create binance %s order", order.Side)
}

func (g *BinanceGateway) OrderExecuted(ctx context.Context, pair domain.Pair, clientOrderID string) (bool, decimal.Decimal, decimal.Decimal, error) {
	order, err := g.client.NewGetOrderService().
		Symbol(pair.Symbol()).
		OrigClientOrderID(clientOrderID).
		Do(ctx)
	if err != nil {
		if apiErr, ok := err.(*common.APIError); ok && apiErr.Code == -2013 {
			// order does not exist
			return false, decimal.Zero, decimal.Zero, nil
		}
		return false, decimal.Zero, decimal.Zero, errors.Wrap(err, "failed to query binance order status")
	}

	executedQty, parseErr := decimal.NewFromString(order.ExecutedQuantity)
	if parseErr != nil {
		return false, decimal.Zero, decimal.Zero, errors.Wrap(parseErr, "failed to parse executed quantity")
	}

	avgPrice := decimal.Zero
	if cumQuote, err := decimal.NewFromString(order.CummulativeQuoteQuantity); err == nil && executedQty.GreaterThan(decimal.Zero) {
		avgPrice = cumQuote.Div(executedQty)
	}

	switch order.Status {
	case binance.OrderStatusTypeFilled:
		return true, executedQty, avgPrice, nil
	case binance.OrderStatusTypePartiallyFilled:
		// partial fill still active
		return false, executedQty, avgPrice, nil
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypeRejected, binance.OrderStatusTypeExpired:
		if executedQty.GreaterThan(decimal.Zero) {
			return true, executedQty, avgPrice, nil
		}
		return false, decimal.Zero, decimal.Zero, nil
	default:
		return false, executedQty, avgPrice, nil
	}
}
