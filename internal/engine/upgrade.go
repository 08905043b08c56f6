package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"jordanella.com/paws-farm-go/internal/account"
	"jordanella.com/paws-farm-go/internal/database"
	"jordanella.com/paws-farm-go/internal/events"
	"jordanella.com/paws-farm-go/internal/game"
	"jordanella.com/paws-farm-go/internal/optimizer"
)

func malformed(op, field string) error {
	return fmt.Errorf("%s: %w: missing %q", op, game.ErrMalformedResponse, field)
}

// Catalog is the flattened upgrade list plus the invite links some upgrades
// require visiting.
type Catalog struct {
	Entries []optimizer.Entry
	Links   map[int64]string
}

// CatalogFrom flattens the category list returned by the cards endpoint.
// A card without id, cost, profit or availability is a contract violation.
func CatalogFrom(categories []game.Payload) (Catalog, error) {
	cat := Catalog{Links: make(map[int64]string)}
	for _, category := range categories {
		cards, ok := category.Objects("cards")
		if !ok {
			return Catalog{}, malformed("cards", "cards")
		}
		for _, card := range cards {
			id, ok := card.Int("id")
			if !ok {
				return Catalog{}, malformed("cards", "id")
			}
			cost, ok := decimalField(card, "upgrade_cost")
			if !ok {
				return Catalog{}, malformed("cards", "upgrade_cost")
			}
			profit, ok := decimalField(card, "farming_upgrade")
			if !ok {
				return Catalog{}, malformed("cards", "farming_upgrade")
			}
			available, ok := card.Bool("is_available")
			if !ok {
				return Catalog{}, malformed("cards", "is_available")
			}
			cat.Entries = append(cat.Entries, optimizer.Entry{
				ID:        id,
				Name:      card.String("name"),
				Category:  category.String("name"),
				Cost:      cost,
				Profit:    profit,
				Available: available,
			})
			if link := inviteLink(card); link != "" {
				cat.Links[id] = link
			}
		}
	}
	return cat, nil
}

// inviteLink finds a link the card asks to be visited, either on the card or
// inside its requirement.
func inviteLink(card game.Payload) string {
	if l := card.String("invite_link"); l != "" {
		return l
	}
	if req, ok := card.Object("requirement"); ok {
		return req.String("invite_link")
	}
	return ""
}

func decimalField(p game.Payload, key string) (decimal.Decimal, bool) {
	switch v := p[key].(type) {
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(v)
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(v), true
	case int64:
		return decimal.NewFromInt(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	default:
		return decimal.Zero, false
	}
}

// upgrade buys upgrades best-ratio first until the optimizer declines, the
// balance runs out or the per-tick cap is hit.
func (e *Engine) upgrade(ctx context.Context, acct *account.Account) {
	me, err := e.api.GetMe(ctx, acct)
	if err != nil {
		e.reportError(acct, "upgrade", err)
		return
	}
	balance, ok := decimalField(me, "balance")
	if !ok {
		return
	}
	acct.UpdateProfile(func(p *account.Profile) { *p = game.ProfileFrom(me, *p) })

	cat, err := e.catalog(ctx, acct)
	if err != nil {
		e.reportError(acct, "upgrade", err)
		return
	}

	log := e.logger.WithContext(map[string]interface{}{"account": acct.ID, "phone": acct.Phone})
	ceiling := e.tunables.RatioCeiling()
	limit := e.settings.Upgrade.MaxPurchasesPerTick
	for bought := 0; limit <= 0 || bought < limit; bought++ {
		if ctx.Err() != nil || acct.Canceled() {
			return
		}

		d := optimizer.Decide(balance, cat.Entries, ceiling)
		if !d.Buy {
			log.DebugWith("no further upgrade", map[string]interface{}{
				"reason":  string(d.Reason),
				"balance": balance.String(),
				"bought":  bought,
			})
			return
		}

		choice := d.Choice
		res, err := e.api.UpgradeCard(ctx, acct, choice.ID, cat.Links[choice.ID])
		if err != nil {
			e.reportError(acct, "upgrade", err)
			return
		}
		if res.Empty() {
			return
		}

		if b, ok := decimalField(res, "balance"); ok {
			balance = b
		} else {
			balance = balance.Sub(choice.Cost)
		}
		acct.UpdateProfile(func(p *account.Profile) {
			*p = game.ProfileFrom(res, *p)
			p.Balance = balance.IntPart()
		})

		e.purchased(acct, choice, balance)

		if categories, ok := res.Objects("cards"); ok {
			cat, err = CatalogFrom(categories)
		} else {
			cat, err = e.catalog(ctx, acct)
		}
		if err != nil {
			e.reportError(acct, "upgrade", err)
			return
		}
	}
	log.WarnWith("purchase cap reached", map[string]interface{}{"cap": limit})
}

func (e *Engine) catalog(ctx context.Context, acct *account.Account) (Catalog, error) {
	categories, err := e.api.ListCards(ctx, acct)
	if err != nil {
		return Catalog{}, err
	}
	return CatalogFrom(categories)
}

func (e *Engine) purchased(acct *account.Account, choice optimizer.Ranked, balance decimal.Decimal) {
	e.logger.InfoWithContext("upgrade purchased", map[string]interface{}{
		"account": acct.ID,
		"card":    choice.ID,
		"name":    choice.Name,
		"cost":    choice.Cost.String(),
		"ratio":   choice.Ratio.String(),
		"balance": balance.String(),
	})
	if err := e.store.RecordUpgrade(database.UpgradeRecord{
		AccountID:    acct.ID,
		CardID:       choice.ID,
		CardName:     choice.Name,
		Cost:         choice.Cost.String(),
		Ratio:        choice.Ratio.String(),
		BalanceAfter: balance.IntPart(),
	}); err != nil {
		e.logger.ErrorWithContext("failed to record upgrade", err, map[string]interface{}{"account": acct.ID})
	}
	e.bus.Publish(events.NewUpgradePurchasedEvent(acct.ID, choice.ID, choice.Name, choice.Cost.String(), choice.Ratio.String()))
}

// RankedCatalog returns the account's available upgrades, best ratio first.
func (e *Engine) RankedCatalog(ctx context.Context, id int64) ([]optimizer.Ranked, error) {
	acct, err := e.Account(id)
	if err != nil {
		return nil, err
	}
	cat, err := e.catalog(ctx, acct)
	if err != nil {
		return nil, err
	}
	return optimizer.Rank(cat.Entries), nil
}
