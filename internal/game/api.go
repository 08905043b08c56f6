package game

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"jordanella.com/paws-farm-go/internal/account"
	"jordanella.com/paws-farm-go/internal/logging"
)

// Reauthorizer restores an account's credential after a 401.
type Reauthorizer interface {
	// Reauthorize reports whether the account holds a valid credential
	// afterwards, exchanging the login parameter if it does not.
	Reauthorize(ctx context.Context, acct *account.Account) bool
}

// DefaultMaxAttempts allows one retry after a successful reauthorization.
const DefaultMaxAttempts = 2

// API exposes one method per backend operation. Ordinary failures come back
// as an empty Payload; only malformed success bodies return an error.
type API struct {
	client      *Client
	auth        Reauthorizer
	maxAttempts int
	logger      *logging.Logger
}

// NewAPI creates the operation layer over client.
func NewAPI(client *Client, auth Reauthorizer) *API {
	return &API{
		client:      client,
		auth:        auth,
		maxAttempts: DefaultMaxAttempts,
		logger:      logging.NewLogger("GameAPI"),
	}
}

// SetMaxAttempts bounds the number of sends per operation, including the
// retry after a 401.
func (a *API) SetMaxAttempts(n int) *API {
	if n < 1 {
		n = 1
	}
	a.maxAttempts = n
	return a
}

// Client returns the underlying transport.
func (a *API) Client() *Client { return a.client }

// send issues ep and handles 401 by reauthorizing and retrying within
// maxAttempts. It returns the success response or nil.
func (a *API) send(ctx context.Context, acct *account.Account, ep Endpoint, body interface{}) *Response {
	log := a.logger.WithContext(map[string]interface{}{"account": acct.ID, "endpoint": ep.Name})

	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		token := acct.Token()
		resp := a.client.Do(ctx, ep, token, body)

		switch resp.Outcome {
		case OutcomeSuccess:
			log.InfoWith("call succeeded", map[string]interface{}{"body": logging.Truncate(string(resp.Body), 200)})
			return resp

		case OutcomeUnauthorized:
			log.WarnWith("credential expired", map[string]interface{}{"status": resp.Status, "attempt": attempt})
			acct.Invalidate(token)
			if attempt == a.maxAttempts || acct.Canceled() || a.auth == nil {
				return nil
			}
			if !a.auth.Reauthorize(ctx, acct) {
				log.Warn("reauthorization failed, giving up")
				return nil
			}

		default:
			extra := map[string]interface{}{
				"status":  resp.Status,
				"outcome": resp.Outcome.String(),
				"body":    logging.Truncate(string(resp.Body), 500),
			}
			if resp.Err != nil {
				extra["cause"] = resp.Err.Error()
			}
			log.WarnWith("call failed", extra)
			return nil
		}
	}
	return nil
}

func (a *API) object(ctx context.Context, acct *account.Account, ep Endpoint, body interface{}) (Payload, error) {
	resp := a.send(ctx, acct, ep, body)
	if resp == nil {
		return Payload{}, nil
	}
	p, err := resp.Decode()
	if err != nil {
		a.logger.ErrorWithContext("undecodable response", err, map[string]interface{}{"account": acct.ID, "endpoint": ep.Name})
		return Payload{}, fmt.Errorf("%s: %w", ep.Name, err)
	}
	return p, nil
}

func (a *API) list(ctx context.Context, acct *account.Account, ep Endpoint) ([]Payload, error) {
	resp := a.send(ctx, acct, ep, nil)
	if resp == nil {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(resp.Body))
	dec.UseNumber()
	var raw []map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		a.logger.ErrorWithContext("undecodable response", err, map[string]interface{}{"account": acct.ID, "endpoint": ep.Name})
		return nil, fmt.Errorf("%s: %w: %v", ep.Name, ErrMalformedResponse, err)
	}
	out := make([]Payload, len(raw))
	for i, m := range raw {
		out[i] = Payload(m)
	}
	return out, nil
}

func (a *API) visit(ctx context.Context, acct *account.Account, link string) {
	if link == "" {
		return
	}
	if err := a.client.VisitLink(ctx, link); err != nil {
		a.logger.WarnWithContext("invite link visit failed", map[string]interface{}{
			"account": acct.ID,
			"link":    link,
			"error":   err.Error(),
		})
		return
	}
	a.logger.DebugWithContext("invite link visited", map[string]interface{}{"account": acct.ID, "link": link})
}

// GetMe returns the profile payload.
func (a *API) GetMe(ctx context.Context, acct *account.Account) (Payload, error) {
	return a.object(ctx, acct, EndpointGetMe, nil)
}

// Mine taps count times.
func (a *API) Mine(ctx context.Context, acct *account.Account, count int64) (Payload, error) {
	return a.object(ctx, acct, EndpointMine, map[string]interface{}{"count": count})
}

// ListCards returns the catalog as a list of categories, each carrying a
// "cards" list.
func (a *API) ListCards(ctx context.Context, acct *account.Account) ([]Payload, error) {
	return a.list(ctx, acct, EndpointListCards)
}

// UpgradeCard buys one upgrade level. A non-empty inviteLink is visited
// first; its failure does not stop the purchase.
func (a *API) UpgradeCard(ctx context.Context, acct *account.Account, cardID int64, inviteLink string) (Payload, error) {
	a.visit(ctx, acct, inviteLink)
	return a.object(ctx, acct, EndpointUpgradeCard, map[string]interface{}{"id": cardID})
}

// ListChannels returns the task list under "channels".
func (a *API) ListChannels(ctx context.Context, acct *account.Account) (Payload, error) {
	return a.object(ctx, acct, EndpointListChannels, nil)
}

// ResolveChannel marks a task done. A non-empty inviteLink is visited first;
// its failure does not stop the resolve call.
func (a *API) ResolveChannel(ctx context.Context, acct *account.Account, channelID int64, inviteLink string) (Payload, error) {
	a.visit(ctx, acct, inviteLink)
	return a.object(ctx, acct, EndpointResolveChannel, map[string]interface{}{"channel_id": channelID})
}

// PickChannel claims a resolved task's reward.
func (a *API) PickChannel(ctx context.Context, acct *account.Account, channelID int64) (Payload, error) {
	return a.object(ctx, acct, EndpointPickChannel, map[string]interface{}{"channel_id": channelID})
}

// GetDailyBonuses reports "has_available".
func (a *API) GetDailyBonuses(ctx context.Context, acct *account.Account) (Payload, error) {
	return a.object(ctx, acct, EndpointGetDailyBonuses, nil)
}

func (a *API) PickDailyBonus(ctx context.Context, acct *account.Account) (Payload, error) {
	return a.object(ctx, acct, EndpointPickDailyBonus, nil)
}

// GetPromo reports "is_reward_taken".
func (a *API) GetPromo(ctx context.Context, acct *account.Account) (Payload, error) {
	return a.object(ctx, acct, EndpointGetPromo, nil)
}

func (a *API) PickPromo(ctx context.Context, acct *account.Account) (Payload, error) {
	return a.object(ctx, acct, EndpointPickPromo, nil)
}

// ListFriends returns the referral summary ("copy_link", "friends_count").
func (a *API) ListFriends(ctx context.Context, acct *account.Account) (Payload, error) {
	return a.object(ctx, acct, EndpointListFriends, nil)
}

// GetBoosts returns boost availability.
func (a *API) GetBoosts(ctx context.Context, acct *account.Account) (Payload, error) {
	return a.object(ctx, acct, EndpointGetBoosts, nil)
}

// UseBoost consumes the named boost.
func (a *API) UseBoost(ctx context.Context, acct *account.Account, boost string) (Payload, error) {
	return a.object(ctx, acct, EndpointUseBoost, map[string]interface{}{"boost": boost})
}
