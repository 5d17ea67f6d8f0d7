package analytics

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/normalize"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/tools"
)

const (
	defaultPeriod   = "mtd"
	defaultHoldings = 5
	defaultMetric   = "all"
)

func stringParam(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func schema(props map[string]any, required ...string) map[string]any {
	return map[string]any{"type": "object", "properties": props, "required": required}
}

// Tools returns the four analytics tools bound to ds.
func Tools(ds *Dataset) []tools.Tool {
	return append(PortfolioTools(ds), CampaignTools(ds)...)
}

// PortfolioTools returns portfolio_summary and portfolio_holdings.
func PortfolioTools(ds *Dataset) []tools.Tool {
	return []tools.Tool{
		&tools.Func{
			ToolName: "portfolio_summary",
			Desc:     "Value and performance of one account over a period (mtd, qtd, ytd).",
			Schema: schema(map[string]any{
				"account_id": stringParam("Account identifier"),
				"period":     map[string]any{"type": "string", "description": "mtd, qtd or ytd", "default": defaultPeriod},
			}, "account_id"),
			Fn: ds.portfolioSummary,
		},
		&tools.Func{
			ToolName: "portfolio_holdings",
			Desc:     "Largest holdings of one account by value.",
			Schema: schema(map[string]any{
				"account_id": stringParam("Account identifier"),
				"limit":      map[string]any{"type": "integer", "description": "How many holdings", "default": defaultHoldings},
			}, "account_id"),
			Fn: ds.portfolioHoldings,
		},
	}
}

// CampaignTools returns campaign_diagnostics and campaign_list.
func CampaignTools(ds *Dataset) []tools.Tool {
	return []tools.Tool{
		&tools.Func{
			ToolName: "campaign_diagnostics",
			Desc:     "Pacing and delivery metrics for one campaign.",
			Schema: schema(map[string]any{
				"campaign_id": stringParam("Campaign identifier"),
				"metric":      map[string]any{"type": "string", "description": "A single metric name, or all", "default": defaultMetric},
			}, "campaign_id"),
			Fn: ds.campaignDiagnostics,
		},
		&tools.Func{
			ToolName: "campaign_list",
			Desc:     "Campaigns for an account, optionally filtered by status.",
			Schema: schema(map[string]any{
				"account_id": stringParam("Account identifier; empty lists all accounts"),
				"status":     map[string]any{"type": "string", "description": "active, paused, ended or all", "default": "all"},
			}),
			Fn: ds.campaignList,
		},
	}
}

func (d *Dataset) portfolioSummary(ctx context.Context, args map[string]any) (string, error) {
	id := normalize.String(args, "account_id", "")
	if id == "" {
		return "", fmt.Errorf("account_id is required")
	}
	acct, ok := d.Account(id)
	if !ok {
		return "", fmt.Errorf("unknown account %q", id)
	}
	period := strings.ToLower(normalize.String(args, "period", defaultPeriod))
	if period == "" {
		period = defaultPeriod
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Account %s (%s): value %s %.2f", acct.ID, acct.Name, acct.Currency, acct.Value)
	p, ok := acct.Periods[period]
	if !ok {
		fmt.Fprintf(&b, "\nNo performance recorded for period %s.", period)
		return b.String(), nil
	}
	fmt.Fprintf(&b, "\n%s return: %+.2f%%", strings.ToUpper(period), p.ReturnPct)
	fmt.Fprintf(&b, "\nInflows: %.2f, outflows: %.2f, net: %+.2f", p.Inflow, p.Outflow, p.Inflow-p.Outflow)
	return b.String(), nil
}

func (d *Dataset) portfolioHoldings(ctx context.Context, args map[string]any) (string, error) {
	id := normalize.String(args, "account_id", "")
	if id == "" {
		return "", fmt.Errorf("account_id is required")
	}
	acct, ok := d.Account(id)
	if !ok {
		return "", fmt.Errorf("unknown account %q", id)
	}
	limit := normalize.Int(args, "limit", defaultHoldings)
	if limit <= 0 {
		limit = defaultHoldings
	}

	holdings := append([]Holding(nil), acct.Holdings...)
	sort.SliceStable(holdings, func(i, j int) bool { return holdings[i].Value > holdings[j].Value })
	if len(holdings) > limit {
		holdings = holdings[:limit]
	}
	if len(holdings) == 0 {
		return fmt.Sprintf("Account %s has no holdings.", acct.ID), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Top %d holdings for account %s:", len(holdings), acct.ID)
	for i, h := range holdings {
		fmt.Fprintf(&b, "\n%d. %s %s: %.2f (%.1f%%)", i+1, h.Symbol, h.Name, h.Value, h.Weight*100)
	}
	return b.String(), nil
}

func (d *Dataset) campaignDiagnostics(ctx context.Context, args map[string]any) (string, error) {
	id := normalize.String(args, "campaign_id", "")
	if id == "" {
		return "", fmt.Errorf("campaign_id is required")
	}
	c, ok := d.Campaign(id)
	if !ok {
		return "", fmt.Errorf("unknown campaign %q", id)
	}
	metric := strings.ToLower(normalize.String(args, "metric", defaultMetric))

	var b strings.Builder
	fmt.Fprintf(&b, "Campaign %s (%s), status %s", c.ID, c.Name, c.Status)
	fmt.Fprintf(&b, "\nSpend %.2f of %.2f budget, day %d of %d", c.Spend, c.Budget, c.DaysElapsed, c.FlightDays)
	if pacing := c.PacingPct(); pacing > 0 {
		fmt.Fprintf(&b, "\nPacing: %.0f%% of expected (%s)", pacing, pacingLabel(pacing))
	}

	if metric == "" || metric == defaultMetric {
		names := make([]string, 0, len(c.Metrics))
		for name := range c.Metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "\n%s: %g", name, c.Metrics[name])
		}
		return b.String(), nil
	}
	v, ok := c.Metrics[metric]
	if !ok {
		fmt.Fprintf(&b, "\nMetric %s is not tracked for this campaign.", metric)
		return b.String(), nil
	}
	fmt.Fprintf(&b, "\n%s: %g", metric, v)
	return b.String(), nil
}

func pacingLabel(pct float64) string {
	switch {
	case pct < 90:
		return "under-pacing"
	case pct > 110:
		return "over-pacing"
	default:
		return "on track"
	}
}

func (d *Dataset) campaignList(ctx context.Context, args map[string]any) (string, error) {
	account := normalize.String(args, "account_id", "")
	status := strings.ToLower(normalize.String(args, "status", "all"))

	list := d.CampaignsFor(account, status)
	if len(list) == 0 {
		return "No campaigns found.", nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d campaigns:", len(list))
	for _, c := range list {
		fmt.Fprintf(&b, "\n- %s %s [%s] spend %.2f/%.2f", c.ID, c.Name, c.Status, c.Spend, c.Budget)
	}
	return b.String(), nil
}
