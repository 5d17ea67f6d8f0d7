package analytics

import (
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/routing"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/specialist"
)

const portfolioPrompt = `You are the portfolio analyst. You answer questions about investment accounts:
value, performance over a period, and holdings. Use portfolio_summary and
portfolio_holdings to read the data; never guess figures. Keep answers short
and quote the numbers the tools return.`

const campaignPrompt = `You are the campaign analyst. You diagnose advertising campaigns: pacing,
spend against budget, and delivery metrics. Use campaign_list to find campaigns
and campaign_diagnostics to inspect one; never guess figures. State whether a
campaign is under-pacing, over-pacing or on track when you have the data.`

const generalPrompt = `You are the general assistant of an analytics help desk. You handle
introductions, small talk and questions about what this assistant can do. The
desk covers investment portfolios and advertising campaigns. You have no data
tools; answer in plain text and keep it brief.`

// Specialists returns the specialist definitions bound to ds. A nil dataset
// yields specialists without data tools.
func Specialists(ds *Dataset) []specialist.Spec {
	general := specialist.Spec{
		ID:           routing.TargetGeneral,
		Description:  "introductions, small talk and questions about what the assistant can do",
		SystemPrompt: generalPrompt,
	}
	portfolio := specialist.Spec{
		ID:           routing.TargetPortfolio,
		Description:  "investment accounts: value, period performance and holdings",
		SystemPrompt: portfolioPrompt,
	}
	campaign := specialist.Spec{
		ID:           routing.TargetCampaign,
		Description:  "advertising campaigns: pacing, spend and delivery metrics",
		SystemPrompt: campaignPrompt,
	}
	if ds != nil {
		portfolio.Tools = PortfolioTools(ds)
		campaign.Tools = CampaignTools(ds)
	}
	return []specialist.Spec{general, portfolio, campaign}
}
