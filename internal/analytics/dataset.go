// Package analytics holds the portfolio and campaign data the specialist
// tools read from.
package analytics

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Holding is one position in an account.
type Holding struct {
	Symbol string  `yaml:"symbol"`
	Name   string  `yaml:"name"`
	Value  float64 `yaml:"value"`
	Weight float64 `yaml:"weight"`
}

// Period is performance over a named window (e.g. "mtd", "qtd", "ytd").
type Period struct {
	ReturnPct float64 `yaml:"return_pct"`
	Inflow    float64 `yaml:"inflow"`
	Outflow   float64 `yaml:"outflow"`
}

// Account is a portfolio.
type Account struct {
	ID       string            `yaml:"id"`
	Name     string            `yaml:"name"`
	Currency string            `yaml:"currency"`
	Value    float64           `yaml:"value"`
	Periods  map[string]Period `yaml:"periods"`
	Holdings []Holding         `yaml:"holdings"`
}

// Campaign is an advertising campaign.
type Campaign struct {
	ID          string             `yaml:"id"`
	AccountID   string             `yaml:"account_id"`
	Name        string             `yaml:"name"`
	Status      string             `yaml:"status"`
	Budget      float64            `yaml:"budget"`
	Spend       float64            `yaml:"spend"`
	FlightDays  int                `yaml:"flight_days"`
	DaysElapsed int                `yaml:"days_elapsed"`
	Metrics     map[string]float64 `yaml:"metrics"`
}

// PacingPct is spend as a share of the budget expected by now.
func (c Campaign) PacingPct() float64 {
	if c.Budget <= 0 || c.FlightDays <= 0 || c.DaysElapsed <= 0 {
		return 0
	}
	expected := c.Budget * float64(c.DaysElapsed) / float64(c.FlightDays)
	return c.Spend / expected * 100
}

// Dataset is the read-only data behind the analytics tools.
type Dataset struct {
	Accounts  []Account  `yaml:"accounts"`
	Campaigns []Campaign `yaml:"campaigns"`
}

// Load reads a dataset from a YAML file.
func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML dataset.
func Parse(data []byte) (*Dataset, error) {
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}
	seen := make(map[string]bool)
	for _, a := range ds.Accounts {
		if a.ID == "" {
			return nil, fmt.Errorf("account without id")
		}
		if seen[a.ID] {
			return nil, fmt.Errorf("duplicate account id %q", a.ID)
		}
		seen[a.ID] = true
	}
	return &ds, nil
}

// Account looks up an account by ID.
func (d *Dataset) Account(id string) (Account, bool) {
	for _, a := range d.Accounts {
		if strings.EqualFold(a.ID, id) {
			return a, true
		}
	}
	return Account{}, false
}

// Campaign looks up a campaign by ID.
func (d *Dataset) Campaign(id string) (Campaign, bool) {
	for _, c := range d.Campaigns {
		if strings.EqualFold(c.ID, id) {
			return c, true
		}
	}
	return Campaign{}, false
}

// CampaignsFor lists campaigns, optionally filtered by account and status,
// sorted by ID.
func (d *Dataset) CampaignsFor(accountID, status string) []Campaign {
	var out []Campaign
	for _, c := range d.Campaigns {
		if accountID != "" && !strings.EqualFold(c.AccountID, accountID) {
			continue
		}
		if status != "" && status != "all" && !strings.EqualFold(c.Status, status) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
