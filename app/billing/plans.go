// Package billing reconciles Stripe checkout events into subscriptions and points.
package billing

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/johnp2003/captify-ai/app/models"
)

// Plan is what a price buys.
type Plan struct {
	Name   models.Plan `json:"plan"`
	Points int64       `json:"points"`
}

// PlanTable maps a Stripe price id to its plan.
type PlanTable map[string]Plan

// Resolve looks up a price id. Unknown ids are never defaulted.
func (t PlanTable) Resolve(priceID string) (Plan, error) {
	p, ok := t[priceID]
	if !ok {
		return Plan{}, fmt.Errorf("%w: %q", ErrUnknownPrice, priceID)
	}
	return p, nil
}

// PriceIDs returns the configured price ids in stable order.
func (t PlanTable) PriceIDs() []string {
	ids := make([]string, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DefaultPlanTable is the production catalog.
func DefaultPlanTable() PlanTable {
	return PlanTable{
		"price_1R3RvKDniTjXmmW21ofwtiyE": {Name: models.PlanBasic, Points: 100},
		"price_1R3RujDniTjXmmW2HRhGdnPH": {Name: models.PlanPro, Points: 500},
	}
}

// ParsePlanTable parses "price_a=Basic:100,price_b=Pro:500".
func ParsePlanTable(s string) (PlanTable, error) {
	t := PlanTable{}
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		priceID, rest, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("plan entry %q: expected price=Plan:points", entry)
		}
		name, pts, ok := strings.Cut(rest, ":")
		if !ok {
			return nil, fmt.Errorf("plan entry %q: expected price=Plan:points", entry)
		}
		priceID = strings.TrimSpace(priceID)
		name = strings.TrimSpace(name)
		if priceID == "" || name == "" {
			return nil, fmt.Errorf("plan entry %q: empty price id or plan name", entry)
		}
		points, err := strconv.ParseInt(strings.TrimSpace(pts), 10, 64)
		if err != nil || points <= 0 {
			return nil, fmt.Errorf("plan entry %q: points must be a positive integer", entry)
		}
		if _, dup := t[priceID]; dup {
			return nil, fmt.Errorf("plan entry %q: duplicate price id", entry)
		}
		t[priceID] = Plan{Name: models.Plan(name), Points: points}
	}
	if len(t) == 0 {
		return nil, fmt.Errorf("plan table is empty")
	}
	return t, nil
}
