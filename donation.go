/*
Copyright 2024 Pledge Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package pledge

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/texttheater/golang-levenshtein/levenshtein"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pledgebet/pledge/internal/apierror"
	"github.com/pledgebet/pledge/internal/lifecycle"
	"github.com/pledgebet/pledge/model"
)

// Charities lists the charity directory ordered by id.
func (p *Pledge) Charities() []model.Charity {
	out := make([]model.Charity, 0, len(p.charities))
	for _, c := range p.charities {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// suggestCharity returns the closest charity id to target, or "" when nothing
// is close enough to be a typo.
func (p *Pledge) suggestCharity(target string) string {
	best, bestDistance := "", 3
	for id := range p.charities {
		distance := levenshtein.DistanceForStrings([]rune(strings.ToLower(target)), []rune(id), levenshtein.DefaultOptions)
		if distance < bestDistance || (distance == bestDistance && id < best) {
			best, bestDistance = id, distance
		}
	}
	return best
}

// formatAmount renders minor units in the configured currency, e.g. "100000 VND".
func (p *Pledge) formatAmount(amount int64) string {
	precision := p.cfg.CurrencyPrecision
	value := decimal.New(amount, -precision)
	currency := p.cfg.Currency
	if currency == "" {
		currency = "VND"
	}
	return fmt.Sprintf("%s %s", value.StringFixed(precision), currency)
}

func developerThanks(amount string) string {
	return fmt.Sprintf("Thank you for donating %s to the developers. Your goal is now closed; we hope the next one goes better.", amount)
}

func charityAttestation(contact, charity, amount string) string {
	return fmt.Sprintf("%s donated %s to %s after missing a goal deadline", contact, amount, charity)
}

// ChooseTarget decides where the deposit of a failed goal goes. Choosing the
// developers closes the goal immediately with a completed donation. Choosing a
// charity moves the goal to donating and opens a pending donation the owner
// confirms once the transfer is made. contact identifies the owner in the
// attestation message and defaults to the owner id.
func (p *Pledge) ChooseTarget(ctx context.Context, goalID, target, contact string) (*model.Goal, *model.Donation, error) {
	ctx, span := tracer.Start(ctx, "ChooseTarget")
	defer span.End()

	target = strings.TrimSpace(target)
	if target == "" {
		return nil, nil, apierror.NewAPIError(apierror.ErrInvalidInput, "donation target is required", nil)
	}

	next := model.GoalStatusDonating
	if target == model.DonationTargetDevelopers {
		next = model.GoalStatusCompleted
	}

	goal, err := p.datasource.GetGoalByID(ctx, goalID)
	if err != nil {
		return nil, nil, err
	}
	if goal.Status != model.GoalStatusFailed {
		// a repeated choice reports NO_OP, anything else is off the graph or
		// unmet. success -> completed is an edge, but not one a donation takes.
		if err := lifecycle.Validate(goal.Status, next, lifecycle.Context{}); err != nil {
			return nil, nil, err
		}
		return nil, nil, apierror.NewAPIError(apierror.ErrInvalidTransition,
			fmt.Sprintf("a donation target can only be chosen for a failed goal, this goal is %s", goal.Status),
			map[string]string{"status": goal.Status})
	}

	now := p.clock.Now()
	at := p.stamp(goal, now)
	amount := p.formatAmount(goal.Deposit.Amount)
	donation := model.Donation{
		DonationID: model.GenerateUUIDWithSuffix("donation"),
		GoalID:     goal.GoalID,
		OwnerID:    goal.OwnerID,
		Target:     target,
		Amount:     goal.Deposit.Amount,
		CreatedAt:  at,
		UpdatedAt:  at,
	}

	if target == model.DonationTargetDevelopers {
		err = lifecycle.Validate(goal.Status, next, lifecycle.Context{DeveloperDonationRecorded: true})
		donation.TargetName = "Developers"
		donation.Status = model.DonationStatusCompleted
		donation.Message = developerThanks(amount)
	} else {
		charity, ok := p.charities[target]
		if !ok {
			details := map[string]string{"target": target}
			if suggestion := p.suggestCharity(target); suggestion != "" {
				details["did_you_mean"] = suggestion
			}
			return nil, nil, apierror.NewAPIError(apierror.ErrInvalidInput, "unknown charity", details)
		}
		if strings.TrimSpace(contact) == "" {
			contact = goal.OwnerID
		}
		err = lifecycle.Validate(goal.Status, next, lifecycle.Context{CharityChosen: true})
		donation.TargetName = charity.Name
		donation.Status = model.DonationStatusPending
		donation.Message = charityAttestation(strings.TrimSpace(contact), charity.Name, amount)
	}
	if err != nil {
		return nil, nil, err
	}

	if err := p.datasource.RecordDonation(ctx, &donation, goal.Status, next, at); err != nil {
		return nil, nil, err
	}
	span.SetAttributes(attribute.String("donation.id", donation.DonationID))

	goal.Status = next
	goal.UpdatedAt = at

	hooks := []NewWebhook{goalHook(*goal), donationHook(EventDonationCreated, donation)}
	if donation.Status == model.DonationStatusCompleted {
		hooks = append(hooks, donationHook(EventDonationCompleted, donation))
	}
	p.afterCommit(ctx, *goal, false, hooks...)
	return goal, &donation, nil
}

// GetDonation returns the donation recorded for a goal.
func (p *Pledge) GetDonation(ctx context.Context, goalID string) (*model.Donation, error) {
	ctx, span := tracer.Start(ctx, "GetDonation")
	defer span.End()

	return p.datasource.GetDonationByGoal(ctx, goalID)
}

// ConfirmDonation accepts the owner's word that the charity transfer was made.
// Nothing verifies the transfer itself. The donation and its goal are
// completed together.
func (p *Pledge) ConfirmDonation(ctx context.Context, goalID string) (*model.Goal, *model.Donation, error) {
	ctx, span := tracer.Start(ctx, "ConfirmDonation")
	defer span.End()

	goal, err := p.datasource.GetGoalByID(ctx, goalID)
	if err != nil {
		return nil, nil, err
	}
	donation, err := p.datasource.GetDonationByGoal(ctx, goalID)
	if err != nil {
		return nil, nil, err
	}
	if donation.Status == model.DonationStatusCompleted {
		return nil, nil, apierror.NewAPIError(apierror.ErrNoOp, "donation is already completed", donation.DonationID)
	}
	if goal.Status != model.GoalStatusDonating {
		return nil, nil, apierror.NewAPIError(apierror.ErrInvalidTransition,
			fmt.Sprintf("only a donating goal can confirm its donation, this goal is %s", goal.Status),
			map[string]string{"status": goal.Status})
	}

	err = lifecycle.Validate(goal.Status, model.GoalStatusCompleted, lifecycle.Context{DonationConfirmed: true})
	if err != nil {
		return nil, nil, err
	}

	at := p.stamp(goal, p.clock.Now())
	if at.Before(donation.UpdatedAt) {
		at = donation.UpdatedAt
	}
	if err := p.datasource.CompleteDonation(ctx, donation.DonationID, goal.GoalID, at); err != nil {
		return nil, nil, err
	}

	goal.Status = model.GoalStatusCompleted
	goal.UpdatedAt = at
	donation.Status = model.DonationStatusCompleted
	donation.UpdatedAt = at

	p.afterCommit(ctx, *goal, false, goalHook(*goal), donationHook(EventDonationCompleted, *donation))
	return goal, donation, nil
}
