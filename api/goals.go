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

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	model2 "github.com/pledgebet/pledge/api/model"
	"github.com/pledgebet/pledge/api/middleware"
	"github.com/pledgebet/pledge/internal/apierror"
	"github.com/pledgebet/pledge/model"
)

const successGuidance = "Congratulations on reaching your goal! Your deposit will be returned within 24 hours. Report the amount you receive to close the goal."

// ownedGoal loads the goal named in the route. A goal that belongs to another
// owner is answered as not found.
func (a Api) ownedGoal(c *gin.Context) (*model.Goal, bool) {
	id := c.Param("id")
	goal, err := a.pledge.GetGoal(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if goal.OwnerID != middleware.Owner(c) {
		respondError(c, apierror.NewAPIError(apierror.ErrNotFound, "Goal not found", id))
		return nil, false
	}
	return goal, true
}

func (a Api) CreateGoal(c *gin.Context) {
	var newGoal model2.CreateGoal
	if err := c.ShouldBindJSON(&newGoal); err != nil {
		invalidInput(c, err)
		return
	}

	if err := newGoal.ValidateCreateGoal(); err != nil {
		invalidInput(c, err)
		return
	}

	deadlineAt, err := newGoal.Deadline(a.pledge.Config(), a.pledge.Now())
	if err != nil {
		invalidInput(c, err)
		return
	}

	resp, err := a.pledge.CreateGoal(c.Request.Context(), middleware.Owner(c), newGoal.Description, deadlineAt)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (a Api) GetGoals(c *gin.Context) {
	resp, err := a.pledge.ListGoals(c.Request.Context(), middleware.Owner(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) GetActiveGoal(c *gin.Context) {
	resp, err := a.pledge.GetActiveGoal(c.Request.Context(), middleware.Owner(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) GetGoal(c *gin.Context) {
	goal, ok := a.ownedGoal(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, goal)
}

func (a Api) GetCountdown(c *gin.Context) {
	goal, ok := a.ownedGoal(c)
	if !ok {
		return
	}

	resp, err := a.pledge.GetCountdown(c.Request.Context(), goal.GoalID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) FundDeposit(c *gin.Context) {
	goal, ok := a.ownedGoal(c)
	if !ok {
		return
	}

	var deposit model2.FundDeposit
	if err := c.ShouldBindJSON(&deposit); err != nil {
		invalidInput(c, err)
		return
	}
	if err := deposit.ValidateFundDeposit(); err != nil {
		invalidInput(c, err)
		return
	}

	resp, err := a.pledge.FundDeposit(c.Request.Context(), goal.GoalID, deposit.Amount, deposit.TransactionRef)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) RequestConfirmation(c *gin.Context) {
	goal, ok := a.ownedGoal(c)
	if !ok {
		return
	}

	resp, err := a.pledge.RequestConfirmation(c.Request.Context(), goal.GoalID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (a Api) CommitConfirmation(c *gin.Context) {
	goal, ok := a.ownedGoal(c)
	if !ok {
		return
	}

	var answer model2.CommitConfirmation
	if err := c.ShouldBindJSON(&answer); err != nil {
		invalidInput(c, err)
		return
	}
	if err := answer.ValidateCommitConfirmation(); err != nil {
		invalidInput(c, err)
		return
	}

	resp, err := a.pledge.CommitConfirmation(c.Request.Context(), goal.GoalID, answer.Token)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"goal": resp, "message": successGuidance})
}

// ExpireGoal lets a client that watches the countdown ask for the deadline
// to be enforced. It is safe to call at any time.
func (a Api) ExpireGoal(c *gin.Context) {
	goal, ok := a.ownedGoal(c)
	if !ok {
		return
	}

	resp, err := a.pledge.ExpireIfDue(c.Request.Context(), goal.GoalID, a.pledge.Now())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) ReclaimDeposit(c *gin.Context) {
	goal, ok := a.ownedGoal(c)
	if !ok {
		return
	}

	var reclaim model2.ReclaimDeposit
	if err := c.ShouldBindJSON(&reclaim); err != nil {
		invalidInput(c, err)
		return
	}
	if err := reclaim.ValidateReclaimDeposit(); err != nil {
		invalidInput(c, err)
		return
	}

	resp, err := a.pledge.ReclaimDeposit(c.Request.Context(), goal.GoalID, *reclaim.Amount)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
