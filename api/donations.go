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
)

func (a Api) GetCharities(c *gin.Context) {
	c.JSON(http.StatusOK, a.pledge.Charities())
}

func (a Api) ChooseTarget(c *gin.Context) {
	goal, ok := a.ownedGoal(c)
	if !ok {
		return
	}

	var choice model2.ChooseTarget
	if err := c.ShouldBindJSON(&choice); err != nil {
		invalidInput(c, err)
		return
	}
	if err := choice.ValidateChooseTarget(); err != nil {
		invalidInput(c, err)
		return
	}

	updated, donation, err := a.pledge.ChooseTarget(c.Request.Context(), goal.GoalID, choice.Target, choice.Contact)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"goal": updated, "donation": donation})
}

func (a Api) GetDonation(c *gin.Context) {
	goal, ok := a.ownedGoal(c)
	if !ok {
		return
	}

	resp, err := a.pledge.GetDonation(c.Request.Context(), goal.GoalID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ConfirmDonation records the owner's statement that the charity transfer
// was made.
func (a Api) ConfirmDonation(c *gin.Context) {
	goal, ok := a.ownedGoal(c)
	if !ok {
		return
	}

	updated, donation, err := a.pledge.ConfirmDonation(c.Request.Context(), goal.GoalID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"goal": updated, "donation": donation})
}
