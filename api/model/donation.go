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

package model

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type ChooseTarget struct {
	Target  string `json:"target"`
	Contact string `json:"contact"`
}

func (c *ChooseTarget) ValidateChooseTarget() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Target, validation.Required.Error("choose 'developers' or a charity id")),
		validation.Field(&c.Contact, validation.Length(0, 254)),
	)
}
