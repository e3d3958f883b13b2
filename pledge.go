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
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/pledgebet/pledge/config"
	"github.com/pledgebet/pledge/database"
	"github.com/pledgebet/pledge/internal/cache"
	"github.com/pledgebet/pledge/internal/notification"
	"github.com/pledgebet/pledge/model"
)

var tracer = otel.Tracer("pledge.service")

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Dispatcher receives the side effects of a committed mutation: deferred
// deadline checks and outbound events.
type Dispatcher interface {
	ScheduleExpiry(ctx context.Context, goal model.Goal) error
	Publish(ctx context.Context, hook NewWebhook) error
}

type nopDispatcher struct{}

func (nopDispatcher) ScheduleExpiry(context.Context, model.Goal) error { return nil }
func (nopDispatcher) Publish(context.Context, NewWebhook) error        { return nil }

// Pledge is the commitment service. It is the only writer of goals and
// donations.
type Pledge struct {
	datasource database.IDataSource
	redis      redis.UniversalClient
	cache      cache.Cache
	dispatcher Dispatcher
	clock      Clock
	cfg        config.GoalConfig
	charities  map[string]model.Charity
}

type Option func(*Pledge)

func WithClock(c Clock) Option {
	return func(p *Pledge) { p.clock = c }
}

func WithDispatcher(d Dispatcher) Option {
	return func(p *Pledge) { p.dispatcher = d }
}

// WithRedis sets the client that holds confirmation tokens and the sweep lock.
func WithRedis(client redis.UniversalClient) Option {
	return func(p *Pledge) { p.redis = client }
}

func WithCache(c cache.Cache) Option {
	return func(p *Pledge) { p.cache = c }
}

// NewPledge builds the service over db using the loaded configuration.
func NewPledge(db database.IDataSource, opts ...Option) (*Pledge, error) {
	cnf, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	p := &Pledge{
		datasource: db,
		dispatcher: nopDispatcher{},
		clock:      systemClock{},
		cfg:        cnf.Goal,
		charities:  make(map[string]model.Charity),
	}
	for _, opt := range opts {
		opt(p)
	}

	charities := p.cfg.Charities
	if len(charities) == 0 {
		charities = model.DefaultCharities
	}
	for _, c := range charities {
		p.charities[c.ID] = c
	}
	return p, nil
}

// Now is the service clock.
func (p *Pledge) Now() time.Time {
	return p.clock.Now()
}

// Config returns the goal rules the service runs with.
func (p *Pledge) Config() config.GoalConfig {
	return p.cfg
}

func (p *Pledge) minimumDeposit() int64 {
	if p.cfg.MinimumDeposit > 0 {
		return p.cfg.MinimumDeposit
	}
	return config.DEFAULT_MINIMUM_DEPOSIT
}

// stamp returns the updated-at instant for a write on goal, never earlier than
// its current updated-at.
func (p *Pledge) stamp(goal *model.Goal, now time.Time) time.Time {
	at := model.Instant(now)
	if at.Before(goal.UpdatedAt) {
		return goal.UpdatedAt
	}
	return at
}

func goalCacheKey(goalID string) string {
	return fmt.Sprintf("goal:%s", goalID)
}

func (p *Pledge) cacheTTL() time.Duration {
	if p.cfg.CacheTTLSec == nil {
		return time.Minute
	}
	return time.Duration(*p.cfg.CacheTTLSec) * time.Second
}

func (p *Pledge) invalidate(ctx context.Context, goalID string) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Delete(ctx, goalCacheKey(goalID)); err != nil {
		logrus.WithError(err).WithField("goal_id", goalID).Warn("failed to invalidate cached goal")
	}
}

// afterCommit runs the post-write side effects of a transition without
// holding up the caller. Failures are reported, never returned: the write
// has already happened.
func (p *Pledge) afterCommit(ctx context.Context, goal model.Goal, schedule bool, hooks ...NewWebhook) {
	p.invalidate(ctx, goal.GoalID)

	bg := context.WithoutCancel(ctx)
	go func() {
		if schedule {
			if err := p.dispatcher.ScheduleExpiry(bg, goal); err != nil {
				notification.NotifyError(fmt.Errorf("failed to schedule expiry for %s: %w", goal.GoalID, err))
			}
		}
		for _, hook := range hooks {
			if err := p.dispatcher.Publish(bg, hook); err != nil {
				notification.NotifyError(fmt.Errorf("failed to publish %s: %w", hook.Event, err))
			}
		}
	}()
}
