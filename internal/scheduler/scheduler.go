// Package scheduler drives the time-based triggers that run independently
// of user action: offline catch-up on foreground, the idle nudge tick, and
// calendar greetings.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/easeaico/project-dear/internal/types"
)

const (
	tickInterval = 60 * time.Second

	offlineMinAway = time.Hour
	offlineMaxAway = 48 * time.Hour

	markerOffline  = "offline"
	markerLastSeen = "last_seen"
	lastSeenScope  = "user"
)

// Characters lists the companions eligible for proactive behavior.
type Characters interface {
	GetAll(ctx context.Context) ([]types.Character, error)
}

// Chats is the conversation access the scheduler needs.
type Chats interface {
	ListByCharacter(ctx context.Context, characterID string) ([]types.Chat, error)
	LastMessage(ctx context.Context, chatID string) (*types.Message, error)
}

// States reads relationship state for the anniversary trigger.
type States interface {
	Get(ctx context.Context, characterID string) (*types.RelationshipState, error)
}

// Markers gates triggers across restarts.
type Markers interface {
	MarkedToday(ctx context.Context, feature, scope string) (bool, error)
	MarkToday(ctx context.Context, feature, scope string) error
	Timestamp(ctx context.Context, feature, scope string) (time.Time, error)
	SetTimestamp(ctx context.Context, feature, scope string, t time.Time) error
}

// Proactive generates and delivers one character-initiated message into a
// chat. A zero timestamp means "now"; a non-zero timestamp backdates the
// message into the conversation history.
type Proactive interface {
	SendProactive(ctx context.Context, chatID string, hint string, timestamp time.Time) error
}

// Scheduler owns the trigger loop. All trigger failures are logged and
// swallowed; the next tick or foreground simply retries.
type Scheduler struct {
	characters Characters
	chats      Chats
	states     States
	markers    Markers
	proactive  Proactive

	idleThreshold time.Duration
	userBirthday  string

	nowFunc func() time.Time
	randFn  func() float64
}

// New creates a scheduler.
func New(characters Characters, chats Chats, states States, markers Markers, proactive Proactive, idleThreshold time.Duration, userBirthday string) *Scheduler {
	if idleThreshold <= 0 {
		idleThreshold = 3 * time.Hour
	}
	return &Scheduler{
		characters:    characters,
		chats:         chats,
		states:        states,
		markers:       markers,
		proactive:     proactive,
		idleThreshold: idleThreshold,
		userBirthday:  userBirthday,
		nowFunc:       time.Now,
		randFn:        rand.Float64,
	}
}

// Run blocks on the 60-second trigger tick until the context is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	slog.Info("scheduler started", "tick", tickInterval.String(), "idle_threshold", s.idleThreshold.String())
	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one round of the recurring checks.
func (s *Scheduler) Tick(ctx context.Context) {
	s.checkIdle(ctx)
	s.checkCalendar(ctx)
}

// RecordBackground persists the last-seen instant. Called on every app
// background/hide event.
func (s *Scheduler) RecordBackground(ctx context.Context) {
	if err := s.markers.SetTimestamp(ctx, markerLastSeen, lastSeenScope, s.nowFunc()); err != nil {
		slog.Warn("failed to record last-seen", "error", err.Error())
	}
}

// OnForeground runs the offline catch-up: when the user was away between
// one hour and two days, each character gets one message backdated into the
// away window, at most once per day.
func (s *Scheduler) OnForeground(ctx context.Context) {
	now := s.nowFunc()
	lastSeen, err := s.markers.Timestamp(ctx, markerLastSeen, lastSeenScope)
	if err != nil {
		slog.Warn("failed to read last-seen", "error", err.Error())
		return
	}
	defer s.RecordBackground(ctx)

	if lastSeen.IsZero() {
		return
	}
	away := now.Sub(lastSeen)
	if away < offlineMinAway || away > offlineMaxAway {
		return
	}

	chars, err := s.characters.GetAll(ctx)
	if err != nil {
		slog.Warn("failed to list characters for catch-up", "error", err.Error())
		return
	}
	for _, char := range chars {
		s.catchUp(ctx, char, lastSeen, away)
	}
}

func (s *Scheduler) catchUp(ctx context.Context, char types.Character, lastSeen time.Time, away time.Duration) {
	done, err := s.markers.MarkedToday(ctx, markerOffline, char.ID)
	if err != nil || done {
		return
	}
	chatID, ok := s.latestChat(ctx, char.ID)
	if !ok {
		return
	}

	timestamp := s.backdate(lastSeen, away)
	hint := fmt.Sprintf("对方离开了大约 %d 小时，你在这期间想起了他，主动发一条消息：可以分享你刚刚在做的事，或者关心他在忙什么。", int(away.Hours()))
	if err := s.proactive.SendProactive(ctx, chatID, hint, timestamp); err != nil {
		slog.Debug("offline catch-up failed", "character", char.ID, "error", err.Error())
		return
	}
	// Marked only on success so a transient failure keeps today's chance.
	if err := s.markers.MarkToday(ctx, markerOffline, char.ID); err != nil {
		slog.Warn("failed to mark offline catch-up", "character", char.ID, "error", err.Error())
	}
}

// backdate picks a uniform instant between 30 minutes into the away window
// and 80% of it.
func (s *Scheduler) backdate(lastSeen time.Time, away time.Duration) time.Time {
	lo := 30 * time.Minute
	hi := time.Duration(float64(away) * 0.8)
	if hi <= lo {
		return lastSeen.Add(lo)
	}
	offset := lo + time.Duration(s.randFn()*float64(hi-lo))
	return lastSeen.Add(offset)
}

// checkIdle nudges conversations whose last message is an unanswered user
// message older than the idle threshold. The nudge itself clears the
// condition, so no marker is needed.
func (s *Scheduler) checkIdle(ctx context.Context) {
	now := s.nowFunc()
	chars, err := s.characters.GetAll(ctx)
	if err != nil {
		slog.Warn("failed to list characters for idle check", "error", err.Error())
		return
	}
	for _, char := range chars {
		chatID, ok := s.latestChat(ctx, char.ID)
		if !ok {
			continue
		}
		last, err := s.chats.LastMessage(ctx, chatID)
		if err != nil || last == nil {
			continue
		}
		if last.Role != types.RoleUser || now.Sub(last.Timestamp) < s.idleThreshold {
			continue
		}
		hint := "对方发来消息后你一直没有回复，现在主动跟进一下，回应他之前说的话。"
		if err := s.proactive.SendProactive(ctx, chatID, hint, time.Time{}); err != nil {
			slog.Debug("idle nudge failed", "character", char.ID, "error", err.Error())
		}
	}
}

// checkCalendar sends at most one greeting per occasion per character per
// day.
func (s *Scheduler) checkCalendar(ctx context.Context) {
	now := s.nowFunc()
	chars, err := s.characters.GetAll(ctx)
	if err != nil {
		slog.Warn("failed to list characters for calendar check", "error", err.Error())
		return
	}
	for _, char := range chars {
		firstMet := time.Time{}
		if state, err := s.states.Get(ctx, char.ID); err == nil && state != nil {
			firstMet = state.FirstMetAt
		}
		for _, event := range EventsOn(now, s.userBirthday, firstMet) {
			s.greet(ctx, char, event)
		}
	}
}

func (s *Scheduler) greet(ctx context.Context, char types.Character, event Event) {
	done, err := s.markers.MarkedToday(ctx, event.Key, char.ID)
	if err != nil || done {
		return
	}
	chatID, ok := s.latestChat(ctx, char.ID)
	if !ok {
		return
	}
	hint := fmt.Sprintf("今天是%s，以你的身份主动送上一句应景的祝福或感想。", event.Label)
	if err := s.proactive.SendProactive(ctx, chatID, hint, time.Time{}); err != nil {
		slog.Debug("calendar greeting failed", "character", char.ID, "event", event.Key, "error", err.Error())
		return
	}
	if err := s.markers.MarkToday(ctx, event.Key, char.ID); err != nil {
		slog.Warn("failed to mark calendar greeting", "character", char.ID, "event", event.Key, "error", err.Error())
	}
}

// latestChat returns the most recently created chat of a character.
func (s *Scheduler) latestChat(ctx context.Context, characterID string) (string, bool) {
	chats, err := s.chats.ListByCharacter(ctx, characterID)
	if err != nil || len(chats) == 0 {
		return "", false
	}
	return chats[len(chats)-1].ID, true
}
