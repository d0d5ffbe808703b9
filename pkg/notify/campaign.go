package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/xhad/tutor/internal/models"
	"github.com/xhad/tutor/internal/types"
)

const (
	DefaultInactiveAfter = 15 * 24 * time.Hour
	DefaultCooldown      = 7 * 24 * time.Hour
)

type CampaignConfig struct {
	Kind          string
	InactiveAfter time.Duration
	Cooldown      time.Duration
	AppURL        string
}

type CampaignReport struct {
	Candidates int
	Sent       int
	Failed     int
	Skipped    int
}

// Campaign emails students who have been inactive for a while, at most once
// per cooldown window and kind.
type Campaign struct {
	config     CampaignConfig
	roster     types.Roster
	audit      types.NotificationLog
	renderer   *Renderer
	dispatcher *Dispatcher
	now        func() time.Time
}

func NewCampaign(config CampaignConfig, roster types.Roster, audit types.NotificationLog, renderer *Renderer, dispatcher *Dispatcher) *Campaign {
	if config.Kind == "" {
		config.Kind = KindInactivity
	}
	if config.InactiveAfter <= 0 {
		config.InactiveAfter = DefaultInactiveAfter
	}
	if config.Cooldown <= 0 {
		config.Cooldown = DefaultCooldown
	}
	return &Campaign{
		config:     config,
		roster:     roster,
		audit:      audit,
		renderer:   renderer,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// Eligible applies the inactivity and cooldown rules to one student.
func (c *Campaign) Eligible(ctx context.Context, s models.Student, now time.Time) (bool, error) {
	if now.Sub(s.LastActiveAt) < c.config.InactiveAfter {
		return false, nil
	}
	last, ok, err := c.audit.LastNotified(ctx, s.ID, c.config.Kind)
	if err != nil {
		return false, fmt.Errorf("failed to read notification history: %w", err)
	}
	if ok && now.Sub(last) < c.config.Cooldown {
		return false, nil
	}
	return true, nil
}

// Run sends one notification to every eligible student and records each
// outcome in the audit log.
func (c *Campaign) Run(ctx context.Context) (CampaignReport, error) {
	now := c.now()
	students, err := c.roster.InactiveStudents(ctx, now.Add(-c.config.InactiveAfter))
	if err != nil {
		return CampaignReport{}, fmt.Errorf("failed to list inactive students: %w", err)
	}

	report := CampaignReport{Candidates: len(students)}
	for _, s := range students {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		ok, err := c.Eligible(ctx, s, now)
		if err != nil {
			return report, err
		}
		if !ok {
			report.Skipped++
			continue
		}

		payload, err := c.renderer.Render(c.config.Kind, TemplateData{
			Name:         s.Name,
			DaysInactive: int(now.Sub(s.LastActiveAt).Hours() / 24),
			AppURL:       c.config.AppURL,
		})
		if err != nil {
			return report, err
		}

		result := c.dispatcher.Send(ctx, s.Email, payload)
		record := models.Notification{
			ID:        uuid.NewString(),
			StudentID: s.ID,
			Kind:      c.config.Kind,
			Email:     s.Email,
			MessageID: result.MessageID,
			Success:   result.Success,
			SentAt:    now,
		}
		if result.Success {
			report.Sent++
		} else {
			report.Failed++
			record.Error = result.Err.Error()
		}

		if err := c.audit.RecordNotification(ctx, record); err != nil {
			log.Error().Err(err).Str("student", s.ID).Msg("failed to record notification")
		}
	}

	log.Info().
		Int("candidates", report.Candidates).
		Int("sent", report.Sent).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Msg("notification campaign finished")
	return report, nil
}
