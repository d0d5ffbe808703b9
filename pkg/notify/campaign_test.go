package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/tutor/internal/models"
)

type fakeRoster struct {
	students []models.Student
	cutoff   time.Time
}

func (f *fakeRoster) InactiveStudents(_ context.Context, cutoff time.Time) ([]models.Student, error) {
	f.cutoff = cutoff
	return f.students, nil
}

type fakeAudit struct {
	last    map[string]time.Time
	records []models.Notification
}

func (f *fakeAudit) RecordNotification(_ context.Context, n models.Notification) error {
	f.records = append(f.records, n)
	return nil
}

func (f *fakeAudit) LastNotified(_ context.Context, studentID, kind string) (time.Time, bool, error) {
	t, ok := f.last[studentID+"/"+kind]
	return t, ok, nil
}

func TestCampaign_Run(t *testing.T) {
	now := time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	roster := &fakeRoster{students: []models.Student{
		{ID: "s1", Name: "Ana", Email: "ana@example.com", LastActiveAt: now.Add(-20 * day)},
		{ID: "s2", Name: "Luis", Email: "luis@example.com", LastActiveAt: now.Add(-30 * day)},
		{ID: "s3", Name: "Eva", Email: "eva@example.com", LastActiveAt: now.Add(-16 * day)},
		{ID: "s4", Name: "Iván", Email: "ivan@example.com", LastActiveAt: now.Add(-3 * day)},
		{ID: "s5", Name: "Sol", Email: "fail@example.com", LastActiveAt: now.Add(-40 * day)},
	}}
	audit := &fakeAudit{last: map[string]time.Time{
		"s2/" + KindInactivity: now.Add(-2 * day), // inside cooldown
		"s3/" + KindInactivity: now.Add(-8 * day), // cooldown elapsed
		"s1/weekly":            now.Add(-1 * day), // other kind
	}}

	transport := &addressTransport{fail: map[string]error{"fail@example.com": Permanent(errors.New("550 no such user"))}}
	dispatcher := NewWithConfig(DispatcherConfig{From: "tutor@example.com", Sleep: (&recordingSleeper{}).Sleep}, transport)

	c := NewCampaign(CampaignConfig{AppURL: "https://tutor.example.com"}, roster, audit, NewRenderer(FixedSelector(0)), dispatcher)
	c.now = func() time.Time { return now }

	report, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, now.Add(-15*day), roster.cutoff)
	assert.Equal(t, CampaignReport{Candidates: 5, Sent: 2, Failed: 1, Skipped: 2}, report)
	assert.ElementsMatch(t, []string{"ana@example.com", "eva@example.com", "fail@example.com"}, transport.to)

	require.Len(t, audit.records, 3)
	for _, rec := range audit.records {
		assert.Equal(t, KindInactivity, rec.Kind)
		assert.NotEmpty(t, rec.ID)
		assert.Equal(t, now, rec.SentAt)
		if rec.StudentID == "s5" {
			assert.False(t, rec.Success)
			assert.Contains(t, rec.Error, "550 no such user")
		} else {
			assert.True(t, rec.Success)
			assert.NotEmpty(t, rec.MessageID)
		}
	}
}

func TestCampaign_Eligible(t *testing.T) {
	now := time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)
	day := 24 * time.Hour
	audit := &fakeAudit{last: map[string]time.Time{"s1/" + KindInactivity: now.Add(-7 * day)}}
	c := NewCampaign(CampaignConfig{}, &fakeRoster{}, audit, NewRenderer(FixedSelector(0)), nil)

	ok, err := c.Eligible(context.Background(), models.Student{ID: "s1", LastActiveAt: now.Add(-15 * day)}, now)
	require.NoError(t, err)
	assert.True(t, ok, "exactly 15 days inactive and 7 days since last email")

	ok, _ = c.Eligible(context.Background(), models.Student{ID: "s2", LastActiveAt: now.Add(-15*day + time.Minute)}, now)
	assert.False(t, ok)
}

type addressTransport struct {
	fail map[string]error
	to   []string
}

func (a *addressTransport) Send(_ context.Context, msg Message) (string, error) {
	a.to = append(a.to, msg.To)
	if err, ok := a.fail[msg.To]; ok {
		return "", err
	}
	return "id-" + msg.To, nil
}
