// ABOUTME: Tests for the notification decision engine
// ABOUTME: Covers trigger priority, recipient resolution, and config persistence round-trips
package notify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/harperreed/fieldwatch/models"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notifications.json")
	return NewEngine(path, zap.NewNop())
}

func featuresWithTags(tags ...string) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, tag := range tags {
		f := geojson.NewFeature(orb.Point{0, 0})
		f.Properties["templateType"] = tag
		fc.Append(f)
	}
	return fc
}

func TestShouldNotifyDisabled(t *testing.T) {
	engine := newTestEngine(t)
	cfg := engine.Config()
	cfg.Enabled = false
	require.NoError(t, engine.Update(cfg))

	dec := engine.ShouldNotify(&models.JobDetail{ID: "j1", Area: 0}, featuresWithTags("outlines"))
	assert.False(t, dec.Notify)
	assert.Equal(t, "notifications disabled", dec.Reason)
}

func TestShouldNotifyTriggerPriority(t *testing.T) {
	engine := newTestEngine(t)

	// Both outlines and exclusion present: first match wins.
	dec := engine.ShouldNotify(&models.JobDetail{ID: "j1", Area: 10}, featuresWithTags("outlines", "exclusion"))
	require.True(t, dec.Notify)
	assert.Equal(t, TriggerReferenceField, dec.Trigger)
}

func TestShouldNotifyDisabledRuleSkipped(t *testing.T) {
	engine := newTestEngine(t)
	cfg := engine.Config()
	cfg.Rules[TriggerReferenceField] = false
	require.NoError(t, engine.Update(cfg))

	dec := engine.ShouldNotify(&models.JobDetail{ID: "j1", Area: 10}, featuresWithTags("outlines", "exclusion"))
	require.True(t, dec.Notify)
	assert.Equal(t, TriggerExclusionZone, dec.Trigger)
}

func TestShouldNotifyZeroArea(t *testing.T) {
	engine := newTestEngine(t)

	dec := engine.ShouldNotify(&models.JobDetail{ID: "j1", Area: 0}, featuresWithTags())
	require.True(t, dec.Notify)
	assert.Equal(t, TriggerZeroArea, dec.Trigger)
}

func TestShouldNotifyNoMatch(t *testing.T) {
	engine := newTestEngine(t)

	dec := engine.ShouldNotify(&models.JobDetail{ID: "j1", Area: 5}, featuresWithTags("irrelevant"))
	assert.False(t, dec.Notify)
	assert.Equal(t, "no triggers matched", dec.Reason)
}

func TestShouldNotifyNogoZone(t *testing.T) {
	engine := newTestEngine(t)

	dec := engine.ShouldNotify(&models.JobDetail{ID: "j1", Area: 5}, featuresWithTags("nogo"))
	require.True(t, dec.Notify)
	assert.Equal(t, TriggerNogoZone, dec.Trigger)
}

func TestRecipients(t *testing.T) {
	engine := newTestEngine(t)
	require.NoError(t, engine.AddRecipient("a@x.com"))
	require.NoError(t, engine.SetContractorEmail("AcmeCo", "b@x.com"))

	got := engine.Recipients("AcmeCo")
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, got)

	// Idempotent
	assert.Equal(t, got, engine.Recipients("AcmeCo"))

	// Unknown contractor gets only the always-notify list
	assert.Equal(t, []string{"a@x.com"}, engine.Recipients("OtherCo"))
}

func TestRecipientsDeduplicated(t *testing.T) {
	engine := newTestEngine(t)
	require.NoError(t, engine.AddRecipient("a@x.com"))
	require.NoError(t, engine.AddRecipient("a@x.com"))
	require.NoError(t, engine.SetContractorEmail("AcmeCo", "a@x.com"))

	assert.Equal(t, []string{"a@x.com"}, engine.Recipients("AcmeCo"))
}

func TestConfigPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifications.json")
	engine := NewEngine(path, zap.NewNop())

	require.NoError(t, engine.AddRecipient("ops@x.com"))
	require.NoError(t, engine.SetContractorEmail("AcmeCo", "acme@x.com"))
	require.NoError(t, engine.SetMessage(TriggerZeroArea, "check the outline upload"))

	// Reload from disk
	reloaded := NewEngine(path, zap.NewNop())
	cfg := reloaded.Config()
	assert.Equal(t, []string{"ops@x.com"}, cfg.AlwaysNotify)
	assert.Equal(t, "acme@x.com", cfg.ContractorEmails["AcmeCo"])
	assert.Equal(t, "check the outline upload", reloaded.Message(TriggerZeroArea))

	require.NoError(t, reloaded.ClearMessage(TriggerZeroArea))
	assert.Empty(t, reloaded.Message(TriggerZeroArea))

	require.NoError(t, reloaded.RemoveRecipient("ops@x.com"))
	assert.Empty(t, reloaded.Recipients(""))
}

func TestMalformedConfigFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifications.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	engine := NewEngine(path, zap.NewNop())
	cfg := engine.Config()
	assert.True(t, cfg.Enabled)
	assert.True(t, cfg.Rules[TriggerZeroArea])
	assert.Empty(t, cfg.AlwaysNotify)
}

func TestRemoveContractorEmail(t *testing.T) {
	engine := newTestEngine(t)
	require.NoError(t, engine.SetContractorEmail("AcmeCo", "acme@x.com"))
	require.NoError(t, engine.RemoveContractorEmail("AcmeCo"))
	assert.Empty(t, engine.Recipients("AcmeCo"))
}

func TestValidTrigger(t *testing.T) {
	assert.True(t, ValidTrigger("zero_area"))
	assert.True(t, ValidTrigger("reference_field"))
	assert.False(t, ValidTrigger("bogus"))
}

func TestComposeMessageCustomText(t *testing.T) {
	job := &models.JobDetail{ID: "j1", Name: "North 40", OrderNumber: "42", Contractor: "AcmeCo"}
	dec := Decision{Notify: true, Trigger: TriggerZeroArea, Reason: "job area is zero"}

	subject, body := ComposeMessage(job, dec, "")
	assert.Contains(t, subject, "North 40")
	assert.Contains(t, body, "triggered zero_area")

	_, body = ComposeMessage(job, dec, "custom lead text")
	assert.Contains(t, body, "custom lead text")
	assert.NotContains(t, body, "triggered zero_area")
}
