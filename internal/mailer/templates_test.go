package mailer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	data := map[string]string{
		"first_name":   "Ada",
		"course_title": "Distributed Systems",
	}

	t.Run("enrollment confirmed", func(t *testing.T) {
		subject, plain, html, err := Render(TemplateEnrollmentConfirmed, data)
		require.NoError(t, err)

		assert.Equal(t, "You're enrolled in Distributed Systems", subject)
		assert.Contains(t, plain, "Hi Ada")
		assert.Contains(t, plain, "now active")
		assert.NotEmpty(t, html)
	})

	t.Run("course completed", func(t *testing.T) {
		subject, plain, _, err := Render(TemplateCourseCompleted, data)
		require.NoError(t, err)

		assert.Contains(t, subject, "Distributed Systems")
		assert.Contains(t, plain, "talent profile")
	})

	t.Run("payment failed", func(t *testing.T) {
		subject, plain, _, err := Render(TemplatePaymentFailed, data)
		require.NoError(t, err)

		assert.Equal(t, "Your payment could not be completed", subject)
		assert.Contains(t, plain, "No money left your account")
	})

	t.Run("unknown template", func(t *testing.T) {
		_, _, _, err := Render("does_not_exist", data)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown email template")
	})

	t.Run("missing data keys render empty", func(t *testing.T) {
		subject, _, _, err := Render(TemplateEnrollmentConfirmed, nil)
		require.NoError(t, err)
		assert.Equal(t, "You're enrolled in ", subject)
	})
}
