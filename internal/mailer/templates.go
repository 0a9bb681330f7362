package mailer

import "fmt"

// Template names used by notification jobs.
const (
	TemplateEnrollmentConfirmed = "enrollment_confirmed"
	TemplateCourseCompleted     = "course_completed"
	TemplatePaymentFailed       = "payment_failed"
)

// Render produces the subject and bodies for a named template. Data keys
// are template-specific; missing keys render as empty strings.
func Render(template string, data map[string]string) (subject, plain, html string, err error) {
	name := data["first_name"]
	course := data["course_title"]

	switch template {
	case TemplateEnrollmentConfirmed:
		subject = fmt.Sprintf("You're enrolled in %s", course)
		plain = fmt.Sprintf(
			"Hi %s,\n\nYour payment was received and your enrollment in %s is now active. "+
				"You can start learning right away.\n\nHappy learning!",
			name, course)
	case TemplateCourseCompleted:
		subject = fmt.Sprintf("Congratulations on completing %s", course)
		plain = fmt.Sprintf(
			"Hi %s,\n\nYou completed %s. Your achievement has been recorded on your talent profile.\n\n"+
				"Well done!",
			name, course)
	case TemplatePaymentFailed:
		subject = "Your payment could not be completed"
		plain = fmt.Sprintf(
			"Hi %s,\n\nYour recent payment attempt for %s failed. "+
				"No money left your account. You can retry the payment from your dashboard.",
			name, course)
	default:
		return "", "", "", fmt.Errorf("unknown email template: %s", template)
	}

	html = "<p>" + plain + "</p>"
	return subject, plain, html, nil
}
