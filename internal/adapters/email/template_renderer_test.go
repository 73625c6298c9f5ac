package email

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusclubs/internal/domain"
)

func TestTemplateRenderer_Render(t *testing.T) {
	r := NewTemplateRenderer()

	tests := []struct {
		name        string
		template    string
		data        *domain.RegistrationEmailData
		wantSubject string
		wantInBody  []string
	}{
		{
			name:     "event confirmation",
			template: "registration_confirmed",
			data: &domain.RegistrationEmailData{
				Name: "Nadia", Kind: domain.KindEvent, TargetName: "Hack Night",
				RegistrationCode: "EV-ABCD-EFGH", Amount: "500.00 BDT",
			},
			wantSubject: "You're registered for Hack Night (EV-ABCD-EFGH)",
			wantInBody:  []string{"Hi Nadia", "EV-ABCD-EFGH", "500.00 BDT"},
		},
		{
			name:     "club confirmation",
			template: "registration_confirmed",
			data: &domain.RegistrationEmailData{
				Name: "Mim", Kind: domain.KindClub, TargetName: "Robotics Club",
				RegistrationCode: "CL-ABCD-EFGH", Amount: "Free",
			},
			wantSubject: "Welcome to Robotics Club (CL-ABCD-EFGH)",
			wantInBody:  []string{"Robotics Club", "Free"},
		},
		{
			name:     "failure with reason",
			template: "registration_failed",
			data: &domain.RegistrationEmailData{
				Name: "Nadia", Kind: domain.KindEvent, TargetName: "Hack Night", Reason: "insufficient balance",
			},
			wantSubject: "Payment for Hack Night did not go through",
			wantInBody:  []string{"Reason: insufficient balance"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject, html, text, err := r.Render(tt.template, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSubject, subject)
			for _, s := range tt.wantInBody {
				assert.Contains(t, text, s)
				assert.Contains(t, html, s)
			}
		})
	}
}

func TestTemplateRenderer_EscapesHTML(t *testing.T) {
	_, html, text, err := NewTemplateRenderer().Render("registration_failed", &domain.RegistrationEmailData{
		Name: "<b>x</b>", TargetName: "T", Reason: "r",
	})
	require.NoError(t, err)
	assert.NotContains(t, html, "<b>x</b>")
	assert.Contains(t, html, "&lt;b&gt;x&lt;/b&gt;")
	assert.Contains(t, text, "<b>x</b>")
}

func TestTemplateRenderer_UnknownTemplate(t *testing.T) {
	_, _, _, err := NewTemplateRenderer().Render("welcome", &domain.RegistrationEmailData{})
	require.Error(t, err)
}
