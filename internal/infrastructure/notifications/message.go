package notifications

import (
	"fmt"
	"strings"

	"github.com/you/civicauth/domain"
)

// FormatMessage renders the text delivered to the citizen.
func FormatMessage(d *domain.OTPDelivery) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Seu código de verificação é %s.", d.Code)
	if minutes := (d.ExpiresIn + 59) / 60; minutes > 0 {
		fmt.Fprintf(&b, " Ele expira em %d minuto", minutes)
		if minutes > 1 {
			b.WriteString("s")
		}
		b.WriteString(".")
	}
	if d.MagicLink != "" {
		fmt.Fprintf(&b, " Ou entre direto pelo link: %s", d.MagicLink)
	}
	b.WriteString(" Não compartilhe este código.")
	return b.String()
}
