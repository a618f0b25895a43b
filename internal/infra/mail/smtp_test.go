package mail

import (
	"strings"
	"testing"

	domainMail "payment_scheduler/internal/domain/mail"

	"github.com/stretchr/testify/assert"
)

func TestBuildMessage(t *testing.T) {
	t.Parallel()

	raw := string(buildMessage("payments@example.com", domainMail.Message{
		To:      "alice@example.com",
		Subject: "Payment receipt\r\nBcc: eve@example.com",
		Body:    "Hi Alice,\n\nSent 1.5 to 0xabc.\n",
	}))

	headers, body, found := strings.Cut(raw, "\r\n\r\n")
	assert.True(t, found)
	assert.Contains(t, headers, "From: payments@example.com\r\n")
	assert.Contains(t, headers, "To: alice@example.com\r\n")
	assert.Contains(t, headers, "Subject: Payment receipt  Bcc: eve@example.com")
	assert.NotContains(t, headers, "\r\nBcc:", "subject must not inject headers")
	assert.Equal(t, "Hi Alice,\r\n\r\nSent 1.5 to 0xabc.\r\n", body)
}
