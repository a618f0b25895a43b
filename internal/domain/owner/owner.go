package owner

import (
	"database/sql"
	"time"
)

// Owner is the account that authorizes scheduled payments.
// Account CRUD lives outside this service; the engine only reads owners.
type Owner struct {
	ID                  int64
	DisplayName         string
	Email               sql.NullString
	SendingAddress      string
	EncryptedSigningKey string // sealed by the vault, never logged
	TelegramChatID      sql.NullInt64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
