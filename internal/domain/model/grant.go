// grant.go — запись реестра разовых токенов скачивания.
package model

import (
	"time"
)

// GrantEntry — учётная запись выданного download-токена.
// Создаётся при выдаче, изменяется ровно один раз: флаг Consumed
// переходит false→true и обратно не возвращается. Записи с истёкшим
// ExpiresAt удаляются sweep'ом независимо от флага Consumed.
type GrantEntry struct {
	// Token — подписанное значение токена, ключ записи
	Token string `json:"token"`

	// FileID — идентификатор файла, на который выдан токен
	FileID string `json:"file_id"`

	// RequesterID — идентификатор запросившего пользователя
	RequesterID string `json:"requester_id"`

	// CreatedAt — момент выдачи (UTC)
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt — момент истечения (CreatedAt + TTL, фиксируется при выдаче)
	ExpiresAt time.Time `json:"expires_at"`

	// Consumed — токен погашен
	Consumed bool `json:"consumed"`

	// ConsumedAt — момент погашения, nil пока Consumed == false
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
}

// IsExpired проверяет, истёк ли срок действия токена.
func (g *GrantEntry) IsExpired(now time.Time) bool {
	return now.After(g.ExpiresAt)
}
