// Пакет ledger — реестр выданных разовых download-токенов.
//
// Токен может быть структурно валиден (подпись сходится, embedded-срок
// не истёк) и при этом уже погашен — это свойство сама подписанная
// строка выразить не может, его ведёт только изменяемая таблица реестра.
//
// Redeem — критическая секция сервиса: проверка consumed и установка
// consumed=true выполняются под одной блокировкой, иначе конкурентные
// запросы превратят разовую ссылку в многоразовую.
package ledger

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/secureshare/internal/auth/token"
	"github.com/bigkaa/secureshare/internal/domain/model"
)

// Ошибки реестра. Ошибки кодека (token.ErrMalformed и др.)
// пробрасываются из Redeem как есть.
var (
	// ErrNotFound — записи по токену нет. Возвращается и когда запись
	// каталога файлов исчезла: наружу обе ситуации неразличимы.
	ErrNotFound = errors.New("download-токен не найден")
	// ErrAlreadyConsumed — токен уже был погашен
	ErrAlreadyConsumed = errors.New("download-токен уже использован")
	// ErrExpired — срок действия записи истёк
	ErrExpired = errors.New("срок действия download-токена истёк")
)

// Prometheus-метрики реестра.
var (
	grantsIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ss_grants_issued_total",
		Help: "Общее количество выданных download-токенов.",
	})

	grantsRedeemedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ss_grants_redeemed_total",
		Help: "Общее количество попыток погашения download-токенов (по результату).",
	}, []string{"result"})

	activeGrants = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ss_active_grants",
		Help: "Текущее количество записей в реестре download-токенов.",
	})

	grantsSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ss_grants_swept_total",
		Help: "Общее количество записей, удалённых sweep'ом по истечении срока.",
	})
)

// FileResolver — каталог файлов с точки зрения реестра.
// Реестр зависит от абстракции, а не от конкретного хранилища.
type FileResolver interface {
	Lookup(fileID string) *model.FileRecord
}

// Ledger — потокобезопасный реестр download-токенов.
// Единственный разделяемый изменяемый ресурс ядра: все операции
// выполняются под одним mutex, что и даёт атомарность Redeem.
type Ledger struct {
	mu     sync.Mutex
	grants map[string]*model.GrantEntry // token → entry

	codec    *token.Codec
	resolver FileResolver
	ttl      time.Duration
	logger   *slog.Logger
}

// New создаёт пустой реестр.
// ttl — срок действия выдаваемых токенов (фиксируется при выдаче).
func New(codec *token.Codec, resolver FileResolver, ttl time.Duration, logger *slog.Logger) *Ledger {
	return &Ledger{
		grants:   make(map[string]*model.GrantEntry),
		codec:    codec,
		resolver: resolver,
		ttl:      ttl,
		logger:   logger.With(slog.String("component", "ledger")),
	}
}

// Issue чеканит download-токен для пары (файл, пользователь), вносит
// запись в реестр и возвращает запись каталога файла. Отклоняет
// выдачу, если файла нет в каталоге:
// висячих записей реестр не создаёт. Попутно выполняет sweep истёкших
// записей — реестр чистится на каждой выдаче, фоновый sweeper лишь
// дублирует эту работу по таймеру.
func (l *Ledger) Issue(fileID, requesterID string) (string, *model.GrantEntry, *model.FileRecord, error) {
	rec := l.resolver.Lookup(fileID)
	if rec == nil {
		return "", nil, nil, ErrNotFound
	}

	signed, err := l.codec.Mint(token.Claims{
		Purpose: token.PurposeDownload,
		FileID:  fileID,
		UserID:  requesterID,
	}, l.ttl)
	if err != nil {
		return "", nil, nil, err
	}

	now := time.Now().UTC()
	entry := &model.GrantEntry{
		Token:       signed,
		FileID:      fileID,
		RequesterID: requesterID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(l.ttl),
	}

	l.mu.Lock()
	l.sweepLocked(now)
	l.grants[signed] = entry
	total := len(l.grants)
	l.mu.Unlock()

	grantsIssuedTotal.Inc()
	activeGrants.Set(float64(total))

	l.logger.Debug("Download-токен выдан",
		slog.String("file_id", fileID),
		slog.String("requester_id", requesterID),
		slog.Time("expires_at", entry.ExpiresAt),
	)

	copied := *entry
	return signed, &copied, rec, nil
}

// Redeem гасит download-токен и возвращает запись каталога файла.
//
// Порядок: проверка подписи кодеком → поиск записи → проверка
// consumed и срока → разрешение файла в каталоге → атомарная установка
// consumed=true. Проверка и установка флага выполняются под одной
// блокировкой: из конкурентных запросов с одним токеном ровно один
// увидит consumed==false.
//
// Ошибки: token.ErrMalformed / token.ErrExpired / token.ErrWrongPurpose
// от кодека; ErrNotFound (запись отсутствует либо файл исчез из
// каталога — наружу неразличимо), ErrAlreadyConsumed, ErrExpired.
func (l *Ledger) Redeem(value string) (*model.FileRecord, error) {
	if _, err := l.codec.Verify(value, token.PurposeDownload); err != nil {
		grantsRedeemedTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	now := time.Now().UTC()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.grants[value]
	if !ok {
		grantsRedeemedTotal.WithLabelValues("not_found").Inc()
		return nil, ErrNotFound
	}

	if entry.Consumed {
		grantsRedeemedTotal.WithLabelValues("consumed").Inc()
		return nil, ErrAlreadyConsumed
	}

	if entry.IsExpired(now) {
		grantsRedeemedTotal.WithLabelValues("expired").Inc()
		return nil, ErrExpired
	}

	// Файл разрешается до погашения: исчезнувший файл не должен
	// сжигать токен.
	rec := l.resolver.Lookup(entry.FileID)
	if rec == nil {
		grantsRedeemedTotal.WithLabelValues("not_found").Inc()
		return nil, ErrNotFound
	}

	entry.Consumed = true
	entry.ConsumedAt = &now

	grantsRedeemedTotal.WithLabelValues("success").Inc()

	l.logger.Info("Download-токен погашен",
		slog.String("file_id", entry.FileID),
		slog.String("requester_id", entry.RequesterID),
	)

	return rec, nil
}

// Inspect проверяет токен и возвращает запись каталога и запись реестра
// БЕЗ погашения. Используется info-endpoint'ом: клиент смотрит имя,
// размер и срок действия до того, как решит скачивать.
// Набор ошибок совпадает с Redeem.
func (l *Ledger) Inspect(value string) (*model.FileRecord, *model.GrantEntry, error) {
	if _, err := l.codec.Verify(value, token.PurposeDownload); err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.grants[value]
	if !ok {
		return nil, nil, ErrNotFound
	}

	if entry.Consumed {
		return nil, nil, ErrAlreadyConsumed
	}

	if entry.IsExpired(now) {
		return nil, nil, ErrExpired
	}

	rec := l.resolver.Lookup(entry.FileID)
	if rec == nil {
		return nil, nil, ErrNotFound
	}

	copied := *entry
	return rec, &copied, nil
}

// SweepExpired удаляет записи с истёкшим сроком независимо от флага
// consumed. Идемпотентна: повторный вызов ничего не меняет.
// Возвращает количество удалённых записей.
func (l *Ledger) SweepExpired() int {
	now := time.Now().UTC()

	l.mu.Lock()
	removed := l.sweepLocked(now)
	total := len(l.grants)
	l.mu.Unlock()

	activeGrants.Set(float64(total))

	if removed > 0 {
		l.logger.Debug("Sweep реестра выполнен",
			slog.Int("removed", removed),
			slog.Int("remaining", total),
		)
	}

	return removed
}

// sweepLocked удаляет истёкшие записи. Вызывается только под l.mu.
func (l *Ledger) sweepLocked(now time.Time) int {
	removed := 0
	for key, entry := range l.grants {
		if entry.IsExpired(now) {
			delete(l.grants, key)
			removed++
		}
	}
	if removed > 0 {
		grantsSweptTotal.Add(float64(removed))
	}
	return removed
}

// Get возвращает копию записи реестра по токену, nil если записи нет.
func (l *Ledger) Get(value string) *model.GrantEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.grants[value]
	if !ok {
		return nil
	}
	copied := *entry
	return &copied
}

// Count возвращает текущее количество записей в реестре.
func (l *Ledger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.grants)
}
