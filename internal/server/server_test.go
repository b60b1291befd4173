// server_test.go — end-to-end тесты HTTP API через полный роутер.
package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/secureshare/internal/api/handlers"
	"github.com/bigkaa/secureshare/internal/api/middleware"
	"github.com/bigkaa/secureshare/internal/auth"
	"github.com/bigkaa/secureshare/internal/auth/token"
	"github.com/bigkaa/secureshare/internal/config"
	"github.com/bigkaa/secureshare/internal/ledger"
	"github.com/bigkaa/secureshare/internal/service"
	"github.com/bigkaa/secureshare/internal/storage/filestore"
	"github.com/bigkaa/secureshare/internal/storage/registry"
)

const (
	xlsxType         = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	uploaderPassword = "uploader-secret-1"
)

// captureMailer сохраняет отправленные ссылки подтверждения.
type captureMailer struct {
	mu    sync.Mutex
	links map[string]string
}

func (m *captureMailer) SendVerification(email, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.links == nil {
		m.links = make(map[string]string)
	}
	m.links[email] = link
	return nil
}

func (m *captureMailer) link(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.links[email]
}

// testEnv — полностью собранный сервис поверх временной директории.
type testEnv struct {
	router http.Handler
	cfg    *config.Config
	mailer *captureMailer
}

func newTestEnv(t *testing.T, downloadTTL time.Duration) *testEnv {
	t.Helper()

	cfg := &config.Config{
		Port:             8080,
		DataDir:          t.TempDir(),
		BaseURL:          "http://files.test",
		JWTSecret:        "server-test-secret-0123456789",
		SessionTTL:       time.Hour,
		DownloadTTL:      downloadTTL,
		MaxFileSize:      1 << 20,
		AllowedTypes:     []string{xlsxType, "text/plain; charset=utf-8", "text/plain"},
		SweepInterval:    time.Minute,
		UploaderEmail:    "ops@secureshare.local",
		UploaderPassword: uploaderPassword,
		LogLevel:         slog.LevelError,
		LogFormat:        "text",
		ShutdownTimeout:  time.Second,
	}
	logger := config.SetupLogger(cfg)

	store, err := filestore.New(cfg.DataDir)
	if err != nil {
		t.Fatalf("инициализация filestore: %v", err)
	}
	reg := registry.New(logger)
	if err := reg.BuildFromDir(cfg.DataDir); err != nil {
		t.Fatalf("построение каталога: %v", err)
	}

	users := auth.NewUserStore(logger)
	if err := users.SeedUploader(cfg.UploaderEmail, cfg.UploaderPassword); err != nil {
		t.Fatalf("создание uploader: %v", err)
	}

	codec, err := token.New(cfg.JWTSecret)
	if err != nil {
		t.Fatalf("инициализация JWT: %v", err)
	}
	led := ledger.New(codec, reg, cfg.DownloadTTL, logger)

	mailer := &captureMailer{}
	h := Handlers{
		Auth:        handlers.NewAuthHandler(service.NewAccountService(cfg, users, codec, mailer, logger)),
		Files:       handlers.NewFilesHandler(service.NewUploadService(cfg, store, reg, logger), reg),
		Redeem:      handlers.NewRedeemHandler(service.NewGrantService(cfg, led, store, logger)),
		Health:      handlers.NewHealthHandler(cfg.DataDir, reg),
		Maintenance: handlers.NewMaintenanceHandler(service.NewReconcileService(store, reg, logger)),
	}

	return &testEnv{
		router: NewRouter(logger, middleware.NewSessionAuth(codec, logger), h),
		cfg:    cfg,
		mailer: mailer,
	}
}

// do выполняет запрос через роутер и возвращает recorder.
func (e *testEnv) do(t *testing.T, method, target, sessionToken string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if sessionToken != "" {
		req.Header.Set("Authorization", "Bearer "+sessionToken)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// doJSON выполняет запрос с JSON-телом.
func (e *testEnv) doJSON(t *testing.T, method, target, sessionToken string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("маршалинг тела запроса: %v", err)
	}
	return e.do(t, method, target, sessionToken, bytes.NewReader(data), "application/json")
}

// decodeBody разбирает JSON-ответ в map.
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("разбор ответа %q: %v", rec.Body.String(), err)
	}
	return body
}

// errorCode извлекает error.code из тела ответа.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, rec)
	errObj, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("в ответе нет объекта error: %q", rec.Body.String())
	}
	code, _ := errObj["code"].(string)
	return code
}

// loginUploader входит под служебным uploader-аккаунтом.
func (e *testEnv) loginUploader(t *testing.T) string {
	t.Helper()
	return e.login(t, e.cfg.UploaderEmail, uploaderPassword)
}

func (e *testEnv) login(t *testing.T, email, password string) string {
	t.Helper()
	rec := e.doJSON(t, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("вход %s: ожидался статус 200, получен %d: %s", email, rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	signed, _ := body["token"].(string)
	if signed == "" {
		t.Fatal("ответ входа не содержит token")
	}
	return signed
}

// signupConsumer регистрирует и подтверждает consumer-аккаунт, возвращает сессию.
func (e *testEnv) signupConsumer(t *testing.T, email string) string {
	t.Helper()
	rec := e.doJSON(t, http.MethodPost, "/auth/signup", "", map[string]string{
		"name":     "Тестовый Consumer",
		"email":    email,
		"password": "consumer-pass-1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup: ожидался статус 201, получен %d: %s", rec.Code, rec.Body.String())
	}

	link := e.mailer.link(email)
	if link == "" {
		t.Fatal("письмо подтверждения не отправлено")
	}
	parsed, err := url.Parse(link)
	if err != nil {
		t.Fatalf("разбор ссылки подтверждения: %v", err)
	}
	verifyToken := parsed.Query().Get("token")

	rec = e.do(t, http.MethodGet, "/auth/verify-email?token="+url.QueryEscape(verifyToken), "", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("verify-email: ожидался статус 200, получен %d: %s", rec.Code, rec.Body.String())
	}

	return e.login(t, email, "consumer-pass-1")
}

// uploadFile загружает файл через multipart и возвращает file_id.
func (e *testEnv) uploadFile(t *testing.T, session, name, contentType string, content []byte) string {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("создание multipart части: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("запись содержимого: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("закрытие multipart: %v", err)
	}

	rec := e.do(t, http.MethodPost, "/api/v1/files", session, &buf, mw.FormDataContentType())
	if rec.Code != http.StatusCreated {
		t.Fatalf("загрузка: ожидался статус 201, получен %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	fileID, _ := body["file_id"].(string)
	if fileID == "" {
		t.Fatalf("ответ загрузки не содержит file_id: %s", rec.Body.String())
	}
	return fileID
}

// issueToken выдаёт download-токен на файл, возвращает значение токена.
func (e *testEnv) issueToken(t *testing.T, session, fileID string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/files/"+fileID+"/issue", session, nil, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("выдача токена: ожидался статус 201, получен %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	redemptionURL, _ := body["redemption_url"].(string)
	if !strings.HasPrefix(redemptionURL, e.cfg.BaseURL+"/redeem/") {
		t.Fatalf("некорректная ссылка скачивания: %q", redemptionURL)
	}
	if minutes, _ := body["expires_in_minutes"].(float64); e.cfg.DownloadTTL == 15*time.Minute && int(minutes) != 15 {
		t.Errorf("ожидалось expires_in_minutes = 15, получено %d", int(minutes))
	}
	return path.Base(redemptionURL)
}

// TestEndToEnd_UploadIssueRedeem — полный сценарий: загрузка файла,
// регистрация consumer'а, выдача токена, просмотр info, скачивание,
// повторное скачивание.
func TestEndToEnd_UploadIssueRedeem(t *testing.T) {
	env := newTestEnv(t, 15*time.Minute)
	content := bytes.Repeat([]byte("q"), 2048)

	uploaderSession := env.loginUploader(t)
	fileID := env.uploadFile(t, uploaderSession, "report.xlsx", xlsxType, content)

	consumerSession := env.signupConsumer(t, "reader@example.com")

	// Каталог виден consumer'у
	rec := env.do(t, http.MethodGet, "/api/v1/files", consumerSession, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("список файлов: ожидался статус 200, получен %d", rec.Code)
	}
	listBody := decodeBody(t, rec)
	if total, _ := listBody["total"].(float64); int(total) != 1 {
		t.Errorf("ожидался 1 файл в каталоге, получено %v", listBody["total"])
	}

	downloadToken := env.issueToken(t, consumerSession, fileID)

	// Info не гасит токен
	rec = env.do(t, http.MethodGet, "/redeem/info/"+downloadToken, "", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("info: ожидался статус 200, получен %d: %s", rec.Code, rec.Body.String())
	}
	infoBody := decodeBody(t, rec)
	if infoBody["name"] != "report.xlsx" {
		t.Errorf("ожидалось имя report.xlsx, получено %v", infoBody["name"])
	}
	if size, _ := infoBody["size"].(float64); int(size) != len(content) {
		t.Errorf("ожидался размер %d, получено %v", len(content), infoBody["size"])
	}

	// Первое скачивание — успех
	rec = env.do(t, http.MethodGet, "/redeem/"+downloadToken, "", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("скачивание: ожидался статус 200, получен %d: %s", rec.Code, rec.Body.String())
	}
	if !bytes.Equal(rec.Body.Bytes(), content) {
		t.Error("скачанное содержимое не совпадает с загруженным")
	}
	if ct := rec.Header().Get("Content-Type"); ct != xlsxType {
		t.Errorf("ожидался Content-Type %q, получен %q", xlsxType, ct)
	}
	if cl := rec.Header().Get("Content-Length"); cl != strconv.Itoa(len(content)) {
		t.Errorf("ожидался Content-Length %d, получен %q", len(content), cl)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "report.xlsx") {
		t.Errorf("Content-Disposition не содержит имя файла: %q", cd)
	}

	// Повторное скачивание — токен погашен
	rec = env.do(t, http.MethodGet, "/redeem/"+downloadToken, "", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("повторное скачивание: ожидался статус 400, получен %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "TOKEN_CONSUMED" {
		t.Errorf("ожидался код TOKEN_CONSUMED, получен %q", code)
	}
}

// TestEndToEnd_ExpiredToken — истёкший токен отклоняется и в info, и при скачивании.
func TestEndToEnd_ExpiredToken(t *testing.T) {
	env := newTestEnv(t, 40*time.Millisecond)

	uploaderSession := env.loginUploader(t)
	fileID := env.uploadFile(t, uploaderSession, "notes.txt", "text/plain", []byte("короткая заметка"))

	consumerSession := env.signupConsumer(t, "late@example.com")
	downloadToken := env.issueToken(t, consumerSession, fileID)

	time.Sleep(80 * time.Millisecond)

	rec := env.do(t, http.MethodGet, "/redeem/info/"+downloadToken, "", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("info истёкшего токена: ожидался статус 400, получен %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "TOKEN_EXPIRED" {
		t.Errorf("ожидался код TOKEN_EXPIRED, получен %q", code)
	}

	rec = env.do(t, http.MethodGet, "/redeem/"+downloadToken, "", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("скачивание истёкшего токена: ожидался статус 400, получен %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "TOKEN_EXPIRED" {
		t.Errorf("ожидался код TOKEN_EXPIRED, получен %q", code)
	}
}

// TestRoleEnforcement — роли ограничивают доступ к endpoints.
func TestRoleEnforcement(t *testing.T) {
	env := newTestEnv(t, 15*time.Minute)

	uploaderSession := env.loginUploader(t)
	consumerSession := env.signupConsumer(t, "roles@example.com")

	tests := []struct {
		name       string
		method     string
		target     string
		session    string
		wantStatus int
		wantCode   string
	}{
		{"без сессии нет списка", http.MethodGet, "/api/v1/files", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"consumer не загружает", http.MethodPost, "/api/v1/files", consumerSession, http.StatusForbidden, "FORBIDDEN"},
		{"uploader не видит каталог", http.MethodGet, "/api/v1/files", uploaderSession, http.StatusForbidden, "FORBIDDEN"},
		{"uploader не выдаёт токены", http.MethodPost, "/api/v1/files/some-id/issue", uploaderSession, http.StatusForbidden, "FORBIDDEN"},
		{"consumer не запускает сверку", http.MethodPost, "/api/v1/maintenance/reconcile", consumerSession, http.StatusForbidden, "FORBIDDEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.target, tt.session, nil, "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("ожидался статус %d, получен %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if code := errorCode(t, rec); code != tt.wantCode {
				t.Errorf("ожидался код %q, получен %q", tt.wantCode, code)
			}
		})
	}
}

// TestIssueUnknownFile — выдача токена на несуществующий файл.
func TestIssueUnknownFile(t *testing.T) {
	env := newTestEnv(t, 15*time.Minute)
	consumerSession := env.signupConsumer(t, "ghost@example.com")

	rec := env.do(t, http.MethodPost, "/api/v1/files/no-such-file/issue", consumerSession, nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("ожидался статус 404, получен %d: %s", rec.Code, rec.Body.String())
	}
	if code := errorCode(t, rec); code != "NOT_FOUND" {
		t.Errorf("ожидался код NOT_FOUND, получен %q", code)
	}
}

// TestRedeemGarbageToken — мусорное значение токена.
func TestRedeemGarbageToken(t *testing.T) {
	env := newTestEnv(t, 15*time.Minute)

	rec := env.do(t, http.MethodGet, "/redeem/not-a-jwt-at-all", "", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("ожидался статус 400, получен %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "VALIDATION_ERROR" {
		t.Errorf("ожидался код VALIDATION_ERROR, получен %q", code)
	}
}

// TestHealthAndMetrics — служебные endpoints доступны без сессии.
func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, 15*time.Minute)

	rec := env.do(t, http.MethodGet, "/health/live", "", nil, "")
	if rec.Code != http.StatusOK {
		t.Errorf("health/live: ожидался статус 200, получен %d", rec.Code)
	}
	liveBody := decodeBody(t, rec)
	if liveBody["service"] != "secureshare" {
		t.Errorf("ожидался service = secureshare, получено %v", liveBody["service"])
	}

	rec = env.do(t, http.MethodGet, "/health/ready", "", nil, "")
	if rec.Code != http.StatusOK {
		t.Errorf("health/ready: ожидался статус 200, получен %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/metrics", "", nil, "")
	if rec.Code != http.StatusOK {
		t.Errorf("metrics: ожидался статус 200, получен %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ss_http_requests_total") {
		t.Error("в метриках нет ss_http_requests_total")
	}
}

// TestMaintenanceReconcile — запуск сверки uploader'ом.
func TestMaintenanceReconcile(t *testing.T) {
	env := newTestEnv(t, 15*time.Minute)

	uploaderSession := env.loginUploader(t)
	env.uploadFile(t, uploaderSession, "audit.txt", "text/plain", []byte("данные для сверки"))

	rec := env.do(t, http.MethodPost, "/api/v1/maintenance/reconcile", uploaderSession, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reconcile: ожидался статус 200, получен %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if checked, _ := body["files_checked"].(float64); int(checked) != 1 {
		t.Errorf("ожидался 1 проверенный файл, получено %v", body["files_checked"])
	}
}
