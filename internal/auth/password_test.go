package auth

import (
	"strings"
	"testing"
)

func TestHashPassword_Format(t *testing.T) {
	hash, err := HashPassword("секретный-пароль")
	if err != nil {
		t.Fatalf("ошибка хэширования: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Errorf("ожидался префикс $argon2id$, получено %q", hash)
	}
	if len(strings.Split(hash, "$")) != 6 {
		t.Errorf("ожидалось 6 секций хэша, получено %q", hash)
	}
}

func TestComparePassword(t *testing.T) {
	hash, err := HashPassword("правильный-пароль")
	if err != nil {
		t.Fatalf("ошибка хэширования: %v", err)
	}

	match, err := ComparePassword("правильный-пароль", hash)
	if err != nil {
		t.Fatalf("ошибка сравнения: %v", err)
	}
	if !match {
		t.Error("правильный пароль не прошёл сравнение")
	}

	match, err = ComparePassword("неправильный-пароль", hash)
	if err != nil {
		t.Fatalf("ошибка сравнения: %v", err)
	}
	if match {
		t.Error("неправильный пароль прошёл сравнение")
	}
}

func TestComparePassword_InvalidHash(t *testing.T) {
	tests := []struct {
		name string
		hash string
	}{
		{"пустая строка", ""},
		{"не argon2id", "$bcrypt$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA"},
		{"мало секций", "$argon2id$v=19$m=65536"},
		{"битая соль", "$argon2id$v=19$m=65536,t=3,p=2$***$aGFzaA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ComparePassword("пароль", tt.hash); err == nil {
				t.Error("ожидалась ошибка для некорректного хэша")
			}
		})
	}
}

func TestHashPassword_UniqueSalt(t *testing.T) {
	h1, err := HashPassword("одинаковый-пароль")
	if err != nil {
		t.Fatalf("ошибка хэширования: %v", err)
	}
	h2, err := HashPassword("одинаковый-пароль")
	if err != nil {
		t.Fatalf("ошибка хэширования: %v", err)
	}
	if h1 == h2 {
		t.Error("два хэша одного пароля совпали, соль не случайна")
	}
}
