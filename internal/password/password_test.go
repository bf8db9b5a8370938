package password

import (
	"strings"
	"testing"
)

// TestNew_RejectsShortLength проверяет отказ при длине меньше 4.
func TestNew_RejectsShortLength(t *testing.T) {
	for _, n := range []int{-1, 0, 1, 2, 3} {
		if _, err := New(n); err == nil {
			t.Errorf("New(%d): ожидалась ошибка", n)
		}
	}
}

// TestGenerate_ContainsAllClasses проверяет длину и обязательные классы символов.
func TestGenerate_ContainsAllClasses(t *testing.T) {
	for _, n := range []int{4, 8, 12, 32} {
		gen, err := New(n)
		if err != nil {
			t.Fatalf("New(%d): %v", n, err)
		}

		// Генерация случайная — проверяем инвариант многократно
		for i := 0; i < 50; i++ {
			pw, err := gen.Generate()
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			if len(pw) != n {
				t.Fatalf("длина пароля %d, ожидалось %d", len(pw), n)
			}
			if !strings.ContainsAny(pw, upper) {
				t.Errorf("пароль %q без заглавной буквы", pw)
			}
			if !strings.ContainsAny(pw, lower) {
				t.Errorf("пароль %q без строчной буквы", pw)
			}
			if !strings.ContainsAny(pw, digits) {
				t.Errorf("пароль %q без цифры", pw)
			}
			if !strings.ContainsAny(pw, punctuation) {
				t.Errorf("пароль %q без знака пунктуации", pw)
			}
		}
	}
}
