// Пакет model — доменные модели nc-userimporter.
// set.go — множество строк для сравнения групп и subadmin-ролей.
package model

import "sort"

// Set — множество с обычными операциями над ключами.
type Set[K comparable] map[K]struct{}

// NewSet создаёт пустое множество.
func NewSet[K comparable]() Set[K] {
	return make(Set[K])
}

// MakeSet создаёт множество из среза ключей.
func MakeSet[K comparable](keys []K) Set[K] {
	s := NewSet[K]()
	for _, k := range keys {
		s.Add(k)
	}
	return s
}

// Add добавляет ключ в множество.
func (s Set[K]) Add(key K) {
	s[key] = struct{}{}
}

// Has проверяет наличие ключа.
func (s Set[K]) Has(key K) bool {
	_, ok := s[key]
	return ok
}

// Difference возвращает ключи, присутствующие в s, но отсутствующие в other.
func (s Set[K]) Difference(other Set[K]) Set[K] {
	diff := NewSet[K]()
	for k := range s {
		if !other.Has(k) {
			diff.Add(k)
		}
	}
	return diff
}

// Equal сравнивает два множества.
func (s Set[K]) Equal(other Set[K]) bool {
	if len(s) != len(other) {
		return false
	}
	for k := range s {
		if !other.Has(k) {
			return false
		}
	}
	return true
}

// SortedStrings возвращает элементы строкового множества в отсортированном порядке.
// Используется для детерминированного вывода и порядка мутаций.
func SortedStrings(s Set[string]) []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
