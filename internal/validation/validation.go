// Package validation содержит функции валидации входных данных.
package validation

import (
	"strings"
	"unicode"
)

// taxIDWeights — веса разрядов контрольной суммы налогового идентификатора.
var taxIDWeights = [9]int{6, 5, 7, 2, 3, 4, 5, 6, 7}

// IsValidTaxID проверяет корректность налогового идентификатора:
// после удаления разделителей ровно 10 цифр, контрольная сумма первых девяти
// разрядов по модулю 11 должна совпадать с последней цифрой.
func IsValidTaxID(taxID string) bool {
	cleaned := stripSeparators(taxID)
	if len(cleaned) != 10 {
		return false
	}

	sum := 0
	for i, ch := range cleaned {
		if !unicode.IsDigit(ch) {
			return false
		}
		digit := int(ch - '0')
		if i < 9 {
			sum += digit * taxIDWeights[i]
		}
	}

	return sum%11 == int(cleaned[9]-'0')
}

// NormalizeVIN очищает VIN от разделителей и приводит к верхнему регистру.
// Возвращает нормализованный номер и признак корректности: ровно 17 символов,
// только цифры и латинские буквы. Пустая строка считается отсутствием VIN.
func NormalizeVIN(vin string) (string, bool) {
	cleaned := strings.ToUpper(stripSeparators(vin))
	if cleaned == "" {
		return "", true
	}
	if len(cleaned) != 17 {
		return "", false
	}
	for _, ch := range cleaned {
		if !unicode.IsDigit(ch) && !(ch >= 'A' && ch <= 'Z') {
			return "", false
		}
	}
	return cleaned, true
}

// NormalizePhone очищает номер телефона от разделителей и проверяет,
// что он состоит ровно из девяти цифр. Пустая строка — отсутствие номера.
func NormalizePhone(phone string) (string, bool) {
	cleaned := stripSeparators(phone)
	if cleaned == "" {
		return "", true
	}
	if len(cleaned) != 9 {
		return "", false
	}
	for _, ch := range cleaned {
		if !unicode.IsDigit(ch) {
			return "", false
		}
	}
	return cleaned, true
}

func stripSeparators(s string) string {
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return strings.TrimSpace(s)
}
