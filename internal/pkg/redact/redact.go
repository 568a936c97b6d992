// redact маскирует чувствительные значения перед логированием.
package redact

// Username оставляет первые два символа имени.
func Username(s string) string {
	r := []rune(s)
	if len(r) <= 2 {
		return "***"
	}

	return string(r[:2]) + "***"
}

// Token возвращает короткий отпечаток токена без раскрытия значения.
func Token(s string) string {
	if len(s) < 12 {
		return "[REDACTED_TOKEN]"
	}

	return s[:4] + "..." + s[len(s)-4:]
}

func Password() string { return "[REDACTED_PASSWORD]" }
