package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"
)

// IdentityValidate вызывает сервис идентификации для проверки токена
// (X-Identity-Token или ?token= для WebSocket, где заголовки не доступны).
// Успешная проверка кладёт member_id в контекст запроса.
func IdentityValidate(identityServiceURL string, client *http.Client) func(http.Handler) http.Handler {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("X-Identity-Token")
			if token == "" {
				token = r.URL.Query().Get("token")
			}
			if token == "" {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			var body []byte
			if r.Body != nil {
				var err error
				body, err = io.ReadAll(r.Body)
				if err != nil {
					http.Error(w, `{"error":"bad request"}`, http.StatusBadRequest)
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
			}
			reqBody := map[string]string{
				"token":  token,
				"method": r.Method,
				"path":   r.URL.Path,
			}
			jsonBody, _ := json.Marshal(reqBody)
			req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, identityServiceURL+"/internal/validate", bytes.NewReader(jsonBody))
			if err != nil {
				http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
				return
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := client.Do(req)
			if err != nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			var result struct {
				MemberID string `json:"member_id"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&result); err != nil || result.MemberID == "" {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), MemberIDKey, result.MemberID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TrustedHeaderIdentity берёт member_id напрямую из X-Member-Id. Только для
// dev-режима, где внешнего сервиса идентификации нет.
func TrustedHeaderIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		memberID := r.Header.Get("X-Member-Id")
		if memberID == "" {
			memberID = r.URL.Query().Get("member_id")
		}
		if memberID == "" {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), MemberIDKey, memberID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
