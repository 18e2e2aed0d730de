package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	loggerpkg "StoryAgent-Kit/pkg/logger"
)

// Service 基于静态 API Key 校验请求。未配置任何 Key 时认证关闭。
type Service struct {
	keys  []storedKey
	audit *slog.Logger
}

type storedKey struct {
	digest  [sha256.Size]byte
	subject *Subject
}

// NewService 创建认证服务，忽略 Secret 为空的 Key。
func NewService(keys []Key) *Service {
	s := &Service{audit: loggerpkg.Audit()}
	for _, key := range keys {
		secret := strings.TrimSpace(key.Secret)
		if secret == "" {
			continue
		}
		name := key.Name
		if name == "" {
			name = "anonymous"
		}
		s.keys = append(s.keys, storedKey{
			digest:  sha256.Sum256([]byte(secret)),
			subject: newSubject(name, key.Permissions),
		})
	}
	return s
}

// Enabled 判断是否启用了认证。
func (s *Service) Enabled() bool {
	return s != nil && len(s.keys) > 0
}

// Authenticate 从 Authorization: Bearer 或 X-API-Key 头中解析调用方。
func (s *Service) Authenticate(r *http.Request) (*Subject, error) {
	secret := extractKey(r)
	if secret == "" {
		return nil, ErrMissingKey
	}
	digest := sha256.Sum256([]byte(secret))
	var matched *Subject
	for _, key := range s.keys {
		if subtle.ConstantTimeCompare(digest[:], key.digest[:]) == 1 {
			matched = key.subject
		}
	}
	if matched == nil {
		return nil, ErrInvalidKey
	}
	return matched, nil
}

func extractKey(r *http.Request) string {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}
