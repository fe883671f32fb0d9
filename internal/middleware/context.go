package middleware

import "context"

type contextKey string

const MemberIDKey contextKey = "member_id"

// GetMemberID возвращает member_id из контекста (устанавливается IdentityValidate).
func GetMemberID(ctx context.Context) string {
	v, _ := ctx.Value(MemberIDKey).(string)
	return v
}
