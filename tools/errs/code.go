package errs

// ===== 错误码分段 =====
// 500        服务内部
// 1000~1999  通用参数/记录
// 2000~2999  鉴权与准入
// 3000~3999  网关会话
// 4000~4999  存储
const (
	ServerInternalError = 500

	ArgsError           = 1001
	RecordNotFoundError = 1002

	AuthRequiredError    = 2001
	TokenInvalidError    = 2002
	ForbiddenError       = 2003
	UserNotFoundError    = 2004
	ChannelNotFoundError = 2005
	NotGroupMemberError  = 2006

	MalformedEventError = 3001
	TargetOfflineError  = 3002
	DuplicateConnError  = 3003
	SendBufferFullError = 3004

	PersistenceError = 4001
)

// 预定义错误, 调用处用 WithDetail / WrapMsg 追加上下文
var (
	ErrInternalServer = NewCodeError(ServerInternalError, "server internal error")
	ErrArgs           = NewCodeError(ArgsError, "invalid argument")
	ErrRecordNotFound = NewCodeError(RecordNotFoundError, "record not found")

	// 准入失败的 Msg 会作为关闭原因回给客户端, 文案保持稳定
	ErrAuthRequired    = NewCodeError(AuthRequiredError, "Authentication required")
	ErrTokenInvalid    = NewCodeError(TokenInvalidError, "Authentication failed")
	ErrForbidden       = NewCodeError(ForbiddenError, "Forbidden")
	ErrUserNotFound    = NewCodeError(UserNotFoundError, "User not found")
	ErrChannelNotFound = NewCodeError(ChannelNotFoundError, "Channel not found")
	ErrNotGroupMember  = NewCodeError(NotGroupMemberError, "Not a member of this group")

	ErrMalformedEvent = NewCodeError(MalformedEventError, "malformed event")
	ErrTargetOffline  = NewCodeError(TargetOfflineError, "target user is offline")
	ErrDuplicateConn  = NewCodeError(DuplicateConnError, "duplicate connection id")
	ErrSendBufferFull = NewCodeError(SendBufferFullError, "send buffer full")

	ErrPersistence = NewCodeError(PersistenceError, "persistence failure")
)
